package server

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/cyphera/trust-engine/docs" // generated swagger docs
	"github.com/cyphera/trust-engine/internal/alerts"
	"github.com/cyphera/trust-engine/internal/auth"
	"github.com/cyphera/trust-engine/internal/client/aws"
	"github.com/cyphera/trust-engine/internal/client/events"
	"github.com/cyphera/trust-engine/internal/client/signer"
	"github.com/cyphera/trust-engine/internal/handlers"
	"github.com/cyphera/trust-engine/internal/logger"
	"github.com/cyphera/trust-engine/internal/middleware"
	"github.com/cyphera/trust-engine/internal/store"
	"github.com/cyphera/trust-engine/internal/trust/authorize"
	"github.com/cyphera/trust-engine/internal/trust/chain"
	"github.com/cyphera/trust-engine/internal/trust/ledger"
	"github.com/cyphera/trust-engine/internal/trust/revocation"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// Handler definitions
var (
	healthHandler      *handlers.HealthHandler
	tokenHandler       *handlers.TokenHandler
	chainHandler       *handlers.ChainHandler
	transactionHandler *handlers.TransactionHandler
	revocationHandler  *handlers.RevocationHandler
	ledgerHandler      *handlers.LedgerHandler
	apiKeyHandler      *handlers.APIKeyHandler

	authClient  *auth.AuthClient
	dataStore   *store.Store
	auditLedger *ledger.Ledger
)

func InitializeHandlers() {
	ctx := context.Background()

	pool, err := store.NewPool(ctx, databaseURL(ctx))
	if err != nil {
		logger.Fatal("Unable to create connection pool", zap.Error(err))
	}
	dataStore = store.NewStore(pool)

	// Restore the audit ledger from its persisted chain. Corruption here is
	// fatal: serving decisions against a broken audit trail is worse than
	// not serving.
	entries, err := dataStore.LoadLedgerEntries(ctx)
	if err != nil {
		logger.Fatal("Unable to load audit ledger", zap.Error(err))
	}
	auditLedger, err = ledger.NewFromEntries(entries)
	if err != nil {
		logger.Fatal("Audit ledger failed integrity verification", zap.Error(err))
	}
	go persistLedger(ctx, uint64(len(entries)))

	// Seed the revocation set commitment from persisted token state.
	registry := revocation.NewRegistry()
	revokedIDs, err := dataStore.ListRevokedTokenIDs(ctx)
	if err != nil {
		logger.Fatal("Unable to load revoked tokens", zap.Error(err))
	}
	if _, err := registry.RevokeBatch(revokedIDs); err != nil {
		logger.Fatal("Unable to seed revocation set", zap.Error(err))
	}

	verifier := chain.NewVerifier(signatureVerifier(), chainPolicy())
	engine := authorize.NewEngine(auditLedger, dataStore, decisionPublisher(ctx), engineConfig())

	commonServices := handlers.NewCommonServices(
		dataStore,
		verifier,
		engine,
		auditLedger,
		registry,
		alerter(),
		envelopeSecret(ctx),
	)

	healthHandler = handlers.NewHealthHandler()
	tokenHandler = handlers.NewTokenHandler(commonServices)
	chainHandler = handlers.NewChainHandler(commonServices)
	transactionHandler = handlers.NewTransactionHandler(commonServices)
	revocationHandler = handlers.NewRevocationHandler(commonServices)
	ledgerHandler = handlers.NewLedgerHandler(commonServices)
	apiKeyHandler = handlers.NewAPIKeyHandler(commonServices)

	authClient = auth.NewAuthClient(dataStore)
}

func InitializeRoutes(router *gin.Engine) {
	router.Use(handlers.RequestID())
	router.Use(configureCORS())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", healthHandler.Health)
	router.GET("/healthz", healthHandler.Health)

	if os.Getenv("GIN_MODE") != "release" {
		router.Use(handlers.LogRequest())
	}

	limiter := middleware.NewRateLimiter(envInt("RATE_LIMIT_RPS", 20), envInt("RATE_LIMIT_BURST", 40))
	router.Use(limiter.Middleware())

	v1 := router.Group("/api/v1")
	{
		protected := v1.Group("/")
		protected.Use(authClient.EnsureValidAPIKeyOrToken())
		{
			// Admin-only routes
			admin := protected.Group("/admin")
			admin.Use(auth.RequireRole("admin"))
			{
				admin.POST("/tokens/:token_id/revoke", tokenHandler.RevokeToken)
				admin.GET("/ledger/verify", ledgerHandler.VerifyLedger)
				admin.POST("/ledger/checkpoints", ledgerHandler.CreateCheckpoint)
				admin.POST("/api-keys", apiKeyHandler.CreateAPIKey)
				admin.DELETE("/api-keys/:key_prefix", apiKeyHandler.RevokeAPIKey)
			}

			// Delegation tokens
			tokens := protected.Group("/tokens")
			{
				tokens.POST("", tokenHandler.IssueToken)
				tokens.GET("/:token_id", tokenHandler.GetToken)
				tokens.GET("/:token_id/chain", tokenHandler.GetChain)
				tokens.GET("/:token_id/envelope", tokenHandler.GetEnvelope)
			}

			// Chain verification
			protected.POST("/chains/verify", chainHandler.VerifyChain)

			// Transaction authorization
			protected.POST("/transactions/authorize", transactionHandler.AuthorizeTransaction)

			// Revocation and nonce set commitments
			revocations := protected.Group("/revocations")
			{
				revocations.GET("/root", revocationHandler.GetRoots)
				revocations.GET("/:token_id/proof", revocationHandler.GetRevocationProof)
			}
			protected.POST("/nonces/consume", revocationHandler.ConsumeNonce)

			// Audit ledger
			ledgerRoutes := protected.Group("/ledger")
			{
				ledgerRoutes.GET("/entries", ledgerHandler.ListEntries)
				ledgerRoutes.GET("/entries/:sequence/proof", ledgerHandler.GetInclusionProof)
			}
		}
	}
}

// databaseURL resolves the connection string: Secrets Manager when a secret
// ARN is configured, DATABASE_URL otherwise.
func databaseURL(ctx context.Context) string {
	if os.Getenv("TRUST_DB_SECRET_ARN") != "" {
		smClient, err := aws.NewSecretsManagerClient(ctx)
		if err != nil {
			logger.Fatal("Unable to create secrets manager client", zap.Error(err))
		}
		creds, err := smClient.GetDatabaseCredentials(ctx, "TRUST_DB_SECRET_ARN")
		if err != nil {
			logger.Fatal("Unable to fetch database credentials", zap.Error(err))
		}
		return creds.DSN()
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal("DATABASE_URL environment variable is required")
	}
	return dbURL
}

// envelopeSecret resolves the JWS envelope signing secret: Secrets Manager
// first, the TRUST_ENVELOPE_SECRET environment variable for local runs.
// Empty disables envelope export.
func envelopeSecret(ctx context.Context) []byte {
	smClient, err := aws.NewSecretsManagerClient(ctx)
	if err != nil {
		logger.Warn("Secrets manager unavailable; envelope export disabled", zap.Error(err))
		return nil
	}
	secret, err := smClient.GetSecretString(ctx, "TRUST_ENVELOPE_SECRET_ARN", "TRUST_ENVELOPE_SECRET")
	if err != nil || secret == "" {
		logger.Warn("Envelope secret not configured; envelope export disabled")
		return nil
	}
	return []byte(secret)
}

// signatureVerifier selects the signing oracle: a remote verification
// service when configured, local secp256k1 recovery otherwise.
func signatureVerifier() chain.SignatureVerifier {
	if oracleURL := os.Getenv("SIGNATURE_ORACLE_URL"); oracleURL != "" {
		return signer.NewRemoteVerifier(oracleURL)
	}
	return signer.NewLocalVerifier()
}

func chainPolicy() chain.Policy {
	policy := chain.DefaultPolicy()
	if threshold := envInt("TRUST_DEPTH_THRESHOLD", 0); threshold > 0 {
		policy.TypicalDepthThreshold = threshold
	}
	if window := os.Getenv("TRUST_RAPID_CREATION_WINDOW"); window != "" {
		parsed, err := time.ParseDuration(window)
		if err != nil {
			logger.Fatal("Invalid TRUST_RAPID_CREATION_WINDOW", zap.Error(err))
		}
		policy.RapidCreationWindow = parsed
	}
	return policy
}

func engineConfig() authorize.Config {
	config := authorize.Config{
		ReviewThreshold: envInt("TRUST_REVIEW_THRESHOLD", 0),
	}
	if ttl := os.Getenv("TRUST_MANDATE_TTL"); ttl != "" {
		parsed, err := time.ParseDuration(ttl)
		if err != nil {
			logger.Fatal("Invalid TRUST_MANDATE_TTL", zap.Error(err))
		}
		config.MandateTTL = parsed
	}
	return config
}

// decisionPublisher returns the SQS decision stream, or nil when no queue is
// configured.
func decisionPublisher(ctx context.Context) authorize.DecisionPublisher {
	queueURL := os.Getenv("TRUST_DECISION_QUEUE_URL")
	if queueURL == "" {
		return nil
	}
	publisher, err := events.NewSQSPublisher(ctx, queueURL)
	if err != nil {
		logger.Fatal("Unable to create decision publisher", zap.Error(err))
	}
	return publisher
}

// alerter returns the operator alerter, or nil when alerting is not
// configured.
func alerter() *alerts.Alerter {
	apiKey := os.Getenv("RESEND_API_KEY")
	toEmails := os.Getenv("ALERT_TO_EMAILS")
	if apiKey == "" || toEmails == "" {
		logger.Warn("Operator alerting not configured")
		return nil
	}
	recipients := strings.Split(toEmails, ",")
	for i, r := range recipients {
		recipients[i] = strings.TrimSpace(r)
	}
	return alerts.NewAlerter(apiKey, os.Getenv("ALERT_FROM_EMAIL"), recipients, logger.Log)
}

// persistLedger flushes newly appended ledger entries to the store. Appends
// are in-memory first so a decision is never blocked on the database; the
// flush loop trails by at most one interval.
func persistLedger(ctx context.Context, persisted uint64) {
	interval := time.Duration(envInt("LEDGER_FLUSH_SECONDS", 5)) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			entries := auditLedger.Snapshot()
			for _, e := range entries {
				if e.SequenceNumber < persisted {
					continue
				}
				if err := dataStore.SaveLedgerEntry(ctx, e); err != nil {
					logger.Error("Failed to persist ledger entry",
						zap.Uint64("sequence", e.SequenceNumber),
						zap.Error(err),
					)
					break
				}
				persisted = e.SequenceNumber + 1
			}
		}
	}
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn("Invalid integer environment variable, using default",
			zap.String("name", name),
			zap.Int("default", fallback),
		)
		return fallback
	}
	return value
}

// configureCORS returns a configured CORS middleware
func configureCORS() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()

	originsEnv := os.Getenv("CORS_ALLOWED_ORIGINS")
	if originsEnv == "" {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	} else {
		origins := strings.Split(originsEnv, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		corsConfig.AllowOrigins = origins
	}

	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key", "X-Request-ID"}
	corsConfig.AllowCredentials = os.Getenv("CORS_ALLOW_CREDENTIALS") == "true"

	return cors.New(corsConfig)
}
