package constants

// Common string constants used throughout the codebase
const (
	// Log levels
	ErrorLevel = "error"

	// Environments
	ProdEnvironment = "prod"
	TestEnvironment = "test"

	// Auth types
	AuthTypeAPIKey = "api_key"
	AuthTypeJWT    = "jwt"

	// User roles
	AdminRole    = "admin"
	OperatorRole = "operator"
	AgentRole    = "agent"
)

// Payment rails a mandate can be scoped to
const (
	RailCard       = "card"
	RailACH        = "ach"
	RailStablecoin = "stablecoin"
)
