//go:build lambda
// +build lambda

package main

import (
	"context"
	"os"

	_ "github.com/cyphera/trust-engine/docs" // generated swagger docs
	"github.com/cyphera/trust-engine/internal/logger"
	"github.com/cyphera/trust-engine/internal/server"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/davecgh/go-spew/spew"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// @title           Trust Engine API
// @version         1.0
// @description     Delegation and audit trust engine for autonomous agent payments

// @host      localhost:8000
// @BasePath  /api/v1

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

var ginLambda *ginadapter.GinLambda

func init() {
	stage := os.Getenv("STAGE")
	if stage == "" {
		stage = "prod"
	}
	logger.InitLogger(stage)

	r := gin.Default()
	server.InitializeHandlers()
	server.InitializeRoutes(r)

	ginLambda = ginadapter.New(r)
}

func Handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger.Debug("Received Lambda request",
		zap.String("path", req.Path),
		zap.Any("request", spew.Sdump(req)),
	)

	return ginLambda.ProxyWithContext(ctx, req)
}

func main() {
	defer logger.Sync()
	lambda.Start(Handler)
}
