//go:build !lambda
// +build !lambda

package main

import (
	"log"
	"os"

	"github.com/cyphera/trust-engine/internal/logger"
	"github.com/cyphera/trust-engine/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// A missing .env file is fine when variables are set directly in the
		// environment.
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	logger.InitLogger("local")

	r := gin.Default()
	server.InitializeHandlers()
	server.InitializeRoutes(r)

	port := os.Getenv("API_PORT")
	if port == "" {
		port = "8000"
	}

	log.Printf("Server starting on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Error starting server: %v", err)
	}
}
