package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"site-mass-upload/internal/config"
	"site-mass-upload/internal/logger"
	"site-mass-upload/internal/models"
	"site-mass-upload/internal/services"
)

func main() {
	callerID := flag.String("caller", "", "caller id (required)")
	callerName := flag.String("name", "", "caller display name")
	siteID := flag.String("site", "", "site id bound to the token")
	flag.Parse()

	if *callerID == "" {
		fmt.Println("Usage: go run cmd/issue-token/main.go -caller <id> [-name <name>] [-site <site id>]")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	authService := services.NewAuthenticationService(logger.NewLogger(cfg), cfg)
	token, err := authService.GenerateToken(context.Background(), &models.CallerContext{
		CallerID:   *callerID,
		CallerName: *callerName,
		SiteID:     *siteID,
	})
	if err != nil {
		log.Fatalf("Failed to generate JWT token: %v", err)
	}

	fmt.Printf("JWT Token for caller '%s':\n", *callerID)
	fmt.Printf("%s\n", token)
	fmt.Printf("\nUse this token in the Authorization header:\n")
	fmt.Printf("Authorization: Bearer %s\n", token)
	fmt.Printf("\nExample curl command:\n")
	fmt.Printf("curl -H \"Authorization: Bearer %s\" http://localhost:%s/api/v1/mass-upload/entities\n", token, cfg.Server.Port)
}
