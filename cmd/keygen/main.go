package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/flexprice/flexbill/internal/auth"
	"github.com/flexprice/flexbill/internal/config"
	"github.com/flexprice/flexbill/internal/types"
)

// generateKey creates a random 256-bit key for AES-256.
func generateKey() []byte {
	key := make([]byte, 32) // 32 bytes = 256 bits
	if _, err := rand.Read(key); err != nil {
		log.Fatalf("Unable to generate key: %v", err)
	}
	return key
}

func main() {
	tenantID := flag.String("tenant", "", "Issue a JWT for this app ID, signed with auth.secret from the config")
	userID := flag.String("user", types.DefaultUserID, "User ID placed in the JWT")
	ttl := flag.Duration("ttl", auth.DefaultTokenTTL, "Lifetime of the JWT")
	flag.Parse()

	// Generate and display the encryption key.
	fmt.Println("Generated Key (hex):", hex.EncodeToString(generateKey()))

	apiKey := auth.GenerateAPIKey()
	fmt.Println("API Key:", apiKey)
	fmt.Println("API Key hash (auth.api_keys / auth.cron_key):", auth.HashAPIKey(apiKey))

	if *tenantID == "" {
		return
	}

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	token, err := auth.NewProvider(cfg).GenerateToken(*userID, *tenantID, *ttl)
	if err != nil {
		log.Fatalf("Unable to generate token: %v", err)
	}
	fmt.Printf("JWT (expires %s): %s\n", time.Now().Add(*ttl).UTC().Format(time.RFC3339), token)
}
