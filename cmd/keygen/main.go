package main

import (
	"flag"
	"fmt"
	"log"

	"copytrader/pkg/crypto"
)

// keygen выводит ENCRYPTION_KEY, ключ management API и его bcrypt-хеш
// для API_KEY_HASH. Ключ API показывается один раз и нигде не хранится.
func main() {
	cost := flag.Int("cost", crypto.DefaultCost, "bcrypt cost for API_KEY_HASH")
	apiKey := flag.String("api-key", "", "hash an existing API key instead of generating one")
	flag.Parse()

	encryptionKey, err := crypto.GenerateEncryptionKey()
	if err != nil {
		log.Fatalf("Failed to generate encryption key: %v", err)
	}

	key := *apiKey
	if key == "" {
		if key, err = crypto.GenerateAPIKey(); err != nil {
			log.Fatalf("Failed to generate API key: %v", err)
		}
	}

	hash, err := crypto.HashAPIKey(key, *cost)
	if err != nil {
		log.Fatalf("Failed to hash API key: %v", err)
	}

	fmt.Printf("ENCRYPTION_KEY=%s\n", encryptionKey)
	fmt.Printf("API_KEY_HASH='%s'\n", hash)
	fmt.Printf("\n# X-API-Key for clients (store it, it is not recoverable):\n%s\n", key)
}
