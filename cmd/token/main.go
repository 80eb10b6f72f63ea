package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	config "github.com/maheshrc27/sheetflow/configs"
	"github.com/maheshrc27/sheetflow/internal/repository"
	"github.com/maheshrc27/sheetflow/pkg/utils"
)

// token mints operator tokens, encrypts profile access tokens for the
// Profiles tab and generates secrets.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}
	cfg := config.LoadConfig()

	operator := flag.String("operator", "", "mint an API token for this operator")
	ttl := flag.Duration("ttl", 30*24*time.Hour, "lifetime of the minted token")
	encrypt := flag.String("encrypt", "", "encrypt an Instagram access token for the Profiles tab")
	secret := flag.Int("secret", 0, "generate a random secret of this many bytes")
	flag.Parse()

	switch {
	case *operator != "":
		token, err := utils.GenerateToken(cfg.SecretKey, *operator, *ttl)
		if err != nil {
			log.Fatalf("Failed to mint token: %v", err)
		}
		fmt.Println(token)
	case *encrypt != "":
		if cfg.SecretKey == "" {
			log.Fatal("SECRET_KEY must be set to encrypt tokens")
		}
		enc, err := utils.Encrypt([]byte(*encrypt), []byte(cfg.SecretKey))
		if err != nil {
			log.Fatalf("Failed to encrypt token: %v", err)
		}
		fmt.Println(repository.EncryptedTokenPrefix + enc)
	case *secret > 0:
		s, err := utils.GenerateSecret(*secret)
		if err != nil {
			log.Fatalf("Failed to generate secret: %v", err)
		}
		fmt.Println(s)
	default:
		flag.Usage()
		os.Exit(2)
	}
}
