// Command token prints a signed bearer token for the api.
package main

import (
	"fmt"
	"log"

	"github.com/seanblong/docsearch/internal/auth"
	"github.com/seanblong/docsearch/internal/config"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("docsearch-token", pflag.ExitOnError)
	subject := fs.String("subject", "", "Token subject (user or service name)")

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	if *subject == "" {
		log.Fatal("--subject is required")
	}

	a, err := auth.New(auth.Config{
		Enabled:   true,
		JwtSecret: cfg.Auth.JwtSecret,
		Issuer:    cfg.Auth.Issuer,
		TokenTTL:  cfg.Auth.TokenTTL,
	})
	if err != nil {
		log.Fatalf("Failed to configure authentication: %v", err)
	}
	token, err := a.GenerateToken(*subject)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
