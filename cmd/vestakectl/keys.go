package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"vestake/cmd/internal/passphrase"
	"vestake/crypto"
	"vestake/gateway/middleware"
)

// newPassphrase is swapped in tests.
var newPassphrase = func() (string, error) {
	return passphrase.NewSource(passphrase.DefaultEnvVar).NewPassphrase()
}

func runKeygen(c *cli, args []string) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	out := fs.String("out", "account.keystore", "keystore output path")
	force := fs.Bool("force", false, "overwrite an existing keystore")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if !*force {
		if _, err := os.Stat(*out); err == nil {
			fmt.Fprintf(c.stderr, "Error: keystore %s already exists (use --force to overwrite)\n", *out)
			return 1
		}
	}
	pass, err := newPassphrase()
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: generate key: %v\n", err)
		return 1
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		fmt.Fprintf(c.stderr, "Error: write keystore: %v\n", err)
		return 1
	}
	bech, err := crypto.FormatAccount(key.Address())
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(c.stdout, "Keystore: %s\n", *out)
	fmt.Fprintf(c.stdout, "Address:  %s\n", key.Address().Hex())
	fmt.Fprintf(c.stdout, "Bech32:   %s\n", bech)
	return 0
}

func runToken(c *cli, args []string) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	subject := fs.String("subject", "", "account the token authenticates")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	issuer := fs.String("issuer", "", "iss claim")
	audience := fs.String("audience", "", "aud claim")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	secret := strings.TrimSpace(os.Getenv(envAuthSecret))
	if secret == "" {
		fmt.Fprintf(c.stderr, "Error: %s must hold the API HMAC secret\n", envAuthSecret)
		return 1
	}
	addr, err := crypto.ParseAccount(*subject)
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: --subject: %v\n", err)
		return 1
	}
	token, err := middleware.IssueToken(middleware.TokenRequest{
		Secret:   secret,
		Issuer:   *issuer,
		Audience: *audience,
		Subject:  addr,
		TTL:      *ttl,
	})
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(c.stdout, token)
	return 0
}
