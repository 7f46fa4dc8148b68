package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/scagate/internal/sca/app"
	"github.com/aussiebroadwan/scagate/pkg/cryptox"
	"github.com/aussiebroadwan/scagate/pkg/jwtx"
)

// keygenCmd creates a development signing key and the JWKS the gateway
// verifies bearer tokens with (SCA_OAUTH_JWKS_FILE).
func keygenCmd() *cobra.Command {
	var keyOut, jwksOut, kid string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an Ed25519 key pair for development bearer tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			pemKey, err := cryptox.GenerateEd25519Key()
			if err != nil {
				return err
			}
			signer, err := jwtx.NewSignerEdDSA(kid, pemKey)
			if err != nil {
				return err
			}

			raw, err := json.MarshalIndent(jwtx.JWKS{Keys: []jwtx.JWK{signer.PublicJWK()}}, "", "  ")
			if err != nil {
				return err
			}

			if err := os.WriteFile(keyOut, pemKey, 0600); err != nil {
				return fmt.Errorf("write private key: %w", err)
			}
			if err := os.WriteFile(jwksOut, raw, 0644); err != nil {
				return fmt.Errorf("write jwks: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "private key: %s\njwks: %s\nkid: %s\n", keyOut, jwksOut, kid)
			return nil
		},
	}

	cmd.Flags().StringVar(&keyOut, "key", "oauth-key.pem", "where to write the PKCS8 private key")
	cmd.Flags().StringVar(&jwksOut, "jwks", "oauth-jwks.json", "where to write the public JWKS")
	cmd.Flags().StringVar(&kid, "kid", "dev-1", "key id")

	return cmd
}

// tokenCmd mints an access token the way the bank's authorisation server
// would, for trying the OAUTH approach locally.
func tokenCmd() *cobra.Command {
	var keyFile, kid, psuID, issuer, audience, scope string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a development bearer token for a PSU",
		RunE: func(cmd *cobra.Command, args []string) error {
			pemKey, err := os.ReadFile(keyFile)
			if err != nil {
				return fmt.Errorf("read private key: %w", err)
			}
			signer, err := jwtx.NewSignerEdDSA(kid, pemKey)
			if err != nil {
				return err
			}

			var aud []string
			if audience != "" {
				aud = []string{audience}
			}
			token, err := signer.Sign(jwtx.NewAccessClaims(psuID, scope, ttl, issuer, aud, time.Now()))
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&keyFile, "key", "oauth-key.pem", "PKCS8 Ed25519 private key")
	cmd.Flags().StringVar(&kid, "kid", "dev-1", "key id, must match the JWKS")
	cmd.Flags().StringVar(&psuID, "psu", "", "PSU id the token is issued to")
	cmd.Flags().StringVar(&issuer, "issuer", "", "iss claim")
	cmd.Flags().StringVar(&audience, "audience", "", "aud claim")
	cmd.Flags().StringVar(&scope, "scope", "", "scope claim")
	cmd.Flags().DurationVar(&ttl, "ttl", jwtx.DefaultAccessTokenTTL, "token lifetime")
	_ = cmd.MarkFlagRequired("psu")

	return cmd
}

// hashPasswordCmd prints a passwordHash for the mock bank fixtures, peppered
// with the configured pepper file.
func hashPasswordCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Hash a PSU password for the mock bank fixtures",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.LoadConfig(*envFile)
			cryptox.SetPepperPath(cfg.PepperFile)

			hash, err := cryptox.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
