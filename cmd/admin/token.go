package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/irsalhamdi/course-checkout/core/claims"
	"github.com/spf13/cobra"
)

// tokenCmd issues a token signed with the configured secret, for local
// testing against a running server.
func tokenCmd() *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			v, err := claims.NewVerifier(cfg.Auth.JWTSecret)
			if err != nil {
				return err
			}

			now := time.Now()
			tok, err := v.Sign(claims.Claims{
				UserID: userID,
				Role:   strings.ToUpper(role),
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   userID,
					IssuedAt:  jwt.NewNumericDate(now),
					ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
				},
			})
			if err != nil {
				return fmt.Errorf("signing token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id to put in the token")
	cmd.Flags().StringVar(&role, "role", claims.RoleUser, "Role, USER or ADMIN")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")

	return cmd
}
