package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/edgar-monitor/internal/api"
	"github.com/sells-group/edgar-monitor/internal/model"
)

var (
	tokenUser  string
	tokenTier  string
	tokenAdmin bool
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API bearer token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Server.JWTSecret == "" {
			return eris.New("server.jwt_secret is required")
		}
		if tokenUser == "" {
			return eris.New("--user is required")
		}
		tier := model.UserTier(tokenTier)
		if tier != model.TierFree && tier != model.TierPro {
			return eris.Errorf("unknown tier %q", tokenTier)
		}

		token, err := api.SignToken(cfg.Server.JWTSecret, tokenUser, tier, tokenAdmin, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id (required)")
	tokenCmd.Flags().StringVar(&tokenTier, "tier", "free", "access tier (free or pro)")
	tokenCmd.Flags().BoolVar(&tokenAdmin, "admin", false, "grant the admin claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
