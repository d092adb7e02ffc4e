package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/filebot/config"
	"github.com/shashiranjanraj/filebot/pkg/auth"
)

var (
	tokenAdminID int64
	tokenTTL     time.Duration
)

// filebot token:issue: mint a bearer token for the admin API.
var tokenIssueCmd = &cobra.Command{
	Use:   "token:issue",
	Short: "Print an admin API token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !slices.Contains(config.AdminIDs(), tokenAdminID) {
			return fmt.Errorf("%d is not listed in ADMIN_IDS", tokenAdminID)
		}
		tok, err := auth.GenerateToken(tokenAdminID, auth.RoleAdmin, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	tokenIssueCmd.Flags().Int64Var(&tokenAdminID, "admin", 0, "Telegram id of the admin")
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = tokenIssueCmd.MarkFlagRequired("admin")
}
