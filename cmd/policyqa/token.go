package main

import (
	"errors"

	"github.com/spf13/cobra"

	"policyqa-go/pkg/token"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token bound to --user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.JWT.Secret == "" {
			return errNoSecret
		}
		tok, err := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours).GenerateToken(userID)
		if err != nil {
			return err
		}
		cmd.Println(tok)
		return nil
	},
}

var errNoSecret = errors.New("jwt.secret is not configured")

func init() {
	rootCmd.AddCommand(tokenCmd)
}
