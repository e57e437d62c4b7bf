package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gomodmail/internal/api"
	"gomodmail/internal/config"
)

var tokenCmd = &cobra.Command{
	Use:   "token <operator-id> <handle>",
	Short: "Issue an API token for a staff member",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := api.NewTokenIssuer(config.LoadConfig()).GenerateToken(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}
