package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thruflo/orchcore/internal/auth"
)

// gatewayCmd groups operator utilities for running a gateway, as distinct
// from the task-facing submit/list/get/cancel/events commands.
func gatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Gateway operator utilities",
	}
	cmd.AddCommand(gatewayHashKeyCmd())
	cmd.AddCommand(gatewayGenerateKeyCmd())
	return cmd
}

// gatewayHashKeyCmd lets an operator pre-hash ORCH_GATEWAY_API_KEY out of
// band, so the cleartext key never has to be set in the gateway process's
// own environment.
func gatewayHashKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-key <key>",
		Short: "Hash an API key the way the gateway expects it stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashAPIKey(args[0])
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
	return cmd
}

func gatewayGenerateKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate-key",
		Short: "Generate a new random API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := auth.GenerateAPIKey()
			if err != nil {
				return err
			}
			fmt.Println(key)
			return nil
		},
	}
	return cmd
}
