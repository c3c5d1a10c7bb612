package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// eventsCmd tails a task's event stream: a replay of everything already
// recorded, then every event appended from here on, until interrupted. Only
// works in gateway mode — direct-store mode has no live stream to tail.
func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events <task-id>",
		Short: "Replay and tail a task's event log over the gateway's websocket endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if viper.GetString("store") != "" {
				return fmt.Errorf("taskctl: events requires gateway mode, not --store")
			}
			taskID := args[0]
			client := newGatewayClient(viper.GetString("gateway-url"), viper.GetString("api-key"))

			tok, err := client.issueStreamToken(context.Background(), taskID)
			if err != nil {
				return err
			}

			wsURL := strings.Replace(client.baseURL, "http", "ws", 1) +
				"/tasks/" + taskID + "/events?token=" + tok.Token

			conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			if err != nil {
				return fmt.Errorf("taskctl: connect to event stream: %w", err)
			}
			defer conn.Close()

			for {
				var msg struct {
					TaskID string         `json:"taskId"`
					Type   string         `json:"type"`
					Data   map[string]any `json:"data,omitempty"`
					Seq    uint64         `json:"seq"`
				}
				if err := conn.ReadJSON(&msg); err != nil {
					return nil
				}
				fmt.Printf("[%d] %s %v\n", msg.Seq, msg.Type, msg.Data)
			}
		},
	}
	return cmd
}
