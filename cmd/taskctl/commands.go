package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// backend is implemented by both gatewayClient (HTTP mode) and directStore
// (local SQLite mode), so every command works the same way regardless of
// which --store/--gateway-url the operator picked.
type backend interface {
	createTask(ctx context.Context, body createTaskBody) (createTaskResult, error)
	getTask(ctx context.Context, id string) (wireTask, error)
	listTasks(ctx context.Context, status string, limit, offset int) (wireTaskList, error)
	cancelTask(ctx context.Context, id string) (wireTask, error)
}

// withBackend opens a directStore if --store is set, otherwise a
// gatewayClient, runs fn, and closes the store afterward if one was opened.
func withBackend(fn func(context.Context, backend) error) error {
	ctx := context.Background()
	if path := viper.GetString("store"); path != "" {
		ds, err := openDirectStore(path)
		if err != nil {
			return fmt.Errorf("taskctl: open store %s: %w", path, err)
		}
		defer ds.close()
		return fn(ctx, ds)
	}
	client := newGatewayClient(viper.GetString("gateway-url"), viper.GetString("api-key"))
	return fn(ctx, client)
}

func submitCmd() *cobra.Command {
	var goal string
	var priority int
	var labels []string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(goal) == "" {
				return fmt.Errorf("--goal is required")
			}
			return withBackend(func(ctx context.Context, b backend) error {
				res, err := b.createTask(ctx, createTaskBody{
					Goal:     goal,
					Priority: priority,
					Labels:   parseLabels(labels),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Println("task submitted:", res.TaskID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&goal, "goal", "", "the goal statement for the task")
	cmd.Flags().IntVar(&priority, "priority", 0, "dispatch priority, higher runs first")
	cmd.Flags().StringArrayVar(&labels, "label", nil, "key=value label, repeatable")
	_ = cmd.MarkFlagRequired("goal")
	return cmd
}

func listCmd() *cobra.Command {
	var status string
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(func(ctx context.Context, b backend) error {
				list, err := b.listTasks(ctx, status, limit, offset)
				if err != nil {
					return err
				}
				return printTaskList(list)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (queued, running, succeeded, failed, cancelled)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max results")
	cmd.Flags().IntVar(&offset, "offset", 0, "result offset")
	return cmd
}

func getCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <task-id>",
		Short: "Show a task's full state and event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(func(ctx context.Context, b backend) error {
				t, err := b.getTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	return cmd
}

func cancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a running or queued task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(func(ctx context.Context, b backend) error {
				t, err := b.cancelTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	return cmd
}

// parseLabels turns repeated --label key=value flags into a map, silently
// dropping entries without an "=" rather than erroring, since a malformed
// label is never worth failing the whole submission over.
func parseLabels(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}
