package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/viper"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTask(t wireTask) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendRow(table.Row{"Task ID", t.TaskID})
	tw.AppendRow(table.Row{"Goal", t.Goal})
	tw.AppendRow(table.Row{"Status", t.Status})
	tw.AppendRow(table.Row{"Priority", t.Priority})
	tw.AppendRow(table.Row{"Created", t.CreatedAt})
	if t.StartedAt != "" {
		tw.AppendRow(table.Row{"Started", t.StartedAt})
	}
	if t.CompletedAt != "" {
		tw.AppendRow(table.Row{"Completed", t.CompletedAt})
	}
	if t.Error != "" {
		tw.AppendRow(table.Row{"Error", t.Error})
	}
	tw.Render()
	if len(t.Events) > 0 {
		fmt.Println()
		ew := table.NewWriter()
		ew.SetOutputMirror(os.Stdout)
		ew.AppendHeader(table.Row{"Seq", "Type", "Timestamp"})
		for _, ev := range t.Events {
			ew.AppendRow(table.Row{ev.Seq, ev.Type, ev.Timestamp.Format("15:04:05")})
		}
		ew.Render()
	}
	return nil
}

func printTaskList(list wireTaskList) error {
	if viper.GetBool("json") {
		return printJSON(list)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Task ID", "Goal", "Status", "Priority", "Created"})
	for _, t := range list.Items {
		tw.AppendRow(table.Row{t.TaskID, t.Goal, t.Status, t.Priority, t.CreatedAt})
	}
	tw.Render()
	return nil
}
