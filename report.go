package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"hark/apps/backend/internal/processor"
	"hark/apps/backend/internal/sink"
)

// maxErrorWidth wraps long delivery errors in the results table.
const maxErrorWidth = 60

func renderReport(r *processor.Report) string {
	var b strings.Builder

	summary := table.NewWriter()
	summary.SetStyle(table.StyleLight)
	summary.AppendRows([]table.Row{
		{"State", r.State},
		{"Fetched", r.Fetched},
		{"Analyzed", r.Analyzed},
		{"Delivered", fmt.Sprintf("%d/%d", r.Delivered(), len(r.Results))},
		{"Checkpoint", committed(r)},
		{"Duration", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond)},
	})
	if r.Skipped {
		summary.AppendRow(table.Row{"Skipped", "no source or sink configured"})
	}
	if r.FailedAt != "" {
		summary.AppendRow(table.Row{"Failed at", r.FailedAt})
	}
	b.WriteString(summary.Render())
	b.WriteString("\n")

	failed := sink.Failed(r.Results)
	if len(failed) == 0 {
		return b.String()
	}

	results := table.NewWriter()
	results.SetStyle(table.StyleLight)
	results.AppendHeader(table.Row{"Key", "Status", "Error"})
	results.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, WidthMax: maxErrorWidth, WidthMaxEnforcer: text.WrapSoft},
	})
	for _, res := range failed {
		results.AppendRow(table.Row{res.Key, res.Status, res.Error})
	}
	results.AppendFooter(table.Row{"", "failed", len(failed)})
	b.WriteString(results.Render())
	b.WriteString("\n")
	return b.String()
}

func committed(r *processor.Report) string {
	if r.Committed {
		return "committed"
	}
	return "unchanged"
}
