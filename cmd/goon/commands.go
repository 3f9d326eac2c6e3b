package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"goon_chat/pkg/ai"
	"goon_chat/pkg/chat"
	"goon_chat/pkg/config"

	"github.com/olekukonko/tablewriter"
)

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func printActions(out io.Writer) {
	table := newTable(out, "Key", "Action", "Description", "Sends")
	for i, action := range chat.QuickActions() {
		table.Append([]string{strconv.Itoa(i + 1), action.Title, action.Description, action.Query})
	}
	table.Render()
}

func printProviders(out io.Writer) {
	table := newTable(out, "Provider", "Name", "Auth", "Description")
	for _, b := range ai.Backends() {
		table.Append([]string{string(b.Type), b.Name, b.Auth, b.Description})
	}
	table.Render()
}

func printModels(ctx context.Context, out io.Writer, cfg config.Config, query string, refresh bool) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	models, err := ai.NewCatalog(cfg.Providers.OpenRouter.APIURL).Models(ctx, refresh)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}

	table := newTable(out, "ID", "Name", "Context", "Prompt", "Completion")
	for _, m := range ai.FilterModels(models, query) {
		table.Append([]string{
			m.ID,
			m.Name,
			strconv.Itoa(m.ContextLength),
			m.Pricing["prompt"],
			m.Pricing["completion"],
		})
	}
	table.Render()
	return nil
}
