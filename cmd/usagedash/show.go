package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ternarybob/usagedash/internal/app"
	"github.com/ternarybob/usagedash/internal/models"
	"github.com/ternarybob/usagedash/internal/storage/files"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the cached usage snapshot without scraping",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache := files.NewCacheStore(app.CachePath(config), logger)
		aggregate, err := cache.Read()
		if err != nil {
			return err
		}
		renderAggregate(os.Stdout, aggregate)
		return nil
	},
}

// renderAggregate prints one row per account
func renderAggregate(out io.Writer, aggregate *models.AggregateSnapshot) {
	if aggregate.LastUpdated == nil {
		fmt.Fprintln(out, "No usage data yet. Run `usagedash scrape` or start the server.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle("Updated %s", aggregate.LastUpdated.Local().Format("2006-01-02 15:04:05"))
	t.AppendHeader(table.Row{"#", "Account", "Status", "Session", "Resets In", "Weekly", "Resets On", "Extra Spent", "Extra Limit"})

	for _, snap := range aggregate.Accounts {
		row := table.Row{snap.AccountIndex, snap.AccountName, statusText(snap), "", "", "", "", "", ""}
		if s := snap.Session; s != nil {
			row[3], row[4] = percentText(s.Percent), stringText(s.ResetIn)
		}
		if w := snap.Weekly; w != nil {
			row[5], row[6] = percentText(w.Percent), stringText(w.ResetOn)
		}
		if e := snap.Extra; e != nil {
			row[7], row[8] = stringText(e.Spent), stringText(e.Limit)
		}
		t.AppendRow(row)
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}

func statusText(snap models.UsageSnapshot) string {
	if snap.Error == nil {
		return string(snap.Status)
	}
	return fmt.Sprintf("%s: %s", snap.Status, truncate(*snap.Error, 60))
}

func percentText(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%g%%", *p)
}

func stringText(s *string) string {
	if s == nil {
		return "-"
	}
	return strings.TrimPrefix(*s, "Resets in ")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
