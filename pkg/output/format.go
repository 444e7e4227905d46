// Package output provides utilities for formatting and displaying utilization charts.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/iwvelando/capacity-trend/internal/chart"
	"github.com/iwvelando/capacity-trend/pkg/datetime"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/width"
)

// PrettyFormat writes a human-readable rather than machine-readable table.
func PrettyFormat(w io.Writer, c *chart.Chart) error {
	p := message.NewPrinter(language.English)
	if _, err := fmt.Fprintf(w, "--- Utilization %s to %s ---\n", datetime.Format(c.Start), datetime.Format(c.End)); err != nil {
		return err
	}
	if len(c.Rows) == 0 {
		_, err := fmt.Fprintf(w, "No iterations with capacity data\n")
		return err
	}

	labelWidth := displayWidth("Iteration")
	for _, row := range c.Rows {
		labelWidth = max(labelWidth, displayWidth(row.Iteration))
	}
	fmt.Fprintf(w, "%s | Start      | Estimate   | Capacity   | Utilization | Trend\n", padRight("Iteration", labelWidth))
	fmt.Fprintf(w, "%s | __________ | __________ | __________ | ___________ | _______\n", strings.Repeat("_", labelWidth))
	for _, row := range c.Rows {
		trendValue := "-"
		if row.HasTrend {
			trendValue = p.Sprintf("%.2f%%", row.TrendValue)
		}
		label := padRight(row.Iteration, labelWidth)
		_, _ = p.Fprintf(w, "%s | %s | %10.2f | %10.2f | %10.2f%% | %s\n",
			label, datetime.Format(row.StartDate),
			row.Estimate, row.Capacity, row.UtilizationPct, trendValue)
	}

	if c.Trend != nil {
		_, err := p.Fprintf(w, "\nTrend: %s points per iteration (intercept %.2f, %d iterations)\n",
			fmt.Sprintf("%+.2f", c.Trend.Slope), c.Trend.Intercept, c.Trend.N)
		return err
	}
	_, err := fmt.Fprintf(w, "\nTrend: not enough iterations\n")
	return err
}

// displayWidth counts terminal columns: wide and fullwidth runes take two.
func displayWidth(s string) int {
	n := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}

func padRight(s string, columns int) string {
	if pad := columns - displayWidth(s); pad > 0 {
		return s + strings.Repeat(" ", pad)
	}
	return s
}

// CsvFormat writes the chart rows in comma-separated value format.
func CsvFormat(w io.Writer, c *chart.Chart) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"iteration", "start", "estimate", "capacity", "utilization", "trend"}); err != nil {
		return err
	}
	for _, row := range c.Rows {
		trendValue := ""
		if row.HasTrend {
			trendValue = formatFloat(row.TrendValue)
		}
		record := []string{
			row.Iteration,
			datetime.Format(row.StartDate),
			formatFloat(row.Estimate),
			formatFloat(row.Capacity),
			formatFloat(row.UtilizationPct),
			trendValue,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CsvString returns the CSV rendering of c.
func CsvString(c *chart.Chart) (string, error) {
	var sb strings.Builder
	if err := CsvFormat(&sb, c); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// JSONFormat writes the chart as indented JSON.
func JSONFormat(w io.Writer, c *chart.Chart) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
