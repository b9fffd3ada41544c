package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/noah-isme/patient-progress-api/internal/catalog"
	"github.com/noah-isme/patient-progress-api/internal/models"
	"github.com/noah-isme/patient-progress-api/internal/service"
	"github.com/noah-isme/patient-progress-api/pkg/export"
)

type outputFormat string

const (
	outputTable outputFormat = "table"
	outputJSON  outputFormat = "json"
	outputCSV   outputFormat = "csv"
)

func parseOutput(raw string) (outputFormat, error) {
	switch f := outputFormat(raw); f {
	case outputTable, outputJSON, outputCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or csv)", raw)
	}
}

var (
	green  = lipgloss.Color("#a6e3a1")
	red    = lipgloss.Color("#f38ba8")
	subtle = lipgloss.Color("#a6adc8")
	border = lipgloss.Color("#45475a")

	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#74c7ec")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(subtle)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func deltaStyle(delta int) lipgloss.Style {
	switch {
	case delta > 0:
		return lipgloss.NewStyle().Foreground(green)
	case delta < 0:
		return lipgloss.NewStyle().Foreground(red)
	default:
		return mutedStyle
	}
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(border)).
		Headers(headers...)
}

func renderPatients(w io.Writer, patients []models.PatientSummary) error {
	t := newTable("ID", "Name").StyleFunc(func(row, _ int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		return cellStyle
	})
	for _, p := range patients {
		t.Row(p.ID, p.Name)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func renderReport(w io.Writer, report *models.DiffReport, format outputFormat) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case outputCSV:
		payload, err := export.NewCSVExporter().Render(service.ReportDataset(report))
		if err != nil {
			return err
		}
		_, err = w.Write(payload)
		return err
	}

	t := newTable("Item", "Baseline", "Follow-up", "Delta", "Classification").StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		if col == 3 && row >= 0 && row < len(report.Entries) {
			if d := report.Entries[row].Delta; d.Comparable() {
				return deltaStyle(d.Value).Padding(0, 1)
			}
			return mutedStyle.Padding(0, 1)
		}
		return cellStyle
	})
	for _, e := range report.Entries {
		t.Row(e.Label, e.BaselineValue.String(), e.FollowUpValue.String(), e.Delta.String(), e.Classification)
	}

	s := report.Summary
	_, err := fmt.Fprintf(w, "%s\n%s\n%s\n",
		titleStyle.Render(fmt.Sprintf("%s (%s): %s → %s", report.PatientName, report.PatientID, report.BaselinePeriod, report.FollowUpPeriod)),
		t.Render(),
		mutedStyle.Render(fmt.Sprintf("%d improved, %d unchanged, %d regressed, %d not evaluated, %d errors",
			s.Improved, s.Unchanged, s.Regressed, s.NotEvaluated, s.Errors)),
	)
	return err
}

func renderCatalog(w io.Writer, cat *catalog.Catalog) error {
	_, _ = fmt.Fprintln(w, titleStyle.Render("Catalog "+cat.Version))
	for i, item := range cat.Items {
		_, _ = fmt.Fprintf(w, "%3d  %s\n", i+1, item)
	}
	t := newTable("From", "To", "Description")
	for _, b := range cat.Buckets {
		t.Row(strconv.FormatFloat(b.Lower, 'f', -1, 64), strconv.FormatFloat(b.Upper, 'f', -1, 64), b.Description)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
