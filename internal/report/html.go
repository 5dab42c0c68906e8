package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kuhlman-labs/migration-auditor/internal/models"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var pageTemplate = template.Must(template.New("final_report.html.tmpl").Funcs(template.FuncMap{
	"status":      statusLabel,
	"statusClass": statusClass,
	"names":       joinOrDash,
	"count":       func(names []string) int { return len(names) },
	"stamp":       func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
}).ParseFS(templateFS, "templates/final_report.html.tmpl"))

func statusClass(s Status) string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "fail"
	default:
		return "nodata"
	}
}

// page is the template's view of Data.
type page struct {
	*Data
	Matched []Row
	Summary Totals
	Stages  []models.StageSummary
}

// RenderHTML writes the report page for d to w.
func RenderHTML(w io.Writer, d *Data) error {
	rows := d.Rows()
	p := page{Data: d, Matched: rows, Summary: d.Totals(rows)}
	if d.Manifest != nil {
		p.Stages = d.Manifest.Stages
	}
	if err := pageTemplate.Execute(w, p); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

// WriteHTML renders d into dir/name and returns the written path.
func WriteHTML(d *Data, dir, name string) (string, error) {
	var buf bytes.Buffer
	if err := RenderHTML(&buf, d); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}
