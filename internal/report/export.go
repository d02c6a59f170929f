package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Exporter renders report rows into a file under the given directory
// and returns the written path.
type Exporter interface {
	Export(titles []PatchTitle, dir string) (string, error)
}

// reportSubdir is created under the chosen output directory so report
// files do not mix with whatever else lives there.
const reportSubdir = "Patch-Reports"

func buildTable(titles []PatchTitle) table.Writer {
	t := table.NewWriter()
	t.AppendHeader(table.Row{
		"Title", "Released", "Hosts Patched", "Missing Patch",
		"Latest Version", "Completion Percent", "Total Hosts",
	})

	for _, row := range titles {
		t.AppendRow(table.Row{
			row.Title,
			row.ReleasedDate,
			row.HostsPatched,
			row.MissingPatch,
			row.LatestVersion,
			fmt.Sprintf("%.2f", row.CompletionPercent),
			row.TotalHosts,
		})
	}

	return t
}

// reportPath creates <dir>/Patch-Reports and returns the full path for
// a timestamped report file with the given extension.
func reportPath(dir, dateFormat, ext string, now time.Time) (string, error) {
	reportsDir := filepath.Join(dir, reportSubdir)
	if err := os.MkdirAll(reportsDir, 0o755); err != nil {
		return "", fmt.Errorf("creating reports directory: %w", err)
	}

	stamp := strings.ReplaceAll(now.Format(dateFormat), " ", "-")
	name := fmt.Sprintf("patch-report-%s.%s", stamp, ext)

	return filepath.Join(reportsDir, name), nil
}

// CSVExporter writes report rows as a spreadsheet-importable CSV file.
type CSVExporter struct {
	// DateFormat names the report file; defaults to ReleaseDateFormat.
	DateFormat string

	// now is replaceable in tests.
	now func() time.Time
}

func (e *CSVExporter) Export(titles []PatchTitle, dir string) (string, error) {
	path, err := reportPath(dir, e.dateFormat(), "csv", e.clock()())
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, []byte(buildTable(titles).RenderCSV()+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("writing CSV report: %w", err)
	}

	return path, nil
}

func (e *CSVExporter) dateFormat() string {
	if e.DateFormat == "" {
		return ReleaseDateFormat
	}

	return e.DateFormat
}

func (e *CSVExporter) clock() func() time.Time {
	if e.now == nil {
		return time.Now
	}

	return e.now
}

// HTMLExporter writes report rows as a standalone HTML table, the
// print-friendly sibling of the CSV export.
type HTMLExporter struct {
	DateFormat string

	now func() time.Time
}

const htmlHeader = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Patch Report</title>
<style>
table.go-pretty-table { border-collapse: collapse; font-family: sans-serif; }
table.go-pretty-table th, table.go-pretty-table td { border: 1px solid #ccc; padding: 4px 10px; }
table.go-pretty-table th { background: #2d2d2d; color: #fff; }
</style>
</head>
<body>
`

const htmlFooter = "\n</body>\n</html>\n"

func (e *HTMLExporter) Export(titles []PatchTitle, dir string) (string, error) {
	path, err := reportPath(dir, e.dateFormat(), "html", e.clock()())
	if err != nil {
		return "", err
	}

	t := buildTable(titles)
	t.SetHTMLCSSClass("go-pretty-table")

	content := htmlHeader + t.RenderHTML() + htmlFooter
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing HTML report: %w", err)
	}

	return path, nil
}

func (e *HTMLExporter) dateFormat() string {
	if e.DateFormat == "" {
		return ReleaseDateFormat
	}

	return e.DateFormat
}

func (e *HTMLExporter) clock() func() time.Time {
	if e.now == nil {
		return time.Now
	}

	return e.now
}
