package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"github.com/nao1215/markdown"
)

// Format names an output encoding of the report.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// FormatFromPath picks the format from a file extension. Unknown extensions
// fall back to CSV.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".txt", ".text":
		return FormatText
	case ".md", ".markdown":
		return FormatMarkdown
	case ".html", ".htm":
		return FormatHTML
	}
	return FormatCSV
}

// Write encodes r to w in the given format.
func Write(w io.Writer, f Format, r *Report) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, r)
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatText:
		return WriteText(w, r)
	case FormatMarkdown:
		return WriteMarkdown(w, r)
	case FormatHTML:
		return WriteHTML(w, r)
	}
	return fmt.Errorf("unknown report format %q", f)
}

// WriteFile writes r to path in the format implied by its extension.
func WriteFile(path string, r *Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := Write(f, FormatFromPath(path), r); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report %s: %w", path, err)
	}
	return nil
}

// cells renders the table body: one row per query and the Averages row.
// Per-query overlap is an integer; averages keep one decimal.
func (r *Report) cells() [][]string {
	out := make([][]string, 0, len(r.Rows)+1)
	for _, row := range r.Rows {
		out = append(out, []string{
			row.Label,
			strconv.Itoa(row.OverlapCount),
			strconv.FormatFloat(row.OverlapPercent, 'f', 1, 64),
			strconv.FormatFloat(row.Correlation, 'f', 2, 64),
		})
	}
	return append(out, []string{
		"Averages",
		strconv.FormatFloat(r.Averages.OverlapCount, 'f', 1, 64),
		strconv.FormatFloat(r.Averages.OverlapPercent, 'f', 1, 64),
		strconv.FormatFloat(r.Averages.Correlation, 'f', 2, 64),
	})
}

// WriteCSV writes the comma-separated report with the fixed header.
func WriteCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(r.cells()); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

const textTmpl = `SERP Comparison Report
----------------------
{{- if .Candidate}}
Candidate:  {{.Candidate}}
{{- end}}
{{- if .Reference}}
Reference:  {{.Reference}}
{{- end}}
Generated:  {{.GeneratedAt.Format "2006-01-02 15:04:05"}}
Queries:    {{len .Rows}}

{{range .Rows -}}
{{printf "%-10s" .Label}} overlap {{printf "%2d" .OverlapCount}}  {{printf "%5.1f" .OverlapPercent}}%  rho {{printf "%5.2f" .Correlation}}  {{.Query}}
{{else -}}
No queries.
{{end}}
Averages:   overlap {{printf "%.1f" .Averages.OverlapCount}}  {{printf "%.1f" .Averages.OverlapPercent}}%  rho {{printf "%.2f" .Averages.Correlation}}
`

var textReport = template.Must(template.New("textReport").Parse(textTmpl))

// WriteText writes a human-readable summary.
func WriteText(w io.Writer, r *Report) error {
	if err := textReport.Execute(w, r); err != nil {
		return fmt.Errorf("render text report: %w", err)
	}
	return nil
}

// WriteMarkdown writes the report as a Markdown document with one table.
func WriteMarkdown(w io.Writer, r *Report) error {
	md := markdown.NewMarkdown(w)
	md.H1("SERP Comparison Report")
	md.PlainText("")

	if r.Candidate != "" || r.Reference != "" {
		md.Table(markdown.TableSet{
			Header: []string{"Property", "Value"},
			Rows: [][]string{
				{"Candidate", r.Candidate},
				{"Reference", r.Reference},
				{"Generated", r.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
			},
		})
		md.PlainText("")
	}

	md.H2("Results")
	md.PlainText("")

	rows := r.cells()
	for i := range r.Rows {
		rows[i] = append(rows[i], escapeCell(r.Rows[i].Query))
	}
	last := len(rows) - 1
	rows[last][0] = "**" + rows[last][0] + "**"
	rows[last] = append(rows[last], "")

	md.Table(markdown.TableSet{
		Header: append(append([]string{}, Header...), "Query"),
		Rows:   rows,
	})

	if err := md.Build(); err != nil {
		return fmt.Errorf("render markdown report: %w", err)
	}
	return nil
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>SERP Comparison Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
  tr.avg td { font-weight: bold; }
</style>
</head>
<body>
  <h1>SERP Comparison Report</h1>
  {{- if or .Candidate .Reference}}
  <p><strong>{{.Candidate}}</strong> compared with <strong>{{.Reference}}</strong></p>
  {{- end}}
  <p><strong>Generated:</strong> {{.GeneratedAt.Format "2006-01-02 15:04:05"}}</p>

  <div class="stat-card">
    <div>Queries</div>
    <div class="stat-val">{{len .Rows}}</div>
  </div>
  <div class="stat-card">
    <div>Average Overlap</div>
    <div class="stat-val">{{printf "%.1f" .Averages.OverlapPercent}}%</div>
  </div>
  <div class="stat-card">
    <div>Average Spearman</div>
    <div class="stat-val" style="color: {{if lt .Averages.Correlation 0.0}}red{{else}}green{{end}};">{{printf "%.2f" .Averages.Correlation}}</div>
  </div>

  <table>
    <tr>{{range .Header}}<th>{{.}}</th>{{end}}<th>Query</th></tr>
    {{- range .Rows}}
    <tr><td>{{.Label}}</td><td>{{.OverlapCount}}</td><td>{{printf "%.1f" .OverlapPercent}}</td><td>{{printf "%.2f" .Correlation}}</td><td>{{.Query}}</td></tr>
    {{- end}}
    <tr class="avg"><td>Averages</td><td>{{printf "%.1f" .Averages.OverlapCount}}</td><td>{{printf "%.1f" .Averages.OverlapPercent}}</td><td>{{printf "%.2f" .Averages.Correlation}}</td><td></td></tr>
  </table>
</body>
</html>
`

var htmlReport = htmltemplate.Must(htmltemplate.New("htmlReport").Parse(htmlTmpl))

// WriteHTML writes a standalone HTML page.
func WriteHTML(w io.Writer, r *Report) error {
	data := struct {
		*Report
		Header []string
	}{r, Header}
	if err := htmlReport.Execute(w, data); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}
