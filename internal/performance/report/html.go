// Package report renders load test results as a standalone HTML page.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"time"

	"github.com/faithtech/sitewalk/internal/performance/engine"
	"github.com/faithtech/sitewalk/internal/performance/metrics"
)

// GenerateHTML generates an HTML report from test results and writes it to a file.
func GenerateHTML(result *engine.TestResult, outputPath string) error {
	html, err := GenerateHTMLString(result)
	if err != nil {
		return fmt.Errorf("failed to generate HTML: %w", err)
	}

	if err := os.WriteFile(outputPath, []byte(html), 0644); err != nil {
		return fmt.Errorf("failed to write HTML file: %w", err)
	}
	return nil
}

// GenerateHTMLString generates an HTML report and returns it as a string.
func GenerateHTMLString(result *engine.TestResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("result cannot be nil")
	}

	tmpl, err := template.New("report").Funcs(templateFuncs()).Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, result); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDuration": formatDuration,
		"formatLatency":  formatLatency,
		"formatBytes":    formatBytes,
		"successRate":    successRate,
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm %ds", mins, secs)
}

func formatLatency(d time.Duration) string {
	if d == 0 {
		return "0"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		ms := float64(d.Microseconds()) / 1000.0
		if ms < 10 {
			return fmt.Sprintf("%.2fms", ms)
		}
		return fmt.Sprintf("%.1fms", ms)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// successRate returns the share of successful requests as a percentage.
func successRate(m *metrics.Snapshot) float64 {
	if m == nil || m.TotalRequests == 0 {
		return 0
	}
	return float64(m.SuccessRequests) / float64(m.TotalRequests) * 100
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Name}} - Load Test Report</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; background: #f8fafc; color: #1e293b; margin: 0; }
.container { max-width: 1100px; margin: 0 auto; padding: 2rem; }
.cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(180px, 1fr)); gap: 1rem; margin: 1.5rem 0; }
.card { background: #fff; border: 1px solid #e2e8f0; border-radius: 8px; padding: 1rem; }
.card .label { color: #64748b; font-size: 0.85rem; }
.card .value { font-size: 1.5rem; font-weight: 600; }
table { width: 100%; border-collapse: collapse; background: #fff; margin-bottom: 2rem; }
th, td { text-align: left; padding: 0.5rem 0.75rem; border-bottom: 1px solid #e2e8f0; }
th { background: #f1f5f9; }
.passed { color: #16a34a; }
.failed { color: #dc2626; }
</style>
</head>
<body>
<div class="container">
<h1>{{.Name}}</h1>
<p>{{.Host}} &middot; {{.Executor}} &middot; {{.StartTime.Format "2006-01-02 15:04:05"}} &middot; {{formatDuration .Duration}}</p>
{{if .Passed}}<h2 class="passed">✓ PASSED</h2>{{else}}<h2 class="failed">✗ FAILED</h2>{{end}}

{{with .Metrics}}
<div class="cards">
<div class="card"><div class="label">Total Requests</div><div class="value">{{.TotalRequests}}</div></div>
<div class="card"><div class="label">Success Rate</div><div class="value">{{printf "%.2f" (successRate .)}}%</div></div>
<div class="card"><div class="label">Throughput</div><div class="value">{{printf "%.2f" .RPS}} req/s</div></div>
<div class="card"><div class="label">P95 Latency</div><div class="value">{{formatLatency .Latency.P95}}</div></div>
<div class="card"><div class="label">Transferred</div><div class="value">{{formatBytes .TotalBytes}}</div></div>
</div>
{{end}}

<h2>Pages</h2>
<table>
<tr><th>Path</th><th>Requests</th><th>Failed</th><th>Min</th><th>P50</th><th>P95</th><th>P99</th><th>Max</th></tr>
{{range .Pages}}<tr><td>{{.Name}}</td><td>{{.Count}}</td><td>{{.Failed}}</td><td>{{formatLatency .Latency.Min}}</td><td>{{formatLatency .Latency.P50}}</td><td>{{formatLatency .Latency.P95}}</td><td>{{formatLatency .Latency.P99}}</td><td>{{formatLatency .Latency.Max}}</td></tr>
{{end}}</table>

{{if .Failures}}
<h2>Failures</h2>
<table>
<tr><th>Count</th><th>Path</th><th>Kind</th><th>Last message</th></tr>
{{range .Failures}}<tr><td>{{.Count}}</td><td>{{.Name}}</td><td>{{.Kind}}</td><td>{{.LastMessage}}</td></tr>
{{end}}</table>
{{end}}

{{if .Thresholds}}
<h2>Thresholds</h2>
<table>
<tr><th></th><th>Metric</th><th>Expression</th><th>Actual</th></tr>
{{range .Thresholds}}<tr><td>{{if .Passed}}<span class="passed">✓</span>{{else}}<span class="failed">✗</span>{{end}}</td><td>{{.Metric}}</td><td>{{.Expression}}</td><td>{{.Value}}</td></tr>
{{end}}</table>
{{end}}
</div>
</body>
</html>
`
