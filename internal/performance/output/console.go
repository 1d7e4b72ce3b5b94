// Package output renders load test progress and results to a terminal.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/faithtech/sitewalk/internal/performance/engine"
	"github.com/faithtech/sitewalk/internal/performance/executor"
	"github.com/faithtech/sitewalk/internal/performance/metrics"
)

const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"

	ruleWidth      = 56
	boxHorizontal  = "━"
	progressFilled = "█"
	progressEmpty  = "░"
)

// ColorScheme defines the colors used for different parts of the output.
type ColorScheme struct {
	Title   *color.Color
	Rule    *color.Color
	Value   *color.Color
	Latency *color.Color
	Phase   *color.Color
	Dim     *color.Color
	Success *color.Color
	Warn    *color.Color
	Error   *color.Color
}

// DefaultColorScheme returns the default color scheme.
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Title:   color.New(color.Bold),
		Rule:    color.New(color.FgCyan),
		Value:   color.New(color.FgCyan),
		Latency: color.New(color.FgBlue),
		Phase:   color.New(color.FgMagenta),
		Dim:     color.New(color.Faint),
		Success: color.New(color.FgGreen, color.Bold),
		Warn:    color.New(color.FgYellow),
		Error:   color.New(color.FgRed, color.Bold),
	}
}

// NoColorScheme returns a color scheme with all colors disabled.
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range []*color.Color{
		scheme.Title, scheme.Rule, scheme.Value, scheme.Latency, scheme.Phase,
		scheme.Dim, scheme.Success, scheme.Warn, scheme.Error,
	} {
		c.DisableColor()
	}
	return scheme
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	TestName      string
	ExecutorType  string
	TotalDuration time.Duration
	Writer        io.Writer
	Quiet         bool
	NoColor       bool
	ForceTTY      bool
}

// Console prints live progress and the final summary.
type Console struct {
	testName      string
	executorType  string
	totalDuration time.Duration
	writer        io.Writer
	isTTY         bool
	quiet         bool
	colors        *ColorScheme

	mu          sync.Mutex
	linesOutput int
}

// NewConsole creates a console writer. Colors are used only on a terminal
// and when NO_COLOR is unset.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	isTTY := cfg.ForceTTY || isTerminal(cfg.Writer)
	colors := DefaultColorScheme()
	if cfg.NoColor || !isTTY || os.Getenv("NO_COLOR") != "" {
		colors = NoColorScheme()
	}

	return &Console{
		testName:      cfg.TestName,
		executorType:  cfg.ExecutorType,
		totalDuration: cfg.TotalDuration,
		writer:        cfg.Writer,
		isTTY:         isTTY,
		quiet:         cfg.Quiet,
		colors:        colors,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the test header.
func (c *Console) PrintHeader(host string) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := strings.Repeat(boxHorizontal, ruleWidth)
	c.writeln(c.colors.Rule.Sprint(line))
	c.writeln(c.colors.Title.Sprintf("%s - Running [%s]", c.testName, c.executorType))
	c.writeln(c.colors.Dim.Sprintf("Target: %s  Planned: %s", host, formatDuration(c.totalDuration)))
	c.writeln(c.colors.Rule.Sprint(line))
	c.writeln("")
}

// Progress is the live state shown while a test runs.
type Progress struct {
	Progress      float64
	Elapsed       time.Duration
	ActiveVUs     int
	TargetVUs     int
	TotalRequests int64
	Failed        int64
	ErrorRate     float64
	RPS           float64
	P95           time.Duration
	Phase         string
}

// ProgressFrom builds a Progress from engine state.
func ProgressFrom(snap *metrics.Snapshot, stats *executor.Stats, progress float64) *Progress {
	p := &Progress{Progress: progress}
	if stats != nil {
		p.TargetVUs = stats.TargetVUs
	}
	if snap != nil {
		p.Elapsed = snap.Elapsed
		p.ActiveVUs = snap.ActiveVUs
		p.TotalRequests = snap.TotalRequests
		p.Failed = snap.FailedRequests
		p.ErrorRate = snap.ErrorRate
		p.RPS = snap.RPS
		p.P95 = snap.Latency.P95
		p.Phase = string(snap.CurrentPhase)
	}
	return p
}

// Update redraws the live display on a terminal, or prints one status line
// otherwise.
func (c *Console) Update(p *Progress) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isTTY {
		c.writeln(fmt.Sprintf("[%s] Progress: %.0f%% | VUs: %d/%d | Reqs: %d | RPS: %.1f | Errors: %d (%.1f%%) | P95: %s",
			formatDuration(p.Elapsed), p.Progress*100, p.ActiveVUs, p.TargetVUs,
			p.TotalRequests, p.RPS, p.Failed, p.ErrorRate*100, formatLatency(p.P95)))
		return
	}

	c.clearLive()
	lines := []string{
		fmt.Sprintf("Progress: %s %s | %s",
			c.colors.Success.Sprint(renderProgressBar(p.Progress, 40)),
			c.colors.Title.Sprintf("%.0f%%", p.Progress*100),
			c.colors.Dim.Sprintf("%s / %s", formatDuration(p.Elapsed), formatDuration(c.totalDuration))),
		fmt.Sprintf("Phase:    %s", c.colors.Phase.Sprint(p.Phase)),
		fmt.Sprintf("VUs:      %s / %d   Requests: %s   RPS: %s",
			c.colors.Value.Sprint(p.ActiveVUs), p.TargetVUs,
			c.colors.Value.Sprint(formatNumber(p.TotalRequests)),
			c.colors.Success.Sprintf("%.1f", p.RPS)),
		fmt.Sprintf("Errors:   %s   P95: %s",
			c.rateColor(p.ErrorRate).Sprintf("%d (%.1f%%)", p.Failed, p.ErrorRate*100),
			c.colors.Latency.Sprint(formatLatency(p.P95))),
	}
	for _, line := range lines {
		c.writeln(line)
	}
	c.linesOutput = len(lines)
}

func (c *Console) clearLive() {
	if c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

// PrintSummary prints the final test summary.
func (c *Console) PrintSummary(result *engine.TestResult) {
	if c.quiet {
		if result.Passed {
			c.writeln(c.colors.Success.Sprint("PASSED"))
		} else {
			c.writeln(c.colors.Error.Sprint("FAILED"))
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isTTY {
		c.clearLive()
	}

	line := strings.Repeat(boxHorizontal, ruleWidth)
	status := c.colors.Success.Sprint("PASSED")
	if !result.Passed {
		status = c.colors.Error.Sprint("FAILED")
	}

	c.writeln("")
	c.writeln(c.colors.Rule.Sprint(line))
	c.writeln(fmt.Sprintf("%s - %s", c.colors.Title.Sprint(result.Name), status))
	c.writeln(c.colors.Rule.Sprint(line))
	c.writeln("")

	c.writeln(fmt.Sprintf("Duration:      %s", c.colors.Value.Sprint(formatDuration(result.Duration))))
	c.writeln(fmt.Sprintf("Sessions:      %s", c.colors.Value.Sprint(result.SpawnedVUs)))
	c.writeln(fmt.Sprintf("Iterations:    %s", c.colors.Value.Sprint(formatNumber(result.Iterations))))
	if m := result.Metrics; m != nil {
		c.writeln(fmt.Sprintf("Total Reqs:    %s", c.colors.Value.Sprint(formatNumber(m.TotalRequests))))
		c.writeln(fmt.Sprintf("Success Rate:  %s", c.rateColor(m.ErrorRate).Sprintf("%.1f%%", (1-m.ErrorRate)*100)))
		c.writeln(fmt.Sprintf("HTTP Failed:   %s", c.rateColor(m.HTTPFailedRate).Sprintf("%d (%.1f%%)", m.HTTPFailed, m.HTTPFailedRate*100)))
		c.writeln(fmt.Sprintf("RPS:           %s", c.colors.Value.Sprintf("%.2f", m.RPS)))
		c.writeln("")

		c.writeln(c.colors.Title.Sprint("Latency Distribution:"))
		c.writeln(fmt.Sprintf("  Min:       %s", formatLatency(m.Latency.Min)))
		c.writeln(fmt.Sprintf("  P50:       %s", formatLatency(m.Latency.P50)))
		c.writeln(fmt.Sprintf("  P90:       %s", formatLatency(m.Latency.P90)))
		c.writeln(fmt.Sprintf("  P95:       %s", formatLatency(m.Latency.P95)))
		c.writeln(fmt.Sprintf("  P99:       %s", formatLatency(m.Latency.P99)))
		c.writeln(fmt.Sprintf("  Max:       %s", formatLatency(m.Latency.Max)))
		c.writeln("")
	}

	if len(result.Pages) > 0 {
		c.writeln(c.colors.Title.Sprint("Pages:"))
		c.writeln(fmt.Sprintf("  %-12s %8s %8s %10s %10s", "PATH", "REQS", "FAILED", "P50", "P95"))
		for _, p := range result.Pages {
			failed := fmt.Sprintf("%8d", p.Failed)
			if p.Failed > 0 {
				failed = c.colors.Error.Sprint(failed)
			}
			c.writeln(fmt.Sprintf("  %-12s %8d %s %10s %10s",
				p.Name, p.Count, failed, formatLatency(p.Latency.P50), formatLatency(p.Latency.P95)))
		}
		c.writeln("")
	}

	if len(result.Failures) > 0 {
		c.writeln(c.colors.Title.Sprint("Failures:"))
		for _, f := range result.Failures {
			c.writeln(fmt.Sprintf("  %s %-12s %-18s %s",
				c.colors.Error.Sprintf("%6d", f.Count), f.Name, f.Kind, c.colors.Dim.Sprint(f.LastMessage)))
		}
		c.writeln("")
	}

	if len(result.Thresholds) > 0 {
		c.writeln(c.colors.Title.Sprint("Thresholds:"))
		for _, t := range result.Thresholds {
			mark := c.colors.Success.Sprint("✓")
			if !t.Passed {
				mark = c.colors.Error.Sprint("✗")
			}
			c.writeln(fmt.Sprintf("  %s %s %s (actual: %s)", mark, t.Metric, t.Expression, t.Value))
		}
		c.writeln("")
	}
}

func (c *Console) rateColor(errorRate float64) *color.Color {
	switch {
	case errorRate > 0.05:
		return c.colors.Error
	case errorRate > 0.01:
		return c.colors.Warn
	default:
		return c.colors.Success
	}
}

func (c *Console) write(s string) {
	fmt.Fprint(c.writer, s)
}

func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

func renderProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %02dm %02ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

// formatLatency formats a latency in a short format.
func formatLatency(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return "0ms"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var b strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		b.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if b.Len() > 0 {
			b.WriteString(",")
		}
		b.WriteString(str[i : i+3])
	}
	return b.String()
}
