package behavior

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// securityHeaders are expected on every page.
var securityHeaders = []string{
	"X-Content-Type-Options",
	"X-Frame-Options",
	"X-XSS-Protection",
	"Strict-Transport-Security",
}

// HeaderAdvisor inspects response headers and logs what a well-served
// marketing page is missing. Findings are warnings only and never affect
// the health verdict.
type HeaderAdvisor struct {
	logger *zap.Logger
}

// NewHeaderAdvisor returns an advisor that logs through logger.
func NewHeaderAdvisor(logger *zap.Logger) *HeaderAdvisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeaderAdvisor{logger: logger}
}

// Inspect returns the list of findings for a response and logs each one.
// A body the transport already gunzipped counts as compressed even though
// its Content-Encoding header was removed.
func (h *HeaderAdvisor) Inspect(path string, resp *http.Response) []string {
	var findings []string
	header := resp.Header

	if ct := header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		findings = append(findings, "unexpected content type: "+ct)
	}
	if header.Get("Cache-Control") == "" {
		findings = append(findings, "missing cache-control header")
	}
	for _, name := range securityHeaders {
		if header.Get(name) == "" {
			findings = append(findings, "missing security header: "+strings.ToLower(name))
		}
	}
	if !resp.Uncompressed && header.Get("Content-Encoding") == "" {
		findings = append(findings, "missing content compression")
	}

	for _, f := range findings {
		h.logger.Warn("header advisory", zap.String("path", path), zap.String("finding", f))
	}
	return findings
}
