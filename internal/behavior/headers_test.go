package behavior

import (
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestHeaderAdvisor_Inspect(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	adv := NewHeaderAdvisor(zap.New(core))

	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("X-Frame-Options", "DENY")

	findings := adv.Inspect("/about", &http.Response{Header: h})

	assert.Contains(t, findings, "unexpected content type: application/json")
	assert.Contains(t, findings, "missing cache-control header")
	assert.Contains(t, findings, "missing security header: x-content-type-options")
	assert.NotContains(t, findings, "missing security header: x-frame-options")
	assert.Contains(t, findings, "missing content compression")
	assert.Equal(t, len(findings), logs.Len())
}

func TestHeaderAdvisor_WellServedPage(t *testing.T) {
	h := http.Header{}
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "public, max-age=60")
	h.Set("Content-Encoding", "gzip")
	for _, name := range securityHeaders {
		h.Set(name, "1")
	}

	assert.Empty(t, NewHeaderAdvisor(nil).Inspect("/", &http.Response{Header: h}))
}

func wellServedHeaders(h http.Header) {
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "public, max-age=60")
	for _, name := range securityHeaders {
		h.Set(name, "1")
	}
}

func TestHeaderAdvisor_TransparentlyDecompressed(t *testing.T) {
	h := http.Header{}
	wellServedHeaders(h)

	assert.Empty(t, NewHeaderAdvisor(nil).Inspect("/", &http.Response{Header: h, Uncompressed: true}))
}

func TestWebsiteUser_GzipPageHasNoCompressionFinding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wellServedHeaders(w.Header())
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			_, _ = w.Write([]byte("<html>plain</html>"))
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte("<html>compressed</html>"))
		_ = gz.Close()
	}))
	defer server.Close()

	core, logs := observer.New(zap.WarnLevel)
	user, err := NewWebsiteUser(server.Client(), server.URL, Options{
		HeaderChecks: true,
		Logger:       zap.New(core),
	})
	require.NoError(t, err)

	out, err := user.Execute(context.Background(), Index)
	require.NoError(t, err)
	assert.True(t, out.Passed, out.Reason)
	assert.Equal(t, int64(len("<html>compressed</html>")), out.Bytes)
	assert.Zero(t, logs.FilterMessage("header advisory").Len(), "%v", logs.All())
}
