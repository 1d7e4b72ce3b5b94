package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoServesUntilCancelled(t *testing.T) {
	RootCmd.SetArgs([]string{"demo", "--addr", "127.0.0.1:0", "--log-level", "error", "--slow", "/features=10ms"})
	defer RootCmd.SetArgs(nil)
	defer RootCmd.SetContext(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, RootCmd.ExecuteContext(ctx))
	assert.Less(t, time.Since(start), 6*time.Second)
}

func TestDemoRejectsBadFlags(t *testing.T) {
	RootCmd.SetArgs([]string{"demo", "--log-level", "error", "--fail", "/pricing=soon"})
	defer RootCmd.SetArgs(nil)

	err := Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --fail")
}
