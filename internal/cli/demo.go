package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/faithtech/sitewalk/internal/demosite"
	"github.com/faithtech/sitewalk/internal/logging"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Serve a local marketing website to run visitors against",
	Long: `Serve the five marketing pages on a local address.

Pages can be slowed down or made to fail so the checks have something to
report:

  sitewalk demo --addr :3000 --slow /features=700ms --fail /pricing=503
  sitewalk run --host http://localhost:3000 --vus 5 --duration 30s`,
	RunE: runDemo,
}

func runDemo(cmd *cobra.Command, args []string) error {
	v := newViper()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	logger, err := logging.New(v.GetString("log-level"), v.GetString("log-format"))
	if err != nil {
		return err
	}
	defer logger.Sync()

	slow, err := demosite.ParseSlow(v.GetStringMapString("slow"))
	if err != nil {
		return fmt.Errorf("invalid --slow: %w", err)
	}
	fail, err := demosite.ParseFail(v.GetStringMapString("fail"))
	if err != nil {
		return fmt.Errorf("invalid --fail: %w", err)
	}

	srv := demosite.NewServer(v.GetString("addr"), demosite.Options{
		Delay:   v.GetDuration("delay"),
		Slow:    slow,
		Fail:    fail,
		Headers: v.GetBool("headers"),
		Logger:  logger,
	})

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving demo site", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	logger.Info("shutting down demo site")
	return srv.Shutdown(shutdownCtx)
}

func init() {
	fs := demoCmd.Flags()
	fs.String("addr", ":3000", "Listen address")
	fs.Duration("delay", 0, "Delay added to every response")
	fs.StringToString("slow", nil, "Extra delay per page, e.g. /features=700ms")
	fs.StringToString("fail", nil, "Fixed status code per page, e.g. /pricing=503")
	fs.Bool("headers", false, "Send cache and security headers")
}
