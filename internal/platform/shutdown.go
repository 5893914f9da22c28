package platform

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"time"

	"github.com/dalfonso89/currency-rates-service/internal/logger"
)

// NewShutdownContext creates a context that is canceled on the platform's termination signals
func NewShutdownContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, shutdownSignals...)
}

// Serve runs server until ctx is done, then drains in-flight requests for up to
// drainTimeout and runs cleanups in order. A listen failure is returned without
// waiting for ctx.
func Serve(ctx context.Context, server *http.Server, drainTimeout time.Duration, log logger.Logger, cleanups ...func() error) error {
	serveErrors := make(chan error, 1)
	go func() {
		log.Infof("Starting rates service on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrors <- err
		}
		close(serveErrors)
	}()

	var serveErr error
	select {
	case serveErr = <-serveErrors:
		log.Errorf("Server failed: %v", serveErr)
	case <-ctx.Done():
		log.Info("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	shutdownErr := server.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		log.Errorf("Server forced to shutdown: %v", shutdownErr)
	}

	for _, cleanup := range cleanups {
		if err := cleanup(); err != nil {
			log.Warnf("Cleanup failed: %v", err)
		}
	}

	log.Info("Server exited")
	return errors.Join(serveErr, shutdownErr)
}
