package serviceutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/otelconnect"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// SignalContext returns a context that lives until SIGINT or SIGTERM.
func SignalContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}

// StartHttpServer serves mux over h2c until ctx is done, then shuts down
// gracefully.
func StartHttpServer(ctx context.Context, port int, mux *http.ServeMux) error {
	server := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		if err != nil {
			slog.Warn("http server shutdown", "err", err)
		}
	}()

	slog.Info("listening for connect requests...", "port", port)
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func Fatal(message string, err error) {
	slog.Error(message, "err", err.Error())
	os.Exit(1)
}

// VerifyAccessTokenInterceptor rejects requests to any of the given procedures
// that lack "Authorization: Bearer <accessToken>". An empty token disables the
// check.
func VerifyAccessTokenInterceptor(accessToken string, procedures ...string) connect.UnaryInterceptorFunc {
	guarded := map[string]bool{}
	for _, p := range procedures {
		guarded[p] = true
	}

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		if accessToken == "" {
			return next
		}
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if len(guarded) > 0 && !guarded[req.Spec().Procedure] {
				return next(ctx, req)
			}
			token := strings.Split(req.Header().Get("Authorization"), " ")
			if len(token) != 2 || token[1] != accessToken {
				return nil, connect.NewError(connect.CodeUnauthenticated, fmt.Errorf("unauthorized"))
			}
			return next(ctx, req)
		}
	}
}

func NewConnectOtelInterceptor() *otelconnect.Interceptor {
	otelIntercept, err := otelconnect.NewInterceptor(
		otelconnect.WithTrustRemote(),
		otelconnect.WithoutServerPeerAttributes(),
	)
	if err != nil {
		Fatal("failed to initialize otel interceptor", err)
	}
	return otelIntercept
}
