// Command extbridge is the native-messaging host that scans a folder of
// unpacked extensions and loads them into Firefox on request.
//
// Run without arguments (as the browser does) it speaks the framed protocol
// on stdin/stdout. "extbridge mcp" serves the same actions as MCP tools.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rendis/extbridge/internal/dispatch"
	"github.com/rendis/extbridge/pkg/mcp"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "version", "--version", "-v":
		printVersion()
	case "mcp":
		os.Exit(run(serveMCP))
	default:
		// The browser passes the host manifest path and caller origin; both are ignored.
		os.Exit(run(serveNative))
	}
}

type serveFunc func(ctx context.Context, a *app, in io.Reader, out io.Writer) error

func serveNative(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	return a.dispatcher.Serve(ctx, in, out)
}

func serveMCP(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	srv := mcp.NewBridgeServer(mcp.BridgeServerDeps{
		Handler: a.dispatcher,
		Version: version,
		Logger:  a.logger,
	})
	return srv.Serve(ctx, in, out)
}

func run(serve serveFunc) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "extbridge: %v\n", err)
		return 1
	}
	defer a.Close()

	a.logger.Info("extbridge started",
		slog.String("version", version),
		slog.String("config", a.store.Path()),
		slog.Int("pid", os.Getpid()),
	)

	if err := serve(ctx, a, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		a.logger.Error("transport failed", slog.String("error", err.Error()))
		return 1
	}
	a.logger.Info("extbridge stopped", slog.Int("loaded", a.loader.Registry().Len()))
	return 0
}

var _ mcp.Handler = (*dispatch.Dispatcher)(nil)
