package loader

import (
	"context"
	"log/slog"

	"github.com/rendis/extbridge/pkg/schema"
)

// findLoader searches PATH for the loader command, then the fixed install
// locations. It returns "" when the tool is absent.
func (o *Orchestrator) findLoader() string {
	if p, err := o.opts.LookPath(o.opts.LoaderCommand); err == nil {
		return p
	}
	for _, candidate := range o.opts.LoaderFallbacks {
		if p, err := o.opts.LookPath(candidate); err == nil {
			return p
		}
	}
	return ""
}

func (o *Orchestrator) loaderArgs(dir string) []string {
	args := []string{"run", "--source-dir", dir, "--target", "firefox-desktop"}
	if o.opts.FirefoxPath != "" {
		args = append(args, "--firefox", o.opts.FirefoxPath)
	}
	return args
}

// loadExternal spawns the loader tool and declares success once the process
// exists. The tool's own readiness is not awaited.
func (o *Orchestrator) loadExternal(ctx context.Context, tool, dir string) (*Record, error) {
	proc, err := o.opts.Spawn(ctx, tool, o.loaderArgs(dir))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeLoaderUnavailable, "start %s: %v", tool, err).WithCause(err)
	}
	o.logger.DebugContext(ctx, "loader spawned", slog.String("tool", tool), slog.Int("pid", proc.Pid()))

	return &Record{
		Path:     dir,
		Method:   schema.MethodExternal,
		Process:  proc,
		LoadedAt: o.opts.Now(),
	}, nil
}
