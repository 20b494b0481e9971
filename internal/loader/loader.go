// Package loader brings extensions to "loaded" or "unloaded" and tracks which
// ones it loaded.
//
// Two strategies are tried in order. ExternalLoader spawns a command-line
// loader tool (web-ext) detached, pointed at the extension source directory.
// ProfilePreparation, used only when no loader tool is installed, writes a
// throwaway browser profile with signature checks relaxed and the extension
// copied in; it does not make the extension live by itself.
package loader

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rendis/extbridge/pkg/schema"
)

// DescribeFunc looks up the descriptor of the extension in dir.
type DescribeFunc func(ctx context.Context, dir string) (schema.ExtensionDescriptor, bool)

// Options configures an Orchestrator. Zero fields take platform defaults.
type Options struct {
	LoaderCommand     string
	LoaderFallbacks   []string
	FirefoxPath       string
	BrowserCandidates []string
	ProfileRoot       string
	LookPath          func(file string) (string, error)
	Spawn             SpawnFunc
	Describe          DescribeFunc
	Now               func() time.Time
	Logger            *slog.Logger
}

// Orchestrator loads and unloads extensions. Not safe for concurrent use:
// callers serialize Load/Unload calls, which makes it the single writer of
// its Registry.
type Orchestrator struct {
	opts     Options
	registry *Registry
	logger   *slog.Logger
}

// New creates an Orchestrator with an empty Registry.
func New(opts Options) *Orchestrator {
	if opts.LoaderCommand == "" {
		opts.LoaderCommand = "web-ext"
	}
	if opts.LoaderFallbacks == nil {
		opts.LoaderFallbacks = defaultLoaderFallbacks()
	}
	if opts.BrowserCandidates == nil {
		opts.BrowserCandidates = defaultBrowserCandidates()
	}
	if opts.ProfileRoot == "" {
		opts.ProfileRoot = os.TempDir()
	}
	if opts.LookPath == nil {
		opts.LookPath = exec.LookPath
	}
	if opts.Spawn == nil {
		opts.Spawn = SpawnDetached
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		opts:     opts,
		registry: NewRegistry(),
		logger:   opts.Logger,
	}
}

// Registry exposes the load records for read-only reporting.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// LoaderAvailable reports whether the external loader tool can be found.
func (o *Orchestrator) LoaderAvailable() bool {
	return o.findLoader() != ""
}

// Load brings the extension at path to "loaded" and records it. On failure
// no record is created and the error is a *schema.BridgeError with code
// LOADER_UNAVAILABLE, PREPARATION_FAILED (also for a path that is not a
// directory), ALREADY_LOADED or VALIDATION_ERROR (empty path).
func (o *Orchestrator) Load(ctx context.Context, path string) (*Record, error) {
	dir, err := normalize(path)
	if err != nil {
		return nil, err
	}
	if _, ok := o.registry.Get(dir); ok {
		return nil, schema.NewErrorf(schema.ErrCodeAlreadyLoaded, "extension %s is already loaded", dir)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		be := schema.NewErrorf(schema.ErrCodePreparationFailed, "extension path %s is not a directory", dir)
		if err != nil {
			be = be.WithCause(err)
		}
		return nil, be
	}

	var rec *Record
	if tool := o.findLoader(); tool != "" {
		rec, err = o.loadExternal(ctx, tool, dir)
	} else if browser := o.findBrowser(); browser != "" {
		rec, err = o.prepareProfile(ctx, browser, dir)
	} else {
		err = schema.NewErrorf(schema.ErrCodeLoaderUnavailable,
			"neither %s nor a Firefox executable could be found", o.opts.LoaderCommand)
	}
	if err != nil {
		o.logger.WarnContext(ctx, "load failed", slog.String("path", dir), slog.String("error", err.Error()))
		return nil, err
	}

	o.registry.Put(rec)
	o.logger.InfoContext(ctx, "extension loaded",
		slog.String("path", dir),
		slog.String("method", string(rec.Method)),
	)
	return rec, nil
}

// Unload terminates the loader process (best effort), discards any prepared
// profile and forgets the record. An unknown path yields NOT_LOADED.
func (o *Orchestrator) Unload(ctx context.Context, path string) error {
	dir, err := normalize(path)
	if err != nil {
		return err
	}
	rec, ok := o.registry.Get(dir)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotLoaded, "extension %s is not loaded", dir)
	}

	if rec.Process != nil {
		if err := rec.Process.Terminate(); err != nil {
			o.logger.DebugContext(ctx, "loader process already gone",
				slog.Int("pid", rec.Process.Pid()),
				slog.String("error", err.Error()),
			)
		}
	}
	if rec.ProfilePath != "" {
		if err := os.RemoveAll(rec.ProfilePath); err != nil {
			o.logger.WarnContext(ctx, "remove prepared profile",
				slog.String("profile", rec.ProfilePath),
				slog.String("error", err.Error()),
			)
		}
	}

	o.registry.Delete(dir)
	o.logger.InfoContext(ctx, "extension unloaded", slog.String("path", dir))
	return nil
}

// LoadAll loads every descriptor in order. Each skipped entry (a manifest that
// failed to parse) is reported as a failure so the result covers every
// manifest-bearing directory. One failure never stops the rest.
func (o *Orchestrator) LoadAll(ctx context.Context, exts []schema.ExtensionDescriptor, skipped []schema.SkippedEntry) schema.BatchResult[schema.LoadResult] {
	batch := schema.BatchResult[schema.LoadResult]{
		Type:    schema.TypeLoadAllResult,
		Results: make([]schema.LoadResult, 0, len(exts)+len(skipped)),
	}
	for _, ext := range exts {
		rec, err := o.Load(ctx, ext.Path)
		batch.Results = append(batch.Results, LoadResultFor(ext.Path, rec, err))
	}
	for _, s := range skipped {
		err := schema.NewErrorf(schema.ErrCodePreparationFailed, "manifest unusable: %s", s.Reason)
		batch.Results = append(batch.Results, LoadResultFor(s.Path, nil, err))
	}
	tally(&batch, func(r schema.LoadResult) bool { return r.Success })
	return batch
}

// UnloadAll unloads every record, in path order.
func (o *Orchestrator) UnloadAll(ctx context.Context) schema.BatchResult[schema.UnloadResult] {
	records := o.registry.Snapshot()
	batch := schema.BatchResult[schema.UnloadResult]{
		Type:    schema.TypeUnloadAllResult,
		Results: make([]schema.UnloadResult, 0, len(records)),
	}
	for _, rec := range records {
		batch.Results = append(batch.Results, UnloadResultFor(rec.Path, o.Unload(ctx, rec.Path)))
	}
	tally(&batch, func(r schema.UnloadResult) bool { return r.Success })
	return batch
}

func tally[T any](b *schema.BatchResult[T], ok func(T) bool) {
	for _, r := range b.Results {
		if ok(r) {
			b.Succeeded++
		} else {
			b.Failed++
		}
	}
	b.Success = b.Failed == 0
}

// LoadResultFor converts the outcome of Load into its wire form.
func LoadResultFor(path string, rec *Record, err error) schema.LoadResult {
	if err != nil {
		return schema.LoadResult{
			Path:    path,
			Code:    schema.CodeOf(err),
			Message: message(err),
		}
	}
	res := schema.LoadResult{
		Success:     true,
		Path:        rec.Path,
		Method:      rec.Method,
		ProfilePath: rec.ProfilePath,
		Browser:     rec.Browser,
	}
	if rec.Process != nil {
		res.PID = rec.Process.Pid()
	}
	return res
}

// UnloadResultFor converts the outcome of Unload into its wire form.
func UnloadResultFor(path string, err error) schema.UnloadResult {
	if err != nil {
		return schema.UnloadResult{
			Path:    path,
			Code:    schema.CodeOf(err),
			Message: message(err),
		}
	}
	return schema.UnloadResult{Success: true, Path: path}
}

func message(err error) string {
	var be *schema.BridgeError
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}

func normalize(path string) (string, error) {
	if path == "" {
		return "", schema.NewError(schema.ErrCodeValidation, "extension path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "invalid extension path %q", path).WithCause(err)
	}
	return abs, nil
}
