// Package dispatch runs the request/response loop: read a frame, route it by
// action, write exactly one response frame.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"github.com/rendis/extbridge/internal/config"
	"github.com/rendis/extbridge/internal/framing"
	"github.com/rendis/extbridge/internal/loader"
	"github.com/rendis/extbridge/internal/logging"
	"github.com/rendis/extbridge/internal/scanner"
	"github.com/rendis/extbridge/internal/validation"
	"github.com/rendis/extbridge/pkg/schema"
)

// Watcher is the part of watch.Watcher the dispatcher reports on.
type Watcher interface {
	Drain() schema.WatchState
}

// Deps holds the components a Dispatcher routes to.
type Deps struct {
	Store     *config.Store
	Config    config.Config
	Scanner   *scanner.Scanner
	Loader    *loader.Orchestrator
	Validator *validation.RequestValidator
	Version   string
	Logger    *slog.Logger
}

// Dispatcher is the process context: it owns the in-memory config and the
// orchestrator, and routes every request to exactly one handler. Handle calls
// are serialized, so the orchestrator sees a single writer whatever transport
// feeds it.
type Dispatcher struct {
	store     *config.Store
	scanner   *scanner.Scanner
	loader    *loader.Orchestrator
	validator *validation.RequestValidator
	version   string
	logger    *slog.Logger

	mu sync.Mutex

	cfgMu sync.RWMutex
	cfg   config.Config

	watcher Watcher
}

// New creates a Dispatcher.
func New(deps Deps) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:     deps.Store,
		scanner:   deps.Scanner,
		loader:    deps.Loader,
		validator: deps.Validator,
		version:   deps.Version,
		logger:    logger,
		cfg:       deps.Config,
	}
}

// SetWatcher attaches the folder watcher whose changes status reports.
func (d *Dispatcher) SetWatcher(w Watcher) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.watcher = w
}

// Config returns a copy of the in-memory settings.
func (d *Dispatcher) Config() config.Config {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.cfg
}

// Folder returns the configured extension folder. Safe to call from any goroutine.
func (d *Dispatcher) Folder() string {
	return d.Config().ExtensionFolder
}

// Serve reads requests from r and writes responses to w until r is exhausted
// or ctx is cancelled. Bad frames are answered with an error frame and the loop
// continues; a broken transport ends the loop with an error. A clean end of
// input returns nil, cancellation returns ctx.Err().
//
// Frames are read on a separate goroutine so a read blocked on r cannot hold
// off cancellation. The next frame is requested only after the previous
// response has been written, so requests are still handled one at a time.
func (d *Dispatcher) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	enc := framing.NewEncoder(w)
	frames, next, stop := readFrames(framing.NewDecoder(r))
	defer stop()

	for {
		select {
		case next <- struct{}{}:
		case <-ctx.Done():
			d.logger.Info("interrupted, stopping")
			return ctx.Err()
		}

		var f frame
		select {
		case f = <-frames:
		case <-ctx.Done():
			d.logger.Info("interrupted, stopping")
			return ctx.Err()
		}

		switch {
		case errors.Is(f.err, io.EOF):
			d.logger.Info("input closed, stopping")
			return nil
		case framing.IsProtocolError(f.err):
			d.logger.Warn("bad frame", slog.String("error", f.err.Error()))
			if werr := enc.Encode(schema.NewErrorResponse(f.err, "")); werr != nil {
				return fmt.Errorf("write response: %w", werr)
			}
			continue
		case f.err != nil:
			return fmt.Errorf("read request: %w", f.err)
		}

		resp := d.HandleRaw(ctx, f.body)
		if err := enc.Encode(resp); err != nil {
			if !framing.IsProtocolError(err) {
				return fmt.Errorf("write response: %w", err)
			}
			d.logger.Error("response not encodable", slog.String("error", err.Error()))
			if werr := enc.Encode(schema.NewErrorResponse(err, "")); werr != nil {
				return fmt.Errorf("write response: %w", werr)
			}
		}
	}
}

type frame struct {
	body json.RawMessage
	err  error
}

// readFrames starts a reader that decodes one frame per value sent on next.
// stop releases the reader; a read already blocked on the input is abandoned.
func readFrames(dec *framing.Decoder) (<-chan frame, chan<- struct{}, func()) {
	frames := make(chan frame)
	next := make(chan struct{})
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-next:
			case <-done:
				return
			}
			body, err := dec.Next()
			select {
			case frames <- frame{body: body, err: err}:
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return frames, next, func() { once.Do(func() { close(done) }) }
}

// HandleRaw validates one raw request body and handles it.
func (d *Dispatcher) HandleRaw(ctx context.Context, raw json.RawMessage) any {
	requestID := uuid.New().String()
	ctx = logging.WithRequestID(ctx, requestID)

	req, err := d.validator.Decode(raw)
	if err != nil {
		d.logger.WarnContext(ctx, "invalid request", slog.String("error", err.Error()))
		return schema.NewErrorResponse(err, requestID)
	}
	return d.Handle(ctx, req)
}

// Handle routes req to its handler and returns the response value. It never
// panics: a failing handler is turned into an error response.
func (d *Dispatcher) Handle(ctx context.Context, req schema.Request) (resp any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx = logging.WithAction(ctx, string(req.Action))
	defer func() {
		if p := recover(); p != nil {
			d.logger.ErrorContext(ctx, "handler panicked",
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())),
			)
			err := schema.NewErrorf(schema.ErrCodeInternal, "internal error handling %q: %v", req.Action, p)
			resp = schema.NewErrorResponse(err, logging.RequestID(ctx))
		}
	}()

	d.logger.DebugContext(ctx, "handling request", slog.String("path", req.Path))

	switch req.Action {
	case schema.ActionStatus:
		return d.status(ctx)
	case schema.ActionScan:
		return d.scan(ctx)
	case schema.ActionSetFolder:
		return d.setFolder(ctx, req.Path)
	case schema.ActionLoad:
		return d.load(ctx, req.Path)
	case schema.ActionLoadAll:
		return d.loadAll(ctx)
	case schema.ActionUnload:
		return d.unload(ctx, req.Path)
	case schema.ActionUnloadAll:
		return d.unloadAll(ctx)
	default:
		err := schema.NewErrorf(schema.ErrCodeUnknownAction, "unknown action %q", req.Action)
		d.logger.WarnContext(ctx, "unknown action")
		return schema.NewErrorResponse(err, logging.RequestID(ctx))
	}
}

func (d *Dispatcher) status(_ context.Context) *schema.StatusResponse {
	cfg := d.Config()
	records := d.loader.Registry().Snapshot()

	resp := &schema.StatusResponse{
		Type:            schema.TypeStatus,
		Version:         d.version,
		ExtensionFolder: cfg.ExtensionFolder,
		FirefoxPath:     cfg.FirefoxPath,
		WatchEnabled:    cfg.WatchEnabled,
		LoaderAvailable: d.loader.LoaderAvailable(),
		LoadedCount:     len(records),
		Loaded:          make([]schema.LoadedInfo, 0, len(records)),
	}
	for _, rec := range records {
		resp.Loaded = append(resp.Loaded, rec.Info())
	}
	if d.watcher != nil {
		ws := d.watcher.Drain()
		resp.Watch = &ws
	}
	return resp
}

func (d *Dispatcher) scan(ctx context.Context) *schema.ExtensionsListResponse {
	folder := d.Folder()
	res := d.scanner.Scan(ctx, folder)
	d.logger.InfoContext(ctx, "scan complete",
		slog.String("folder", folder),
		slog.Int("extensions", len(res.Extensions)),
		slog.Int("skipped", len(res.Skipped)),
	)
	return &schema.ExtensionsListResponse{
		Type:            schema.TypeExtensionsList,
		ExtensionFolder: folder,
		Extensions:      res.Extensions,
		Skipped:         res.Skipped,
	}
}

func (d *Dispatcher) setFolder(ctx context.Context, path string) *schema.FolderSetResponse {
	folder, err := filepath.Abs(path)
	if err != nil {
		return &schema.FolderSetResponse{
			Type:       schema.TypeFolderSet,
			Extensions: []schema.ExtensionDescriptor{},
			Message:    fmt.Sprintf("invalid folder %q: %v", path, err),
		}
	}

	d.cfgMu.Lock()
	old := d.cfg
	d.cfg.ExtensionFolder = folder
	updated := d.cfg
	d.cfgMu.Unlock()

	resp := &schema.FolderSetResponse{
		Type:            schema.TypeFolderSet,
		Success:         true,
		ExtensionFolder: folder,
		Persisted:       true,
	}
	// Only the folder changes on disk; env overrides held in memory stay out of the file.
	persisted := d.store.LoadFile()
	persisted.ExtensionFolder = folder
	if err := d.store.Save(persisted); err != nil {
		d.logger.ErrorContext(ctx, "config not persisted",
			slog.String("path", d.store.Path()),
			slog.String("error", err.Error()),
		)
		resp.Persisted = false
		resp.Message = "folder set for this session only: " + err.Error()
	}
	d.logger.InfoContext(ctx, "config updated", slog.Any("changed", config.Diff(old, updated)))

	resp.Extensions = d.scanner.Scan(ctx, folder).Extensions
	return resp
}

func (d *Dispatcher) load(ctx context.Context, path string) schema.LoadResult {
	rec, err := d.loader.Load(ctx, path)
	res := loader.LoadResultFor(path, rec, err)
	res.Type = schema.TypeLoadResult
	return res
}

func (d *Dispatcher) loadAll(ctx context.Context) schema.BatchResult[schema.LoadResult] {
	res := d.scanner.Scan(ctx, d.Folder())
	batch := d.loader.LoadAll(ctx, res.Extensions, res.Skipped)
	d.logger.InfoContext(ctx, "load_all complete",
		slog.Int("succeeded", batch.Succeeded),
		slog.Int("failed", batch.Failed),
	)
	return batch
}

func (d *Dispatcher) unload(ctx context.Context, path string) schema.UnloadResult {
	res := loader.UnloadResultFor(path, d.loader.Unload(ctx, path))
	res.Type = schema.TypeUnloadResult
	return res
}

func (d *Dispatcher) unloadAll(ctx context.Context) schema.BatchResult[schema.UnloadResult] {
	batch := d.loader.UnloadAll(ctx)
	d.logger.InfoContext(ctx, "unload_all complete",
		slog.Int("succeeded", batch.Succeeded),
		slog.Int("failed", batch.Failed),
	)
	return batch
}
