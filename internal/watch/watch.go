// Package watch periodically rescans the extension folder and records which
// extension folders appeared or disappeared between scans.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/extbridge/internal/scanner"
	"github.com/rendis/extbridge/pkg/schema"
)

// Scanner is the part of scanner.Scanner the watcher needs.
type Scanner interface {
	Scan(ctx context.Context, folder string) scanner.Result
}

// Watcher runs scans on a cron schedule. It never loads or unloads anything.
type Watcher struct {
	schedule string
	scanner  Scanner
	folder   func() string
	logger   *slog.Logger
	now      func() time.Time

	cron *cron.Cron

	mu         sync.Mutex
	lastFolder string
	known      map[string]bool
	state      schema.WatchState
}

// New creates a Watcher. folder is called on every tick and must be safe to
// call from the cron goroutine.
func New(schedule string, s Scanner, folder func() string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("parse watch schedule %q: %w", schedule, err)
	}

	w := &Watcher{
		schedule: schedule,
		scanner:  s,
		folder:   folder,
		logger:   logger,
		now:      time.Now,
		cron:     cron.New(cron.WithParser(parser)),
	}
	w.state = schema.WatchState{Schedule: schedule, Added: []string{}, Removed: []string{}}
	return w, nil
}

// Start runs an initial scan to set the baseline and schedules the rest.
func (w *Watcher) Start(ctx context.Context) error {
	w.Tick(ctx)
	if _, err := w.cron.AddFunc(w.schedule, func() { w.Tick(ctx) }); err != nil {
		return fmt.Errorf("schedule watcher: %w", err)
	}
	w.cron.Start()
	w.logger.Info("watcher started", slog.String("schedule", w.schedule))
	return nil
}

// Stop halts scheduling and waits for a running scan to finish.
func (w *Watcher) Stop() {
	<-w.cron.Stop().Done()
}

// Tick performs one scan and folds the difference into the pending changes.
// A change of folder resets the baseline without reporting changes.
func (w *Watcher) Tick(ctx context.Context) {
	folder := w.folder()
	res := w.scanner.Scan(ctx, folder)

	current := make(map[string]bool, len(res.Extensions))
	for _, d := range res.Extensions {
		current[d.Folder] = true
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.state.LastScan = &now
	if w.known == nil || folder != w.lastFolder {
		w.known = current
		w.lastFolder = folder
		w.state.Added = []string{}
		w.state.Removed = []string{}
		return
	}

	for name := range current {
		if !w.known[name] {
			w.state.Added = addUnique(w.state.Added, name)
			w.state.Removed = remove(w.state.Removed, name)
		}
	}
	for name := range w.known {
		if !current[name] {
			w.state.Removed = addUnique(w.state.Removed, name)
			w.state.Added = remove(w.state.Added, name)
		}
	}
	if len(w.state.Added) > 0 || len(w.state.Removed) > 0 {
		w.logger.Debug("extension folder changed",
			slog.String("folder", folder),
			slog.Any("added", w.state.Added),
			slog.Any("removed", w.state.Removed),
		)
	}
	w.known = current
}

// Drain returns the changes seen since the previous Drain and clears them.
func (w *Watcher) Drain() schema.WatchState {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := w.state
	sort.Strings(out.Added)
	sort.Strings(out.Removed)
	w.state.Added = []string{}
	w.state.Removed = []string{}
	return out
}

func addUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
