// Package scanner enumerates candidate extension directories beneath a folder.
package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/itchyny/gojq"

	"github.com/rendis/extbridge/internal/expressions"
	"github.com/rendis/extbridge/pkg/schema"
)

// ManifestFile is the file that marks a directory as an extension.
const ManifestFile = "manifest.json"

// DefaultManifestVersion is reported when a manifest omits manifest_version.
const DefaultManifestVersion = 2

// geckoIDQuery extracts the Firefox add-on ID from either manifest layout.
const geckoIDQuery = `.browser_specific_settings.gecko.id // .applications.gecko.id // empty`

// Result is the outcome of one scan.
type Result struct {
	Extensions []schema.ExtensionDescriptor
	Skipped    []schema.SkippedEntry
}

// Filter narrows scan results with an expression evaluated per descriptor.
type Filter struct {
	Engine     expressions.Engine
	Expression string
}

// Scanner discovers extensions. The zero value is not usable; call New.
type Scanner struct {
	logger  *slog.Logger
	geckoID *gojq.Code
	filter  *Filter
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithFilter excludes descriptors for which the filter does not yield true.
func WithFilter(f *Filter) Option {
	return func(s *Scanner) {
		if f != nil && f.Engine != nil && f.Expression != "" {
			s.filter = f
		}
	}
}

// New creates a Scanner.
func New(logger *slog.Logger, opts ...Option) (*Scanner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	code, err := expressions.CompileJQ(geckoIDQuery)
	if err != nil {
		return nil, err
	}
	s := &Scanner{logger: logger, geckoID: code}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Scan lists the immediate subdirectories of folder in directory-listing order
// and returns one descriptor per directory holding a parseable manifest. An
// empty or missing folder yields an empty result. A directory whose manifest
// cannot be read or parsed is logged and reported in Skipped.
func (s *Scanner) Scan(ctx context.Context, folder string) Result {
	res := Result{
		Extensions: []schema.ExtensionDescriptor{},
		Skipped:    []schema.SkippedEntry{},
	}
	if folder == "" {
		return res
	}

	root, err := filepath.Abs(folder)
	if err != nil {
		s.logger.WarnContext(ctx, "scan: cannot resolve folder", slog.String("folder", folder), slog.String("error", err.Error()))
		return res
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.WarnContext(ctx, "scan: cannot list folder", slog.String("folder", root), slog.String("error", err.Error()))
		}
		return res
	}

	filterBroken := false
	for _, entry := range entries {
		dir := filepath.Join(root, entry.Name())
		if !isDir(entry, dir) {
			continue
		}

		desc, skip, ok := s.readDescriptor(ctx, dir, entry.Name())
		if skip != nil {
			s.logger.WarnContext(ctx, "scan: skipping extension",
				slog.String("path", skip.Path),
				slog.String("reason", skip.Reason),
			)
			res.Skipped = append(res.Skipped, *skip)
			continue
		}
		if !ok {
			continue
		}

		if s.filter != nil && !filterBroken {
			keep, err := expressions.Match(ctx, s.filter.Engine, s.filter.Expression, Vars(desc))
			if err != nil {
				s.logger.WarnContext(ctx, "scan: filter disabled for this scan",
					slog.String("engine", s.filter.Engine.Name()),
					slog.String("error", err.Error()),
				)
				filterBroken = true
			} else if !keep {
				s.logger.DebugContext(ctx, "scan: filtered out", slog.String("path", desc.Path))
				continue
			}
		}

		res.Extensions = append(res.Extensions, desc)
	}
	return res
}

// Describe reads the descriptor of a single extension directory. It reports
// false when the directory has no usable manifest. Filters do not apply.
func (s *Scanner) Describe(ctx context.Context, dir string) (schema.ExtensionDescriptor, bool) {
	desc, _, ok := s.readDescriptor(ctx, dir, filepath.Base(dir))
	return desc, ok
}

// isDir follows symlinks so linked extension checkouts are picked up.
func isDir(entry fs.DirEntry, path string) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

type manifest struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	Description     string `json:"description"`
	ManifestVersion *int   `json:"manifest_version"`
}

// readDescriptor returns ok=false with a nil skip when dir has no manifest.
func (s *Scanner) readDescriptor(ctx context.Context, dir, folder string) (schema.ExtensionDescriptor, *schema.SkippedEntry, bool) {
	var desc schema.ExtensionDescriptor

	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return desc, nil, false
	}
	if err != nil {
		return desc, &schema.SkippedEntry{Path: dir, Folder: folder, Reason: "unreadable manifest: " + err.Error()}, false
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return desc, &schema.SkippedEntry{Path: dir, Folder: folder, Reason: "invalid manifest JSON: " + err.Error()}, false
	}

	// Fields of the wrong type are treated as absent rather than fatal.
	var m manifest
	_ = json.Unmarshal(data, &m)

	desc = schema.ExtensionDescriptor{
		Name:            m.Name,
		Version:         m.Version,
		Description:     m.Description,
		Path:            dir,
		Folder:          folder,
		ManifestVersion: DefaultManifestVersion,
		GeckoID:         s.extractGeckoID(ctx, raw),
	}
	if desc.Name == "" {
		desc.Name = folder
	}
	if m.ManifestVersion != nil {
		desc.ManifestVersion = *m.ManifestVersion
	}
	return desc, nil, true
}

func (s *Scanner) extractGeckoID(ctx context.Context, raw map[string]any) string {
	out, err := expressions.Run(ctx, s.geckoID, raw)
	if err != nil || len(out) == 0 {
		return ""
	}
	id, _ := out[0].(string)
	return id
}

// Vars exposes a descriptor to filter expressions.
func Vars(d schema.ExtensionDescriptor) map[string]any {
	return map[string]any{
		"name":            d.Name,
		"version":         d.Version,
		"description":     d.Description,
		"folder":          d.Folder,
		"path":            d.Path,
		"geckoId":         d.GeckoID,
		"manifestVersion": d.ManifestVersion,
	}
}
