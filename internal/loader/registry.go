package loader

import (
	"sort"
	"time"

	"github.com/rendis/extbridge/pkg/schema"
)

// Record tracks one loaded extension.
type Record struct {
	Path   string
	Method schema.LoadMethod
	// Process is a non-owning handle on the spawned loader. It is nil for
	// profile loads. The process may exit at any time without notice.
	Process     Process
	ProfilePath string
	Browser     string
	LoadedAt    time.Time
}

// Info converts the record to its wire form.
func (r *Record) Info() schema.LoadedInfo {
	info := schema.LoadedInfo{
		Path:        r.Path,
		Method:      r.Method,
		ProfilePath: r.ProfilePath,
		LoadedAt:    r.LoadedAt,
	}
	if r.Process != nil {
		info.PID = r.Process.Pid()
	}
	return info
}

// Registry maps extension paths to their load records. It is owned by a
// single Orchestrator and has no lock: all mutation happens on the sequential
// dispatch loop. It lives only as long as the process.
type Registry struct {
	records map[string]*Record
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

// Get returns the record for path.
func (r *Registry) Get(path string) (*Record, bool) {
	rec, ok := r.records[path]
	return rec, ok
}

// Put stores rec, replacing any record for the same path.
func (r *Registry) Put(rec *Record) {
	r.records[rec.Path] = rec
}

// Delete removes the record for path and reports whether one existed.
func (r *Registry) Delete(path string) bool {
	if _, ok := r.records[path]; !ok {
		return false
	}
	delete(r.records, path)
	return true
}

// Len returns the number of records.
func (r *Registry) Len() int {
	return len(r.records)
}

// Snapshot returns all records sorted by path.
func (r *Registry) Snapshot() []*Record {
	out := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Path < out[j].Path
	})
	return out
}
