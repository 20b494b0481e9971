package schema

import "time"

// ExtensionDescriptor is a scanned candidate extension. It is validated only to the
// extent that its manifest parses as JSON.
type ExtensionDescriptor struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	Description     string `json:"description,omitempty"`
	Path            string `json:"path"`
	Folder          string `json:"folder"`
	ManifestVersion int    `json:"manifestVersion"`
	GeckoID         string `json:"geckoId,omitempty"`
}

// SkippedEntry is a directory whose manifest exists but could not be used.
type SkippedEntry struct {
	Path   string `json:"path"`
	Folder string `json:"folder"`
	Reason string `json:"reason"`
}

// LoadMethod identifies the strategy that brought an extension to "loaded".
type LoadMethod string

const (
	MethodExternal LoadMethod = "external"
	MethodProfile  LoadMethod = "profile"
)

// LoadedInfo is the wire view of a registry record.
type LoadedInfo struct {
	Path        string     `json:"path"`
	Method      LoadMethod `json:"method"`
	PID         int        `json:"pid,omitempty"`
	ProfilePath string     `json:"profilePath,omitempty"`
	LoadedAt    time.Time  `json:"loadedAt"`
}

// WatchState summarizes the most recent background rescan of the extension folder.
type WatchState struct {
	Schedule string     `json:"schedule"`
	LastScan *time.Time `json:"lastScan,omitempty"`
	Added    []string   `json:"added"`
	Removed  []string   `json:"removed"`
}
