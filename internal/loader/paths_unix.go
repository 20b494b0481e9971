//go:build !windows

package loader

import (
	"os"
	"path/filepath"
	"runtime"
)

func defaultLoaderFallbacks() []string {
	paths := []string{
		"/usr/local/bin/web-ext",
		"/opt/homebrew/bin/web-ext",
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append([]string{filepath.Join(home, ".npm-global", "bin", "web-ext")}, paths...)
	}
	return paths
}

func defaultBrowserCandidates() []string {
	if runtime.GOOS == "darwin" {
		return []string{
			"/Applications/Firefox.app/Contents/MacOS/firefox",
			"/Applications/Firefox Developer Edition.app/Contents/MacOS/firefox",
			"/Applications/Firefox Nightly.app/Contents/MacOS/firefox",
		}
	}
	return []string{
		"/usr/bin/firefox",
		"/usr/local/bin/firefox",
		"/snap/bin/firefox",
		"/usr/bin/firefox-esr",
		"/opt/firefox/firefox",
	}
}
