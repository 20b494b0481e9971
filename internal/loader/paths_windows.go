//go:build windows

package loader

import (
	"os"
	"path/filepath"
)

func defaultLoaderFallbacks() []string {
	var paths []string
	if appData := os.Getenv("APPDATA"); appData != "" {
		paths = append(paths, filepath.Join(appData, "npm", "web-ext.cmd"))
	}
	return paths
}

func defaultBrowserCandidates() []string {
	return []string{
		`C:\Program Files\Mozilla Firefox\firefox.exe`,
		`C:\Program Files (x86)\Mozilla Firefox\firefox.exe`,
		`C:\Program Files\Firefox Developer Edition\firefox.exe`,
	}
}
