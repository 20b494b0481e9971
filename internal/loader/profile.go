package loader

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/rendis/extbridge/pkg/schema"
)

// profilePrefs relax the checks that would otherwise disable an unsigned,
// side-loaded extension.
const profilePrefs = `user_pref("xpinstall.signatures.required", false);
user_pref("extensions.autoDisableScopes", 0);
user_pref("extensions.enabledScopes", 15);
`

// findBrowser returns the configured Firefox path, else the first platform
// candidate that exists, else firefox from PATH, else "".
func (o *Orchestrator) findBrowser() string {
	candidates := make([]string, 0, len(o.opts.BrowserCandidates)+2)
	if o.opts.FirefoxPath != "" {
		candidates = append(candidates, o.opts.FirefoxPath)
	}
	candidates = append(candidates, o.opts.BrowserCandidates...)
	candidates = append(candidates, "firefox")

	for _, c := range candidates {
		if p, err := o.opts.LookPath(c); err == nil {
			return p
		}
	}
	return ""
}

// prepareProfile materializes a fresh profile with dir installed into it. The
// extension becomes live only when the browser is started on that profile.
// A partial profile is removed on failure.
func (o *Orchestrator) prepareProfile(ctx context.Context, browser, dir string) (*Record, error) {
	profile := filepath.Join(o.opts.ProfileRoot, "extbridge-profile-"+uuid.New().String())

	fail := func(step string, err error) (*Record, error) {
		_ = os.RemoveAll(profile)
		return nil, schema.NewErrorf(schema.ErrCodePreparationFailed, "%s: %v", step, err).
			WithCause(err).
			WithDetails(map[string]any{"profile": profile})
	}

	if err := os.MkdirAll(filepath.Join(profile, "extensions"), 0o700); err != nil {
		return fail("create profile", err)
	}
	if err := os.WriteFile(filepath.Join(profile, "user.js"), []byte(profilePrefs), 0o600); err != nil {
		return fail("write preferences", err)
	}

	target := filepath.Join(profile, "extensions", o.installName(ctx, dir))
	if err := copyDir(dir, target); err != nil {
		return fail("copy extension", err)
	}

	return &Record{
		Path:        dir,
		Method:      schema.MethodProfile,
		ProfilePath: profile,
		Browser:     browser,
		LoadedAt:    o.opts.Now(),
	}, nil
}

// installName is the add-on ID when the manifest declares one, which is what
// Firefox expects for unpacked profile installs, else the folder name.
func (o *Orchestrator) installName(ctx context.Context, dir string) string {
	if o.opts.Describe != nil {
		if desc, ok := o.opts.Describe(ctx, dir); ok && desc.GeckoID != "" {
			return desc.GeckoID
		}
	}
	return filepath.Base(dir)
}

// copyDir recursively copies the tree rooted at src to dst.
func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			// Linked files are copied by content; linked directories are not followed.
			if info, err = os.Stat(p); err != nil {
				return err
			}
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(p, target, info.Mode().Perm())
	})
}

// copyFile copies a single file, following symlinks.
func copyFile(src, dst string, mode os.FileMode) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode|0o200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return dstFile.Close()
}
