package resource

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/toolgate-dev/toolgate/api"
	"github.com/toolgate-dev/toolgate/internal/match"
)

// Hardcoded sensitive-file denylist. Checked against both the raw and the
// symlink-resolved path, and it always wins over the allow-list.
var sensitivePathPatterns = []string{
	"**/.ssh/**",
	"**/id_rsa*",
	"**/id_ed25519*",
	"**/id_ecdsa*",
	"**/id_dsa*",
	"**/*.pem",
	"**/.aws/**",
	"**/.gnupg/**",
	"**/.kube/config",
	"**/.docker/config.json",
	"**/.netrc",
	"**/.npmrc",
	"**/.pypirc",
	"**/.env",
	"**/.env.*",
	"**/credentials",
	"**/credentials.*",
	"**/secrets.*",
	"**/*.keychain*",
	"/etc/passwd",
	"/etc/shadow",
	"/etc/sudoers*",
	"/etc/ssl/private/**",
}

// SensitivePath reports whether a path hits the hardcoded denylist. Exported
// for the tool validator's sensitive-path scan.
func SensitivePath(path string) bool {
	p := filepath.ToSlash(path)
	if match.PathAny(sensitivePathPatterns, p) {
		return true
	}
	// Also match the path without a leading "./" or absolute prefix quirks.
	return match.PathAny(sensitivePathPatterns, strings.TrimPrefix(p, "./"))
}

// ValidateRead decides a filesystem read of path.
func (v *Validator) ValidateRead(ctx context.Context, path string) *api.Decision {
	return v.validateFS(ctx, path, v.policy.Filesystem.Read, "read")
}

// ValidateWrite decides a filesystem write of path.
func (v *Validator) ValidateWrite(ctx context.Context, path string) *api.Decision {
	return v.validateFS(ctx, path, v.policy.Filesystem.Write, "write")
}

func (v *Validator) validateFS(ctx context.Context, path string, allow []string, op string) *api.Decision {
	start := time.Now()

	if emptyOrBinary(path) {
		d := malformed("filesystem " + op)
		v.record(ctx, api.ClassFilesystem, path, d, "", start)
		return d
	}

	clean := filepath.ToSlash(filepath.Clean(path))

	// Traversal sequences are rejected before any resolution.
	if hasTraversal(clean) {
		d := api.Deny("path traversal", "path escapes via traversal sequence", 1.0)
		v.record(ctx, api.ClassFilesystem, path, d, api.ThreatTraversal, start)
		return d
	}

	if SensitivePath(clean) {
		d := api.Deny("sensitive file", "path is on the sensitive-file denylist", 1.0)
		v.record(ctx, api.ClassFilesystem, path, d, api.ThreatSensitivePath, start)
		return d
	}

	if !v.matchesFS(allow, clean) {
		d := api.Deny("filesystem allow-list", "path matches no "+op+" allow pattern", 1.0)
		v.record(ctx, api.ClassFilesystem, path, d, "", start)
		return d
	}

	// Resolve symlinks and re-check the resolved target. A symlink that
	// redirects an allow-listed path outside the allow-list is denied.
	resolved, err := v.resolve(clean)
	if err != nil {
		d := api.Deny("filesystem "+op, "path resolution failed", 1.0)
		v.record(ctx, api.ClassFilesystem, path, d, "", start)
		return d
	}

	if resolved != clean {
		if SensitivePath(resolved) {
			d := api.Deny("sensitive file", "resolved target is on the sensitive-file denylist", 1.0)
			v.record(ctx, api.ClassFilesystem, path, d, api.ThreatSensitivePath, start)
			return d
		}
		if !v.matchesFS(allow, resolved) {
			d := api.Deny("symlink redirection", "resolved target matches no "+op+" allow pattern", 1.0)
			v.record(ctx, api.ClassFilesystem, path, d, api.ThreatTraversal, start)
			return d
		}
	}

	d := api.Approve("filesystem allow-list", 1.0)
	v.record(ctx, api.ClassFilesystem, path, d, "", start)
	return d
}

// matchesFS tests a path against allow patterns in raw, absolute, and
// project-relative forms so "src/**" covers both spellings.
func (v *Validator) matchesFS(allow []string, path string) bool {
	candidates := []string{path}

	abs, err := filepath.Abs(filepath.Join(v.root, path))
	if !filepath.IsAbs(path) && err == nil {
		candidates = append(candidates, filepath.ToSlash(abs))
	}
	if filepath.IsAbs(path) {
		root, err := filepath.Abs(v.root)
		if err == nil {
			if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
				candidates = append(candidates, filepath.ToSlash(rel))
			}
		}
	}

	for _, c := range candidates {
		if match.PathAny(allow, c) {
			return true
		}
	}
	return false
}

// resolve canonicalizes a path, following symlinks. For paths that do not
// exist yet (e.g. a write target), the deepest existing ancestor is resolved
// and the remainder re-joined, so the verdict is still symlink-aware.
func (v *Validator) resolve(path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		var err error
		abs, err = filepath.Abs(filepath.Join(v.root, path))
		if err != nil {
			return "", err
		}
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return rebase(v, resolved, path)
	}

	dir, base := filepath.Split(abs)
	resolvedDir, err := filepath.EvalSymlinks(filepath.Clean(dir))
	if err != nil {
		return "", err
	}
	return rebase(v, filepath.Join(resolvedDir, base), path)
}

// rebase maps an absolute resolved path back to project-relative form when
// the original was relative, so allow-lists keep matching.
func rebase(v *Validator, resolved, original string) (string, error) {
	resolved = filepath.ToSlash(resolved)
	if filepath.IsAbs(original) {
		return resolved, nil
	}
	root, err := filepath.Abs(v.root)
	if err != nil {
		return "", err
	}
	// t.TempDir style roots may themselves contain symlinks.
	if r, err := filepath.EvalSymlinks(root); err == nil {
		root = r
	}
	if rel, err := filepath.Rel(root, resolved); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel), nil
	}
	return resolved, nil
}

func hasTraversal(path string) bool {
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}
