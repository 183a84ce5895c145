package toolcheck

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"

	"github.com/toolgate-dev/toolgate/api"
	"github.com/toolgate-dev/toolgate/internal/match"
)

// Shell verbs that mutate the filesystem. Allow-listing the command name
// alone is insufficient for these: the argument determines blast radius, so
// every path argument must stay inside the containment root.
var destructiveVerbs = map[string]bool{
	"rm":     true,
	"rmdir":  true,
	"unlink": true,
	"shred":  true,
	"mv":     true,
	"cp":     true,
	"chmod":  true,
	"chown":  true,
	"chgrp":  true,
}

// Verbs whose first positional argument is a mode or owner, not a path.
var skipFirstOperand = map[string]bool{
	"chmod": true,
	"chown": true,
	"chgrp": true,
}

// checkContainment applies the path-containment extension. A nil decision
// means the command is non-destructive or fully contained.
func (v *Validator) checkContainment(command string) (*api.Decision, string) {
	tokens, err := shlex.Split(command)
	if err != nil {
		// Unbalanced quoting: unparseable input denies, never panics.
		return api.Deny("path containment", "malformed input", 1.0), ""
	}
	if len(tokens) == 0 {
		return nil, ""
	}

	verb := filepath.Base(tokens[0])
	args := tokens[1:]
	if verb == "sudo" || verb == "env" {
		if len(args) == 0 {
			return nil, ""
		}
		verb = filepath.Base(args[0])
		args = args[1:]
	}
	if !destructiveVerbs[verb] {
		return nil, ""
	}

	operands := positionalArgs(args)
	if skipFirstOperand[verb] && len(operands) > 0 {
		operands = operands[1:]
	}

	for _, operand := range operands {
		// Wildcard expansion sets cannot be statically verified.
		if match.HasWildcard(operand) {
			return api.Deny("path containment",
				"destructive command with wildcard argument", 1.0), api.ThreatContainment
		}

		resolved, err := v.canonicalize(operand)
		if err != nil {
			return api.Deny("path containment", "path resolution failed", 1.0), api.ThreatContainment
		}
		if !v.contained(resolved) {
			return api.Deny("path containment",
				"destructive command path escapes the project root", 1.0), api.ThreatContainment
		}
	}
	return nil, ""
}

// positionalArgs drops flags. Everything after a bare "--" is positional.
func positionalArgs(args []string) []string {
	var out []string
	flagsDone := false
	for _, a := range args {
		if !flagsDone && a == "--" {
			flagsDone = true
			continue
		}
		if !flagsDone && strings.HasPrefix(a, "-") {
			continue
		}
		out = append(out, a)
	}
	return out
}

// canonicalize expands home shorthand and resolves the token to a canonical
// absolute path, following symlinks. Nonexistent leaves resolve through
// their parent directory so a target that does not exist yet is still
// symlink-checked.
func (v *Validator) canonicalize(token string) (string, error) {
	path := token
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(v.root, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	dir, base := filepath.Split(abs)
	resolvedDir, err := filepath.EvalSymlinks(filepath.Clean(dir))
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, base), nil
}

// contained reports whether the canonical path is a strict descendant of
// the project root or of a whitelisted extra root.
func (v *Validator) contained(path string) bool {
	roots := append([]string{v.root}, v.extraRoots...)
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}
		if path != abs && strings.HasPrefix(path, abs+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
