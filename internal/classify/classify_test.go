package classify

import (
	"testing"

	"github.com/toolgate-dev/toolgate/api"
)

func TestDetect_NamePatterns(t *testing.T) {
	tests := []struct {
		name  string
		class api.ResourceClass
	}{
		{"read_file", api.ClassFilesystem},
		{"write_file", api.ClassFilesystem},
		{"git_commit", api.ClassVersionControl},
		{"create_issue", api.ClassIssueAPI},
		{"run_code", api.ClassCodeExecution},
		{"run_command", api.ClassShell},
		{"web_fetch", api.ClassNetwork},
		{"mystery_tool", api.ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.name, nil); got != tt.class {
				t.Errorf("Detect(%q) = %s, want %s", tt.name, got, tt.class)
			}
		})
	}
}

func TestDetect_ParameterShape(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		class  api.ResourceClass
	}{
		{"do_thing", map[string]any{"command": "ls"}, api.ClassShell},
		{"do_thing", map[string]any{"repo": "x", "owner": "y"}, api.ClassIssueAPI},
		{"do_thing", map[string]any{"url": "https://example.com"}, api.ClassNetwork},
		{"do_thing", map[string]any{"path": "src/main.go"}, api.ClassFilesystem},
		{"do_thing", map[string]any{"code": "print(1)"}, api.ClassCodeExecution},
		{"do_thing", map[string]any{"other": 1}, api.ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			if got := Detect(tt.name, tt.params); got != tt.class {
				t.Errorf("Detect(%q, %v) = %s, want %s", tt.name, tt.params, got, tt.class)
			}
		})
	}
}

func TestDetect_NameBeatsShape(t *testing.T) {
	// read_file with a command param stays filesystem: names win.
	got := Detect("read_file", map[string]any{"command": "ls"})
	if got != api.ClassFilesystem {
		t.Errorf("expected filesystem, got %s", got)
	}
}

func TestLooksLikeEnvAccess(t *testing.T) {
	name, ok := LooksLikeEnvAccess("get_env", map[string]any{"name": "HOME"})
	if !ok || name != "HOME" {
		t.Errorf("expected HOME env access, got %q ok=%v", name, ok)
	}

	if _, ok := LooksLikeEnvAccess("read_file", map[string]any{"name": "HOME"}); ok {
		t.Error("read_file should not look like env access")
	}

	// Non-string variable value is not an env access.
	if _, ok := LooksLikeEnvAccess("get_env", map[string]any{"name": 42}); ok {
		t.Error("non-string variable should not be env access")
	}
}
