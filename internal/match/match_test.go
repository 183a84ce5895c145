package match

import "testing"

func TestPath(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"src/**", "src/main.go", true},
		{"src/**", "src/pkg/deep/file.go", true},
		{"src/*", "src/pkg/deep/file.go", false},
		{"**/*.go", "a/b/c.go", true},
		{"/etc/*", "/etc/passwd", true},
		{"/etc/*", "/etc/ssl/certs", false},
		{"docs/**", "src/main.go", false},
		{"./src/**", "src/main.go", true},
		{"./**", "main.go", true},
		{"**", "main.go", true},
		{"[invalid", "anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.path, func(t *testing.T) {
			if got := Path(tt.pattern, tt.path); got != tt.want {
				t.Errorf("Path(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
			}
		})
	}
}

func TestCommand(t *testing.T) {
	tests := []struct {
		pattern string
		command string
		want    bool
	}{
		{"pytest *", "pytest tests/", true},
		{"pytest *", "pytest", false},
		{"git *", "git status", true},
		{"git *", "gitx status", false},
		{"ls", "ls", true},
		{"ls", "ls -la", false},
		{"go test *", "go test ./...", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			if got := Command(tt.pattern, tt.command); got != tt.want {
				t.Errorf("Command(%q, %q) = %v, want %v", tt.pattern, tt.command, got, tt.want)
			}
		})
	}
}

func TestCommandAnyExact(t *testing.T) {
	patterns := []string{"ls", "git *"}

	matched, exact := CommandAny(patterns, "ls")
	if !matched || !exact {
		t.Errorf("expected exact match for ls, got matched=%v exact=%v", matched, exact)
	}

	matched, exact = CommandAny(patterns, "git push")
	if !matched || exact {
		t.Errorf("expected pattern match for git push, got matched=%v exact=%v", matched, exact)
	}

	matched, _ = CommandAny(patterns, "rm -rf /")
	if matched {
		t.Error("rm -rf / should not match")
	}
}

func TestDomain(t *testing.T) {
	tests := []struct {
		pattern string
		host    string
		want    bool
	}{
		{"*", "anything.example.com", true},
		{"*.example.com", "api.example.com", true},
		{"*.example.com", "example.com", true},
		{"*.example.com", "evil-example.com", false},
		{"*.example.com", "example.com.evil.io", false},
		{"api.github.com", "api.github.com", true},
		{"api.github.com", "API.GITHUB.COM", true},
		{"api.github.com", "github.com", false},
		{"", "github.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.host, func(t *testing.T) {
			if got := Domain(tt.pattern, tt.host); got != tt.want {
				t.Errorf("Domain(%q, %q) = %v, want %v", tt.pattern, tt.host, got, tt.want)
			}
		})
	}
}

func TestNameAny(t *testing.T) {
	patterns := []string{"PATH", "GO*", "LANG"}

	if !NameAny(patterns, "GOPATH") {
		t.Error("GOPATH should match GO*")
	}
	if NameAny(patterns, "AWS_SECRET_ACCESS_KEY") {
		t.Error("AWS_SECRET_ACCESS_KEY should not match")
	}
}

func TestHasWildcard(t *testing.T) {
	if !HasWildcard("*.txt") || !HasWildcard("file?.go") {
		t.Error("wildcard not detected")
	}
	if HasWildcard("plain/path.txt") {
		t.Error("false wildcard detection")
	}
}
