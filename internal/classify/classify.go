// Package classify determines the resource class of an incoming tool call
// from its name and parameter shape. Detection is pure, total, and
// deterministic: it never returns an error and never panics.
package classify

import (
	"strings"

	"github.com/toolgate-dev/toolgate/api"
)

var namePatterns = []struct {
	substrings []string
	class      api.ResourceClass
}{
	{[]string{"git_", "git-"}, api.ClassVersionControl},
	{[]string{"read_file", "write_file", "edit_file", "list_dir", "list_files", "glob", "delete_file", "create_file", "move_file", "copy_file"}, api.ClassFilesystem},
	{[]string{"issue", "pull_request", "github", "gitlab", "jira"}, api.ClassIssueAPI},
	{[]string{"run_code", "execute_code", "eval", "notebook", "interpreter"}, api.ClassCodeExecution},
	{[]string{"shell", "bash", "run_command", "exec_command", "terminal"}, api.ClassShell},
	{[]string{"fetch", "http", "download", "web_", "curl", "request"}, api.ClassNetwork},
}

// Detect classifies a call. Name patterns are consulted first, then
// parameter-shape heuristics, then ClassUnknown.
func Detect(name string, params map[string]any) api.ResourceClass {
	lower := strings.ToLower(name)

	for _, np := range namePatterns {
		for _, sub := range np.substrings {
			if strings.Contains(lower, sub) {
				return np.class
			}
		}
	}

	// Parameter-shape heuristics.
	if params != nil {
		if _, ok := params["command"]; ok {
			return api.ClassShell
		}
		if hasKey(params, "repo") && hasKey(params, "owner") {
			return api.ClassIssueAPI
		}
		if hasKey(params, "url") || hasKey(params, "uri") {
			return api.ClassNetwork
		}
		if hasKey(params, "path") || hasKey(params, "file_path") || hasKey(params, "filename") {
			return api.ClassFilesystem
		}
		if hasKey(params, "code") || hasKey(params, "source") {
			return api.ClassCodeExecution
		}
	}

	return api.ClassUnknown
}

// LooksLikeEnvAccess reports whether the call reads environment variables.
// Env reads ride on top of the class system: a filesystem- or shell-classed
// call can still be an env access (e.g. get_env, read_env_var).
func LooksLikeEnvAccess(name string, params map[string]any) (varName string, ok bool) {
	lower := strings.ToLower(name)
	if !strings.Contains(lower, "env") {
		return "", false
	}
	for _, key := range []string{"variable", "var", "name", "key"} {
		if v, present := params[key]; present {
			if s, isStr := v.(string); isStr {
				return s, true
			}
			return "", false
		}
	}
	return "", false
}

func hasKey(params map[string]any, key string) bool {
	_, ok := params[key]
	return ok
}
