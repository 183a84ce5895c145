package toolcheck

// Default tool lists, overridable through Config. Denylist membership is
// checked before anything else and always wins.

func defaultDeniedTools() []string {
	return []string{
		"delete_repository",
		"delete_repo",
		"drop_database",
		"format_disk",
		"sudo_*",
		"set_env",
		"install_package",
	}
}

func defaultAllowedTools() []string {
	return []string{
		"read_file",
		"write_file",
		"edit_file",
		"create_file",
		"list_files",
		"list_dir",
		"glob",
		"grep",
		"run_command",
		"run_code",
		"git_*",
		"web_fetch",
		"http_get",
		"get_env",
		"create_issue",
		"update_issue",
		"list_issues",
		"create_pull_request",
	}
}
