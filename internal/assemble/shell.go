package assemble

import "strings"

// ShellQuote wraps value in single quotes so a POSIX shell reads it back
// literally.
func ShellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

// ShellCommand prefixes cmdline with the DISPLAY export when display is set.
// The display comes from the client and is quoted.
func ShellCommand(cmdline, display string) string {
	if display == "" {
		return cmdline
	}
	return "export DISPLAY=" + ShellQuote(display) + "; " + cmdline
}

// LoginShellArgs returns the argv that runs cmdline through a login shell.
func LoginShellArgs(cmdline, display string) []string {
	return []string{"bash", "-l", "-c", ShellCommand(cmdline, display)}
}

// LoginShell renders the login shell invocation as a single shell string.
func LoginShell(cmdline, display string) string {
	return "bash -l -c " + ShellQuote(ShellCommand(cmdline, display))
}
