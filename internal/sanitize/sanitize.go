// Package sanitize classifies shell commands as allowed or denied before the
// tool gateway ever hands them to a runner. It is a pure function: given a
// command and a working directory, it never rewrites the command and never
// executes anything itself.
package sanitize

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Result is the outcome of Check.
type Result struct {
	Allowed bool
	Reason  string
}

// denyPattern pairs a compiled regex with the human-readable reason reported
// when it matches.
type denyPattern struct {
	re     *regexp.Regexp
	reason string
}

// defaultDenyPatterns is the built-in deny table, evaluated before any
// caller-supplied rule. Each entry mirrors one class of destructive or
// exfiltrating shell usage named in the command sanitizer's contract.
var defaultDenyPatterns = []denyPattern{
	{regexp.MustCompile(`(?i)\brm\s+(-\w*r\w*f\w*|-\w*f\w*r\w*)\b`), "recursive delete (rm -rf)"},
	{regexp.MustCompile(`(?i)\bdel\s+/f\b`), "recursive delete (del /f)"},
	{regexp.MustCompile(`(?i)\brmdir\s+/s\b`), "recursive delete (rmdir /s)"},
	{regexp.MustCompile(`(?i)\bmkfs(\.\w+)?\b`), "filesystem format (mkfs)"},
	{regexp.MustCompile(`(?i)\bdd\s+if=`), "raw disk write (dd if=)"},
	{regexp.MustCompile(`(?i)>\s*/dev/sd[a-z]\d*\b`), "raw disk write (/dev/sd*)"},
	{regexp.MustCompile(`(?i)\bformat\s+[a-z]:`), "disk format (format)"},
	{regexp.MustCompile(`(?i)\bdiskpart\b`), "disk partitioning (diskpart)"},
	{regexp.MustCompile(`(?i)\b(shutdown|reboot|poweroff)\b`), "power control"},
	{regexp.MustCompile(`(?i)\binit\s+[06]\b`), "power control (init 0|6)"},
	{regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`), "fork bomb"},
	{regexp.MustCompile(`(?i)\b(curl|wget)\b[^|]*\|\s*(sh|bash|zsh|sudo\s+sh)\b`), "pipe-to-shell"},
	{regexp.MustCompile(`(?i)\bchmod\s+(-R\s+)?(777|a\+(rw)?x|\d*[2367][2367][2367])\b`), "permission escalation (world-writable/setuid)"},
	{regexp.MustCompile(`(?i)\bchmod\s+u\+s\b`), "permission escalation (setuid)"},
	{regexp.MustCompile(`(?i)\b(curl|wget|nc|netcat)\b[^\n]*\b(API_KEY|SECRET|TOKEN|PASSWORD|CREDENTIALS)\b`), "credential exfiltration"},
	{regexp.MustCompile(`(?i)\b(python3?|perl|ruby|node)\s+-[ce]\b`), "dangerous inline interpreter invocation"},
	{regexp.MustCompile(`(?i)\bcrontab\s+(-r|-e)\b`), "crontab rewrite/removal"},
}

// windowsAbsPath and posixAbsPath extract absolute paths for the workspace
// restriction check.
var (
	windowsAbsPath = regexp.MustCompile(`[A-Za-z]:[\\/][^\s"'|&;]*`)
	posixAbsPath   = regexp.MustCompile(`/[^\s"'|&;]*`)
)

// Sanitizer holds the caller-supplied rules layered on top of the built-in
// deny table: extra deny patterns, an optional allow-list, and optional
// workspace restriction. The zero value is a Sanitizer that only applies the
// default deny table.
type Sanitizer struct {
	// ExtraDeny are additional user-supplied deny regexes.
	ExtraDeny []*regexp.Regexp
	// AllowList, when non-empty, requires the command to match at least one
	// entry; an empty AllowList imposes no such requirement.
	AllowList []*regexp.Regexp
	// RestrictWorkspace, when true, rejects ../ traversal and any absolute
	// path resolving outside WorkspaceRoot.
	RestrictWorkspace bool
	WorkspaceRoot     string
}

// Check classifies command for execution under cwd, evaluating in order:
// default deny patterns, extra deny patterns, the allow-list (if any), then
// workspace restriction (if enabled). The first matching deny reason wins;
// Check never rewrites command.
func (s Sanitizer) Check(command, cwd string) Result {
	for _, p := range defaultDenyPatterns {
		if p.re.MatchString(command) {
			return Result{Allowed: false, Reason: p.reason}
		}
	}

	for _, re := range s.ExtraDeny {
		if re.MatchString(command) {
			return Result{Allowed: false, Reason: fmt.Sprintf("matched deny rule: %s", re.String())}
		}
	}

	if len(s.AllowList) > 0 {
		matched := false
		for _, re := range s.AllowList {
			if re.MatchString(command) {
				matched = true
				break
			}
		}
		if !matched {
			return Result{Allowed: false, Reason: "command does not match any allow-list pattern"}
		}
	}

	if s.RestrictWorkspace {
		if reason, blocked := checkWorkspace(command, cwd, s.WorkspaceRoot); blocked {
			return Result{Allowed: false, Reason: reason}
		}
	}

	return Result{Allowed: true}
}

func checkWorkspace(command, cwd, root string) (reason string, blocked bool) {
	if strings.Contains(command, "../") || strings.Contains(command, "..\\") {
		return "path traversal outside workspace (../)", true
	}

	root = filepath.Clean(root)

	for _, match := range windowsAbsPath.FindAllString(command, -1) {
		if outsideWorkspace(match, cwd, root) {
			return fmt.Sprintf("absolute path %q resolves outside workspace", match), true
		}
	}
	for _, match := range posixAbsPath.FindAllString(command, -1) {
		if outsideWorkspace(match, cwd, root) {
			return fmt.Sprintf("absolute path %q resolves outside workspace", match), true
		}
	}

	return "", false
}

func outsideWorkspace(path, cwd, root string) bool {
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(cwd, resolved)
	}
	resolved = filepath.Clean(resolved)

	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return true
	}
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
