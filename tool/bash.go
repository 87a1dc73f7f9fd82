package tool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// DefaultDeniedCommands blocks the same destructive base commands the
// teacher's commandtool.DefaultDeniedCommands denies by default.
var DefaultDeniedCommands = []string{
	"rm", "rmdir", "sudo", "su", "chmod", "chown",
	"dd", "mkfs", "fdisk", "mount", "umount",
	"kill", "killall", "pkill", "reboot", "shutdown",
	"passwd", "useradd", "userdel", "groupadd",
}

// DefaultDeniedPatterns blocks the same dangerous shell idioms the teacher's
// commandtool.DefaultDeniedPatterns denies regardless of which permission
// pattern the user has saved — these are a floor, not something the
// interaction protocol's allowlist can override.
var DefaultDeniedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+(-rf|-fr|--recursive)`),
	regexp.MustCompile(`>\s*/dev/`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:\s*&\s*\}\s*;`),
	regexp.MustCompile(`wget.*\|\s*sh`),
	regexp.MustCompile(`curl.*\|\s*sh`),
	regexp.MustCompile(`--no-preserve-root`),
}

// Bash runs a shell command. It is the tool the reactor's tool_called event
// names "bash" and the one PermissionRequest.Kind == PermBash is raised
// for — the permission check happens upstream, in the turn engine, before
// Call is ever reached; Bash itself only enforces the hard security floor
// that no saved pattern can bypass.
type Bash struct {
	WorkingDir     string
	Timeout        time.Duration
	DeniedCommands map[string]bool
	DeniedPatterns []*regexp.Regexp
}

// NewBash constructs a Bash tool with the default deny lists.
func NewBash(workingDir string) *Bash {
	denied := make(map[string]bool, len(DefaultDeniedCommands))
	for _, c := range DefaultDeniedCommands {
		denied[c] = true
	}
	return &Bash{
		WorkingDir:     workingDir,
		Timeout:        5 * time.Minute,
		DeniedCommands: denied,
		DeniedPatterns: DefaultDeniedPatterns,
	}
}

func (t *Bash) Name() string        { return "bash" }
func (t *Bash) Description() string { return "Run a shell command in the kiln's working directory." }

func (t *Bash) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Shell command to execute",
			},
		},
		"required": []string{"command"},
	}
}

func (t *Bash) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	command, _ := args["command"].(string)
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("bash: command is required")
	}
	if err := t.validate(command); err != nil {
		return nil, err
	}

	runCtx := ctx
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = t.WorkingDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	result := map[string]any{
		"command":   command,
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": cmd.ProcessState.ExitCode(),
	}
	if runErr != nil {
		if _, ok := runErr.(*exec.ExitError); !ok {
			return nil, fmt.Errorf("bash: %w", runErr)
		}
	}
	return result, nil
}

func (t *Bash) validate(command string) error {
	base := extractBaseCommand(command)
	if t.DeniedCommands[base] {
		return fmt.Errorf("bash: command %q is denied", base)
	}
	for _, p := range t.DeniedPatterns {
		if p.MatchString(command) {
			return fmt.Errorf("bash: command matches a denied pattern")
		}
	}
	return nil
}

// extractBaseCommand mirrors the teacher's commandtool.extractBaseCommand:
// take the first whitespace-delimited token and strip any path prefix, so
// "/usr/bin/rm -rf /" is still recognized as "rm".
func extractBaseCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	first := fields[0]
	if idx := strings.LastIndex(first, "/"); idx >= 0 {
		first = first[idx+1:]
	}
	return first
}
