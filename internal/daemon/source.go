package daemon

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Source reads the current OS clipboard contents. The OS primitive is
// an external collaborator; the daemon only needs "give me the current
// text".
type Source interface {
	Read(ctx context.Context) (string, error)
}

// CommandSource shells out to a paste command (pbpaste, wl-paste,
// xclip -o, ...) to read the clipboard.
type CommandSource struct {
	// Name and Args form the command line, e.g. "wl-paste", ["-n"].
	Name string
	Args []string
}

// NewCommandSource builds a CommandSource from a command line.
func NewCommandSource(name string, args ...string) *CommandSource {
	return &CommandSource{Name: name, Args: args}
}

// Read implements Source.
func (s *CommandSource) Read(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, s.Name, s.Args...)
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to read clipboard via %s: %w", s.Name, err)
	}
	// Paste tools append a trailing newline that isn't part of the
	// clipboard payload.
	return strings.TrimSuffix(string(output), "\n"), nil
}
