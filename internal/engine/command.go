package engine

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// ParseCommand splits a configured engine command such as "nice -n 10 ffmpeg"
// into argv form without involving a shell.
func ParseCommand(command string) ([]string, error) {
	if strings.TrimSpace(command) == "" {
		return nil, ErrCommandRequired
	}
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("invalid engine command syntax: %w", err)
	}
	if len(args) == 0 {
		return nil, ErrCommandRequired
	}
	return args, nil
}
