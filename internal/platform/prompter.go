package platform

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Prompter запрашивает одно runtime-разрешение у пользователя
type Prompter interface {
	Request(ctx context.Context, permission string) (bool, error)
}

// StaticPrompter отвечает по заранее известному списку выданных разрешений
type StaticPrompter struct {
	granted map[string]bool
}

func NewStaticPrompter(granted []string) *StaticPrompter {
	set := make(map[string]bool, len(granted))
	for _, p := range granted {
		set[strings.TrimSpace(p)] = true
	}
	return &StaticPrompter{granted: set}
}

func (p *StaticPrompter) Request(ctx context.Context, permission string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.granted[permission], nil
}

// ExecPrompter запускает команду с именем разрешения последним аргументом.
// Код выхода 0 - разрешение выдано, ненулевой - отказ.
type ExecPrompter struct {
	command []string
}

func NewExecPrompter(command []string) *ExecPrompter {
	return &ExecPrompter{command: command}
}

func (p *ExecPrompter) Request(ctx context.Context, permission string) (bool, error) {
	if len(p.command) == 0 {
		return false, errors.New("permission command is not configured")
	}

	args := append(append([]string{}, p.command[1:]...), permission)
	err := exec.CommandContext(ctx, p.command[0], args...).Run()
	if err == nil {
		return true, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return false, nil
	}
	return false, fmt.Errorf("permission prompt for %s failed: %w", permission, err)
}
