// Package prompt asks the user for credentials on the terminal
package prompt

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"golang.org/x/term"
)

// ErrNotInteractive is returned when a prompt is needed but stdin is not a terminal
var ErrNotInteractive = errors.New("stdin is not a terminal")

// Prompter collects input the user did not pass as flags
type Prompter interface {
	Username(defaultValue string) (string, error)
	Password(label string) (string, error)
}

// Terminal prompts on the process terminal
type Terminal struct{}

// IsInteractive reports whether stdin is a terminal
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Username prompts for a username, offering defaultValue
func (Terminal) Username(defaultValue string) (string, error) {
	if !IsInteractive() {
		return "", ErrNotInteractive
	}

	p := promptui.Prompt{
		Label:   "Username",
		Default: defaultValue,
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("username is required")
			}
			return nil
		},
	}
	value, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("prompt cancelled: %w", err)
	}
	return strings.TrimSpace(value), nil
}

// Password prompts for a secret without echoing it
func (Terminal) Password(label string) (string, error) {
	if !IsInteractive() {
		return "", ErrNotInteractive
	}

	p := promptui.Prompt{
		Label: label,
		Mask:  '*',
	}
	value, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("prompt cancelled: %w", err)
	}
	return value, nil
}

// Static answers prompts from fixed values; an empty value fails like a closed terminal
type Static struct {
	User      string
	Passwords []string
}

func (s *Static) Username(defaultValue string) (string, error) {
	if s.User == "" {
		if defaultValue != "" {
			return defaultValue, nil
		}
		return "", ErrNotInteractive
	}
	return s.User, nil
}

func (s *Static) Password(label string) (string, error) {
	if len(s.Passwords) == 0 {
		return "", ErrNotInteractive
	}
	p := s.Passwords[0]
	s.Passwords = s.Passwords[1:]
	return p, nil
}
