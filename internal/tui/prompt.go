// Package tui holds the interactive parts of the qrlink CLI: huh forms for
// credentials and the bubbletea session view behind `qrlink watch`.
package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
)

// ErrAborted is returned when the user cancels a prompt.
var ErrAborted = errors.New("prompt cancelled")

// LoginInput holds the login form values. Fields already set are not asked
// again.
type LoginInput struct {
	Username string
	Password string
}

// RegisterInput holds the registration form values.
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// LoginForm builds the form for the fields of in that are still empty, or
// nil when nothing is missing.
func LoginForm(in *LoginInput) *huh.Form {
	var fields []huh.Field
	if in.Username == "" {
		fields = append(fields, huh.NewInput().
			Title("Username").
			Validate(required("username")).
			Value(&in.Username))
	}
	if in.Password == "" {
		fields = append(fields, huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Validate(required("password")).
			Value(&in.Password))
	}
	if len(fields) == 0 {
		return nil
	}
	return huh.NewForm(huh.NewGroup(fields...))
}

// RegisterForm builds the registration form for the missing fields of in.
func RegisterForm(in *RegisterInput) *huh.Form {
	var fields []huh.Field
	if in.Username == "" {
		fields = append(fields, huh.NewInput().Title("Username").
			Validate(required("username")).Value(&in.Username))
	}
	if in.Email == "" {
		fields = append(fields, huh.NewInput().Title("Email").
			Validate(required("email")).Value(&in.Email))
	}
	if in.Password == "" {
		fields = append(fields, huh.NewInput().Title("Password").
			EchoMode(huh.EchoModePassword).
			Validate(required("password")).Value(&in.Password))
	}
	if in.ConfirmPassword == "" {
		fields = append(fields, huh.NewInput().Title("Confirm password").
			EchoMode(huh.EchoModePassword).
			Validate(required("password confirmation")).Value(&in.ConfirmPassword))
	}
	if len(fields) == 0 {
		return nil
	}
	return huh.NewForm(huh.NewGroup(fields...))
}

// PromptLogin asks for missing login fields.
func PromptLogin(ctx context.Context, in *LoginInput) error {
	return run(ctx, LoginForm(in))
}

// PromptRegister asks for missing registration fields.
func PromptRegister(ctx context.Context, in *RegisterInput) error {
	return run(ctx, RegisterForm(in))
}

// Confirm displays a yes/no confirmation prompt
func Confirm(ctx context.Context, message string, defaultValue bool) (bool, error) {
	confirmed := defaultValue
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(message).
			Affirmative("Yes").
			Negative("No").
			Value(&confirmed),
	))
	if err := run(ctx, form); err != nil {
		return false, err
	}
	return confirmed, nil
}

func run(ctx context.Context, form *huh.Form) error {
	if form == nil {
		return nil
	}
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ErrAborted
		}
		return fmt.Errorf("prompt failed: %w", err)
	}
	return nil
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

// IsInteractive returns true if stdin is a terminal (not piped)
func IsInteractive() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// ShouldPrompt returns true if prompts should be shown based on environment.
// Prompts are disabled in CI environments or when stdin is not a terminal.
func ShouldPrompt() bool {
	ciEnvVars := []string{
		"CI",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"JENKINS_URL",
		"BUILDKITE",
	}

	for _, envVar := range ciEnvVars {
		if os.Getenv(envVar) != "" {
			return false
		}
	}

	return IsInteractive()
}
