package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/qrlink/internal/ux"
)

// CommandContext holds the persistent flags of one invocation, so commands
// carry no global state between runs.
type CommandContext struct {
	// Output control
	Verbose bool
	Quiet   bool
	Format  string
	NoColor bool

	// Configuration
	Home     string
	LogLevel string
}

// NewCommandContext extracts command context from cobra.Command flags.
// Commands should call this in their RunE function to get their configuration:
//
//	func runCommand(cmd *cobra.Command, args []string) error {
//		cmdCtx, err := NewCommandContext(cmd)
//		if err != nil {
//			return fmt.Errorf("failed to create command context: %w", err)
//		}
//		// Use cmdCtx.Verbose, cmdCtx.Format, etc.
//	}
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, err
	}

	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return nil, err
	}

	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return nil, err
	}

	noColor, err := cmd.Flags().GetBool("no-color")
	if err != nil {
		return nil, err
	}

	home, err := cmd.Flags().GetString("home")
	if err != nil {
		return nil, err
	}

	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, err
	}

	return &CommandContext{
		Verbose:  verbose,
		Quiet:    quiet,
		Format:   format,
		NoColor:  noColor,
		Home:     home,
		LogLevel: logLevel,
	}, nil
}

// Notifier writes status lines to the command's output streams.
func (c *CommandContext) Notifier(cmd *cobra.Command) *ux.Notifier {
	return ux.NewNotifier(cmd.OutOrStdout(), cmd.ErrOrStderr(), ux.NotifierOptions{
		Quiet:   c.Quiet,
		NoColor: c.NoColor,
		Verbose: c.Verbose,
	})
}

// Formatter writes results in the --format encoding.
func (c *CommandContext) Formatter(cmd *cobra.Command) (ux.Formatter, error) {
	return ux.NewFormatter(c.Format, &ux.FormatterOptions{Writer: cmd.OutOrStdout()})
}

// Structured reports whether output is machine-readable.
func (c *CommandContext) Structured() bool {
	return c.Format == ux.FormatJSON || c.Format == ux.FormatYAML
}
