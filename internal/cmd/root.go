package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/qrlink/internal/tui"
)

// NewRootCmd builds the complete command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "qrlink",
		Short: "Link devices to your account by scanning QR codes",
		Long: `qrlink signs in to a device-linking server, keeps the session in a local
credential store, and confirms QR link requests shown by other devices.

While a session is active a realtime channel delivers profile updates, which
are applied to the stored session as they arrive.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("home", "", "qrlink home directory (default $QRLINK_HOME or ~/.qrlink)")
	flags.StringP("format", "f", "text", "output format: text, json or yaml")
	flags.String("log-level", "", "log level: debug, info, warn or error (overrides log.level)")
	flags.BoolP("verbose", "v", false, "verbose output and debug logging")
	flags.BoolP("quiet", "q", false, "only print errors")
	flags.Bool("no-color", false, "disable colored output")

	root.AddCommand(
		newAuthCmd(),
		newLinkCmd(),
		newDevicesCmd(),
		newWatchCmd(),
		newConfigCmd(),
		newAuditCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the command tree with ctx and reports a failure once
// through the notifier. The error is returned for exit code mapping.
func ExecuteContext(ctx context.Context) error {
	return execute(ctx, NewRootCmd())
}

func execute(ctx context.Context, root *cobra.Command) error {
	executed, err := root.ExecuteContextC(ctx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || errors.Is(err, tui.ErrAborted) {
		return err
	}

	if executed == nil {
		executed = root
	}
	cmdCtx, ctxErr := NewCommandContext(executed)
	if ctxErr != nil {
		cmdCtx = &CommandContext{}
	}
	cmdCtx.Notifier(executed).Error(err)
	return err
}
