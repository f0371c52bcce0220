package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/qrlink/internal/config"
)

const redacted = "********"

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "View or edit qrlink configuration",
		Long: `Manage the qrlink configuration file (config.yaml in the qrlink home).

Values are resolved from defaults, the file, a .env file and QRLINK_*
environment variables, in that order. 'view' and 'get' show the effective
value; 'set' only ever writes the file.

Keys:
  ` + strings.Join(config.Keys(), "\n  "),
	}

	configCmd.AddCommand(
		&cobra.Command{
			Use:   "view",
			Short: "Display the effective configuration",
			Args:  cobra.NoArgs,
			RunE:  runConfigView,
		},
		&cobra.Command{
			Use:   "edit",
			Short: "Edit configuration in $EDITOR",
			Args:  cobra.NoArgs,
			RunE:  runConfigEdit,
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Get a specific configuration value",
			Args:  cobra.ExactArgs(1),
			RunE:  runConfigGet,
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Set a specific configuration value",
			Args:  cobra.ExactArgs(2),
			RunE:  runConfigSet,
		},
		&cobra.Command{
			Use:   "path",
			Short: "Show configuration file path",
			Args:  cobra.NoArgs,
			RunE:  runConfigPath,
		},
	)
	return configCmd
}

func configHome(cmd *cobra.Command) (*CommandContext, string, error) {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create command context: %w", err)
	}
	home, err := config.HomeDir(cmdCtx.Home)
	if err != nil {
		return nil, "", err
	}
	return cmdCtx, home, nil
}

// redact hides secrets in a copy of cfg.
func redact(cfg config.Config) config.Config {
	if cfg.Store.VaultToken != "" {
		cfg.Store.VaultToken = redacted
	}
	return cfg
}

func runConfigView(cmd *cobra.Command, args []string) error {
	cmdCtx, home, err := configHome(cmd)
	if err != nil {
		return err
	}

	cfg, err := config.Load(home)
	if err != nil {
		return err
	}
	view := redact(*cfg)

	if cmdCtx.Structured() {
		return writeResult(cmd, cmdCtx, view)
	}

	data, err := yaml.Marshal(view)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration file: %s\n\n", config.Path(home))
	fmt.Fprint(out, string(data))
	return nil
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	cmdCtx, home, err := configHome(cmd)
	if err != nil {
		return err
	}
	path := config.Path(home)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err := config.LoadFile(home)
		if err != nil {
			return err
		}
		if err := config.Save(cfg, path); err != nil {
			return err
		}
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	editorCmd := exec.CommandContext(cmd.Context(), editor, path)
	editorCmd.Stdin = cmd.InOrStdin()
	editorCmd.Stdout = cmd.OutOrStdout()
	editorCmd.Stderr = cmd.ErrOrStderr()
	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("failed to run editor: %w", err)
	}

	if _, err := config.Load(home); err != nil {
		return fmt.Errorf("configuration may contain errors: %w", err)
	}
	cmdCtx.Notifier(cmd).Success("Configuration updated")
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	_, home, err := configHome(cmd)
	if err != nil {
		return err
	}

	cfg, err := config.Load(home)
	if err != nil {
		return err
	}
	value, err := cfg.Get(args[0])
	if err != nil {
		return err
	}
	if args[0] == "store.vault_token" && value != "" {
		value = redacted
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	cmdCtx, home, err := configHome(cmd)
	if err != nil {
		return err
	}

	cfg, err := config.LoadFile(home)
	if err != nil {
		return err
	}
	if err := cfg.Set(args[0], args[1]); err != nil {
		return err
	}
	if err := config.Save(cfg, config.Path(home)); err != nil {
		return err
	}

	shown := args[1]
	if args[0] == "store.vault_token" {
		shown = redacted
	}
	cmdCtx.Notifier(cmd).Success(fmt.Sprintf("Set %s = %s", args[0], shown))
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	_, home, err := configHome(cmd)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), config.Path(home))
	return nil
}
