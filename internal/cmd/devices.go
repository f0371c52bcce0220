package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/qrlink/internal/domain"
	qerrors "github.com/felixgeelhaar/qrlink/internal/errors"
	"github.com/felixgeelhaar/qrlink/internal/telemetry"
	"github.com/felixgeelhaar/qrlink/internal/tui"
)

func newDevicesCmd() *cobra.Command {
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List and revoke linked devices",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the devices linked to your account",
		Args:  cobra.NoArgs,
		RunE:  runDevicesList,
	}

	revokeCmd := &cobra.Command{
		Use:   "revoke <device-id>",
		Short: "Revoke a linked device",
		Long: `Revoke a linked device, then show the updated device list.

Examples:
  qrlink devices revoke 4f3c2a
  qrlink devices revoke 4f3c2a --yes`,
		Args: cobra.ExactArgs(1),
		RunE: runDevicesRevoke,
	}
	revokeCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")

	devicesCmd.AddCommand(listCmd, revokeCmd)
	return devicesCmd
}

func runDevicesList(cmd *cobra.Command, args []string) (err error) {
	ctx, span := telemetry.StartCommandSpan(cmd.Context(), "devices.list")
	defer func() { telemetry.End(span, err) }()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	defer func() { a.record(err) }()

	a.loadSession(ctx)
	return a.listDevices(ctx, cmd)
}

func (a *app) listDevices(ctx context.Context, cmd *cobra.Command) error {
	token, _ := a.session.Token()
	devices, err := a.client.ListDevices(ctx, token)
	if err != nil {
		return prefixed(msgDevicesFailed, err)
	}
	return writeResult(cmd, a.cmdCtx, deviceList(devices))
}

func runDevicesRevoke(cmd *cobra.Command, args []string) (err error) {
	ctx, span := telemetry.StartCommandSpan(cmd.Context(), "devices.revoke")
	defer func() { telemetry.End(span, err) }()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	defer func() { a.record(err) }()

	deviceID := args[0]
	snap := a.loadSession(ctx)
	if !snap.IsAuthenticated() {
		return qerrors.NotAuthenticatedFor("You must be logged in to revoke a device")
	}

	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		if !tui.ShouldPrompt() {
			return qerrors.ValidationFailed("Refusing to revoke without confirmation; pass --yes")
		}
		ok, err := tui.Confirm(ctx, fmt.Sprintf("Revoke device %s?", deviceID), false)
		if err != nil {
			return err
		}
		if !ok {
			a.notify.Info("Revoke cancelled")
			return nil
		}
	}

	err = a.client.RevokeDevice(ctx, deviceID, snap.Token)
	_ = a.auditor().LogDeviceRevoked(snap.User.Username, deviceID, err)
	if err != nil {
		return err
	}
	a.notify.Success(msgDeviceRevoked)

	return a.listDevices(ctx, cmd)
}

type deviceList []domain.Device

func (l deviceList) RenderText(out io.Writer) error {
	if len(l) == 0 {
		_, err := fmt.Fprintln(out, "No linked devices")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "DEVICE ID\tNAME\tSTATUS\tLAST ACTIVE\tLINKED") //nolint:errcheck
	for _, d := range l {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", //nolint:errcheck
			d.DeviceID, d.DisplayName(), d.Status(),
			formatTimestamp(d.LastActive), formatTimestamp(d.CreatedAt))
	}
	return w.Flush()
}

func formatTimestamp(s string) string {
	t, ok := domain.ParseTimestamp(s)
	if !ok {
		if s == "" {
			return "-"
		}
		return s
	}
	return t.Local().Format(time.DateTime)
}
