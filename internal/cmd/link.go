package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	qerrors "github.com/felixgeelhaar/qrlink/internal/errors"
	"github.com/felixgeelhaar/qrlink/internal/linking"
	"github.com/felixgeelhaar/qrlink/internal/telemetry"
)

// maxPayloadBytes bounds what is read from stdin or --file.
const maxPayloadBytes = 64 << 10

func newLinkCmd() *cobra.Command {
	linkCmd := &cobra.Command{
		Use:   "link",
		Short: "Link devices by QR code",
	}

	scanCmd := &cobra.Command{
		Use:   "scan [payload]",
		Short: "Confirm a scanned link QR code",
		Long: `Confirm a link request with the text decoded from a QR code. The payload
is read from the argument, from --file, or from stdin when the argument is
'-' or absent.

Examples:
  qrlink link scan '{"session_id":"abc123"}'
  zbarimg --raw -q code.png | qrlink link scan
  qrlink link scan --file payload.txt`,
		Args: cobra.MaximumNArgs(1),
		RunE: runLinkScan,
	}
	scanCmd.Flags().String("file", "", "read the payload from a file")

	showCmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Render a link payload as a QR code",
		Long: `Render the link payload for a session ID as a terminal QR code, for testing
the scan path end to end.`,
		Args: cobra.ExactArgs(1),
		RunE: runLinkShow,
	}
	showCmd.Flags().Bool("invert", false, "invert colors for light terminal backgrounds")
	showCmd.Flags().String("png", "", "also write the QR code to a PNG file")
	showCmd.Flags().Int("size", 256, "PNG size in pixels")

	linkCmd.AddCommand(scanCmd, showCmd)
	return linkCmd
}

func runLinkScan(cmd *cobra.Command, args []string) (err error) {
	ctx, span := telemetry.StartCommandSpan(cmd.Context(), "link.scan")
	defer func() { telemetry.End(span, err) }()

	raw, err := readPayload(cmd, args)
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	defer func() { a.record(err) }()

	snap := a.loadSession(ctx)
	token, _ := a.session.Token()

	res := a.flow.HandleScannedPayload(ctx, raw, token)
	_ = a.auditor().LogLinkScan(snap.User.Username, res.SessionID, string(res.Outcome), res.Err)
	if !res.OK() {
		return res.Err
	}

	if a.cmdCtx.Structured() {
		return writeResult(cmd, a.cmdCtx, linkView{Outcome: string(res.Outcome), Message: res.Message, SessionID: res.SessionID})
	}
	a.notify.Success(res.Message)
	return nil
}

type linkView struct {
	Outcome   string `json:"outcome" yaml:"outcome"`
	Message   string `json:"message" yaml:"message"`
	SessionID string `json:"session_id" yaml:"session_id"`
}

func readPayload(cmd *cobra.Command, args []string) (string, error) {
	file, _ := cmd.Flags().GetString("file")
	if file != "" && len(args) > 0 && args[0] != "-" {
		return "", qerrors.ValidationFailed("Pass the payload as an argument or with --file, not both")
	}

	switch {
	case len(args) > 0 && args[0] != "-":
		return args[0], nil
	case file != "":
		f, err := os.Open(file)
		if err != nil {
			return "", qerrors.Wrap(qerrors.ErrCodeValidationFailed, "Cannot read payload file", err)
		}
		defer f.Close()
		return readLimited(f)
	default:
		return readLimited(cmd.InOrStdin())
	}
}

func readLimited(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxPayloadBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read payload: %w", err)
	}
	if len(data) > maxPayloadBytes {
		return "", qerrors.InvalidQRPayload(fmt.Errorf("payload exceeds %d bytes", maxPayloadBytes))
	}
	return strings.TrimSpace(string(data)), nil
}

func runLinkShow(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return fmt.Errorf("failed to create command context: %w", err)
	}

	payload, err := linking.EncodePayload(strings.TrimSpace(args[0]))
	if err != nil {
		return err
	}

	if png, _ := cmd.Flags().GetString("png"); png != "" {
		size, _ := cmd.Flags().GetInt("size")
		if err := linking.WritePNG(payload, png, size); err != nil {
			return err
		}
		if !cmdCtx.Structured() {
			cmdCtx.Notifier(cmd).Info("Wrote " + png)
		}
	}

	if cmdCtx.Structured() {
		return writeResult(cmd, cmdCtx, qrView{SessionID: strings.TrimSpace(args[0]), Payload: payload})
	}

	invert, _ := cmd.Flags().GetBool("invert")
	art, err := linking.RenderQR(payload, invert)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), art)
	fmt.Fprintln(cmd.OutOrStdout(), payload)
	return nil
}

type qrView struct {
	SessionID string `json:"session_id" yaml:"session_id"`
	Payload   string `json:"payload" yaml:"payload"`
}
