package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/qrlink/internal/health"
)

func newDoctorCmd() *cobra.Command {
	doctorCmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run connectivity and storage diagnostics",
		Long: `Check that qrlink can work with its configuration.

Checks include:
  • api-server: the API base URL answers HTTP
  • realtime-endpoint: the websocket host accepts TCP connections
  • credential-store: the configured store backend can be read

Examples:
  qrlink doctor
  qrlink doctor --format json
`,
		Args: cobra.NoArgs,
		RunE: runDoctor,
	}
	doctorCmd.Flags().Duration("timeout", 5*time.Second, "timeout per check")
	return doctorCmd
}

// DoctorReport represents the complete health check report
type DoctorReport struct {
	Status string           `json:"status" yaml:"status"`
	Checks []*health.Result `json:"checks" yaml:"checks"`
}

func runDoctor(cmd *cobra.Command, args []string) (err error) {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	defer func() { a.record(err) }()

	timeout, _ := cmd.Flags().GetDuration("timeout")
	manager := health.NewManager(
		health.NewAPIChecker(a.client),
		health.NewRealtimeChecker(a.cfg.RealtimeBaseURL()),
		health.NewStoreChecker(a.store, a.cfg.Store.Backend),
	).WithTimeout(timeout)

	results := manager.Check(cmd.Context())
	report := DoctorReport{
		Status: health.OverallStatus(results).String(),
		Checks: results,
	}

	if err := writeResult(cmd, a.cmdCtx, report); err != nil {
		return err
	}
	if report.Status == health.StatusUnhealthy.String() {
		return fmt.Errorf("%d of %d checks failed", countUnhealthy(results), len(results))
	}
	return nil
}

func countUnhealthy(results []*health.Result) int {
	n := 0
	for _, r := range results {
		if r.Status == health.StatusUnhealthy {
			n++
		}
	}
	return n
}

func (r DoctorReport) RenderText(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "CHECK\tSTATUS\tLATENCY\tMESSAGE") //nolint:errcheck
	for _, c := range r.Checks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", //nolint:errcheck
			c.Name, statusIcon(c.Status)+" "+c.Status.String(), c.Latency.Round(time.Millisecond), c.Message)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "\nOverall: %s\n", r.Status)
	return err
}

func statusIcon(s health.Status) string {
	switch s {
	case health.StatusHealthy:
		return "✓"
	case health.StatusDegraded:
		return "!"
	default:
		return "✗"
	}
}
