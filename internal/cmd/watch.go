package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/qrlink/internal/domain"
	qerrors "github.com/felixgeelhaar/qrlink/internal/errors"
	"github.com/felixgeelhaar/qrlink/internal/log"
	"github.com/felixgeelhaar/qrlink/internal/metrics"
	"github.com/felixgeelhaar/qrlink/internal/session"
	"github.com/felixgeelhaar/qrlink/internal/tui"
	"github.com/felixgeelhaar/qrlink/internal/ux"
)

func newWatchCmd() *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the live session",
		Long: `Restore the stored session, open the realtime channel and apply profile
updates as they arrive, showing the session state until interrupted.

Use --plain (or --format json/yaml) for one line per change, e.g. when piping
to a log file. --metrics-addr exposes Prometheus metrics while watching.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
	watchCmd.Flags().Bool("plain", false, "print one line per session change instead of the live view")
	watchCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (overrides metrics.addr)")
	return watchCmd
}

func runWatch(cmd *cobra.Command, args []string) (err error) {
	a, err := newApp(cmd, withProcessMetrics())
	if err != nil {
		return err
	}
	defer a.Close()
	defer func() { a.record(err) }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	addr := a.cfg.Metrics.Addr
	if flagAddr, _ := cmd.Flags().GetString("metrics-addr"); flagAddr != "" {
		addr = flagAddr
	}
	if addr != "" {
		bound, _, err := metrics.Serve(ctx, addr, a.registry)
		if err != nil {
			return fmt.Errorf("failed to serve metrics on %s: %w", addr, err)
		}
		a.notify.Info(fmt.Sprintf("Serving metrics on http://%s/metrics", bound))
	}

	snapshots, unsubscribe := a.session.Subscribe()
	defer unsubscribe()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = a.session.Run(ctx)
	}()
	defer func() {
		cancel()
		<-runDone
	}()

	if snap := a.loadSession(ctx); !snap.IsAuthenticated() {
		return qerrors.NotAuthenticatedFor("You must be logged in to watch the session")
	}

	stream := a.auditRotations(ctx, snapshots)

	plain, _ := cmd.Flags().GetBool("plain")
	if plain || a.cmdCtx.Structured() || !tui.IsInteractive() {
		return a.watchPlain(ctx, cmd, stream)
	}

	program := tea.NewProgram(
		tui.NewWatchModel(stream, a.channel.Lifecycle()),
		tea.WithContext(ctx),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	if _, err := program.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("watch view failed: %w", err)
	}
	return nil
}

func (a *app) watchPlain(ctx context.Context, cmd *cobra.Command, stream <-chan session.Snapshot) error {
	f, err := ux.NewFormatter(a.cmdCtx.Format, &ux.FormatterOptions{Writer: cmd.OutOrStdout(), Compact: true})
	if err != nil {
		return qerrors.ValidationFailed(err.Error())
	}
	events := a.channel.Lifecycle()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-stream:
			if !ok {
				return nil
			}
			if a.cmdCtx.Structured() {
				err = f.Format(newSnapshotView(s))
			} else {
				err = f.Format(tui.SnapshotLine(s))
			}
			if err != nil {
				return err
			}
		case ev := <-events:
			a.logger.Info(tui.EventLine(ev), "event", string(ev.Kind), "epoch", ev.Epoch)
		}
	}
}

// auditRotations forwards snapshots and records token rotations pushed by
// the server. The returned channel closes when in does or ctx ends.
func (a *app) auditRotations(ctx context.Context, in <-chan session.Snapshot) <-chan session.Snapshot {
	out := make(chan session.Snapshot, 1)
	go func() {
		defer close(out)
		var prev session.Snapshot
		for s := range in {
			if rotated(prev, s) {
				_ = a.auditor().LogTokenRotated(s.User.Username, prev.Token, s.Token, s.Generation != prev.Generation)
			}
			prev = s
			select {
			case out <- s:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// rotated reports a token change pushed within one login: a user update for
// the same user that carried a new token. Logins and restores are never
// rotations, even for the same user.
func rotated(prev, next session.Snapshot) bool {
	if !prev.IsAuthenticated() || !next.IsAuthenticated() {
		return false
	}
	if next.Cause != session.EventRealtime && next.Cause != session.EventUpdateUser {
		return false
	}
	return prev.Token != next.Token && prev.User.ID == next.User.ID
}

// snapshotView is the structured form of a snapshot, without the raw token.
type snapshotView struct {
	State        string       `json:"state" yaml:"state"`
	Generation   uint64       `json:"generation" yaml:"generation"`
	User         *domain.User `json:"user,omitempty" yaml:"user,omitempty"`
	Token        string       `json:"token,omitempty" yaml:"token,omitempty"`
	ChannelOpen  bool         `json:"channel_open" yaml:"channel_open"`
	ChannelStale bool         `json:"channel_stale" yaml:"channel_stale"`
	Cause        string       `json:"cause,omitempty" yaml:"cause,omitempty"`
	At           time.Time    `json:"at" yaml:"at"`
}

func newSnapshotView(s session.Snapshot) snapshotView {
	v := snapshotView{
		State:        s.State.String(),
		Generation:   s.Generation,
		ChannelOpen:  s.ChannelOpen,
		ChannelStale: s.ChannelStale,
		Cause:        s.Cause,
		At:           s.At,
	}
	if s.IsAuthenticated() {
		user := s.User
		v.User = &user
		v.Token = "tok_" + log.Fingerprint(s.Token)
	}
	return v
}
