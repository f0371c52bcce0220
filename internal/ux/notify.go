package ux

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	qerrors "github.com/felixgeelhaar/qrlink/internal/errors"
)

// NotifierOptions configures a Notifier.
type NotifierOptions struct {
	// Quiet suppresses everything except errors.
	Quiet   bool
	NoColor bool
	// Verbose adds error codes and causes to Error output.
	Verbose bool
}

// Notifier prints one-line status messages. Success and Info go to out,
// warnings and errors to errOut.
type Notifier struct {
	out, errOut io.Writer
	opts        NotifierOptions

	success lipgloss.Style
	info    lipgloss.Style
	warn    lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style
}

// NewNotifier creates a Notifier. Colors are dropped automatically when the
// writers are not terminals.
func NewNotifier(out, errOut io.Writer, opts NotifierOptions) *Notifier {
	n := &Notifier{out: out, errOut: errOut, opts: opts}

	r := lipgloss.NewRenderer(errOut)
	n.success = r.NewStyle()
	n.info = r.NewStyle()
	n.warn = r.NewStyle()
	n.failure = r.NewStyle()
	n.muted = r.NewStyle()
	if !opts.NoColor {
		n.success = n.success.Bold(true).Foreground(lipgloss.Color("42"))
		n.info = n.info.Foreground(lipgloss.Color("86"))
		n.warn = n.warn.Bold(true).Foreground(lipgloss.Color("214"))
		n.failure = n.failure.Bold(true).Foreground(lipgloss.Color("196"))
		n.muted = n.muted.Foreground(lipgloss.Color("241"))
	}
	return n
}

// Success prints a confirmation such as "Login successful!".
func (n *Notifier) Success(msg string) {
	if n.opts.Quiet {
		return
	}
	fmt.Fprintln(n.out, n.success.Render("✓ "+msg))
}

func (n *Notifier) Info(msg string) {
	if n.opts.Quiet {
		return
	}
	fmt.Fprintln(n.out, n.info.Render(msg))
}

func (n *Notifier) Warn(msg string) {
	if n.opts.Quiet {
		return
	}
	fmt.Fprintln(n.errOut, n.warn.Render("! "+msg))
}

// Error prints the user-facing message of err and its suggestions. It is
// never suppressed.
func (n *Notifier) Error(err error) {
	if err == nil {
		return
	}
	n.ErrorMessage(qerrors.UserMessage(err), err)
}

// ErrorMessage prints msg in place of the error's own message.
func (n *Notifier) ErrorMessage(msg string, err error) {
	fmt.Fprintln(n.errOut, n.failure.Render("✗ "+msg))

	if n.opts.Verbose && err != nil {
		if code := qerrors.CodeOf(err); code != "" {
			fmt.Fprintln(n.errOut, n.muted.Render("  code: "+string(code)))
		}
		if e, ok := qerrors.As(err); ok && e.Cause != nil {
			fmt.Fprintln(n.errOut, n.muted.Render("  cause: "+e.Cause.Error()))
		}
	}

	for _, s := range Suggestions(err) {
		fmt.Fprintln(n.errOut, n.muted.Render("  → "+s))
	}
}
