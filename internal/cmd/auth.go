package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/qrlink/internal/domain"
	qerrors "github.com/felixgeelhaar/qrlink/internal/errors"
	"github.com/felixgeelhaar/qrlink/internal/log"
	"github.com/felixgeelhaar/qrlink/internal/platform"
	"github.com/felixgeelhaar/qrlink/internal/session"
	"github.com/felixgeelhaar/qrlink/internal/telemetry"
	"github.com/felixgeelhaar/qrlink/internal/tui"
)

func newAuthCmd() *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the account session",
		Long: `Log in, create an account, log out and inspect the stored session.

The access token and user profile are stored together in the configured
credential store (store.backend).`,
	}

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		Long: `Log in with a username and password. Missing values are prompted for when
the terminal is interactive.

Examples:
  qrlink auth login
  qrlink auth login --username alice --password "$PASSWORD"`,
		Args: cobra.NoArgs,
		RunE: runAuthLogin,
	}
	loginCmd.Flags().String("username", "", "account username")
	loginCmd.Flags().String("password", "", "account password")

	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new account",
		Long: `Create a new account. Registration does not log in; run 'qrlink auth login'
afterwards.`,
		Args: cobra.NoArgs,
		RunE: runAuthRegister,
	}
	registerCmd.Flags().String("username", "", "account username")
	registerCmd.Flags().String("email", "", "account email")
	registerCmd.Flags().String("password", "", "account password")
	registerCmd.Flags().String("confirm-password", "", "repeat the password")

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Log out and clear the stored session",
		Args:  cobra.NoArgs,
		RunE:  runAuthLogout,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current user and token status",
		Args:  cobra.NoArgs,
		RunE:  runAuthStatus,
	}

	authCmd.AddCommand(loginCmd, registerCmd, logoutCmd, statusCmd)
	return authCmd
}

func runAuthLogin(cmd *cobra.Command, args []string) (err error) {
	ctx, span := telemetry.StartCommandSpan(cmd.Context(), "auth.login")
	defer func() { telemetry.End(span, err) }()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	defer func() { a.record(err) }()

	in := tui.LoginInput{}
	in.Username, _ = cmd.Flags().GetString("username")
	in.Password, _ = cmd.Flags().GetString("password")
	if (in.Username == "" || in.Password == "") && tui.ShouldPrompt() {
		if err := tui.PromptLogin(ctx, &in); err != nil {
			return err
		}
	}
	if err := validateLogin(in); err != nil {
		return err
	}

	a.loadSession(ctx)

	resp, err := a.client.Login(ctx, strings.TrimSpace(in.Username), in.Password)
	if err != nil {
		_ = a.auditor().LogLogin(in.Username, "", err)
		return err
	}

	if err := a.session.Login(ctx, resp.AccessToken, resp.User); err != nil {
		_ = a.auditor().LogLogin(resp.User.Username, resp.AccessToken, err)
		return err
	}
	_ = a.auditor().LogLogin(resp.User.Username, resp.AccessToken, nil)

	if a.cmdCtx.Structured() {
		return writeResult(cmd, a.cmdCtx, newStatusView(a.session.Snapshot()))
	}
	a.notify.Success(msgLoginSuccess)
	a.notify.Info("Logged in as " + resp.User.String())
	return nil
}

func validateLogin(in tui.LoginInput) error {
	if strings.TrimSpace(in.Username) == "" || in.Password == "" {
		return qerrors.ValidationFailed(msgFillAllFields)
	}
	return nil
}

func runAuthRegister(cmd *cobra.Command, args []string) (err error) {
	ctx, span := telemetry.StartCommandSpan(cmd.Context(), "auth.register")
	defer func() { telemetry.End(span, err) }()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	defer func() { a.record(err) }()

	in := tui.RegisterInput{}
	in.Username, _ = cmd.Flags().GetString("username")
	in.Email, _ = cmd.Flags().GetString("email")
	in.Password, _ = cmd.Flags().GetString("password")
	in.ConfirmPassword, _ = cmd.Flags().GetString("confirm-password")
	missing := in.Username == "" || in.Email == "" || in.Password == "" || in.ConfirmPassword == ""
	if missing && tui.ShouldPrompt() {
		if err := tui.PromptRegister(ctx, &in); err != nil {
			return err
		}
	}
	if err := validateRegister(in); err != nil {
		return err
	}

	resp, err := a.client.Register(ctx, platform.RegisterRequest{
		Username: strings.TrimSpace(in.Username),
		Email:    strings.TrimSpace(in.Email),
		Password: in.Password,
	})
	_ = a.auditor().LogRegister(strings.TrimSpace(in.Username), err)
	if err != nil {
		return err
	}

	if a.cmdCtx.Structured() {
		return writeResult(cmd, a.cmdCtx, registerView{Message: msgRegisterSuccess, ServerMessage: resp.Message, User: resp.User})
	}
	a.notify.Success(msgRegisterSuccess)
	if resp.Message != "" && a.cmdCtx.Verbose {
		a.notify.Info(resp.Message)
	}
	a.notify.Info("Log in with: qrlink auth login")
	return nil
}

func validateRegister(in tui.RegisterInput) error {
	for _, v := range []string{in.Username, in.Email, in.Password, in.ConfirmPassword} {
		if strings.TrimSpace(v) == "" {
			return qerrors.ValidationFailed(msgFillAllFields)
		}
	}
	if in.Password != in.ConfirmPassword {
		return qerrors.ValidationFailed(msgPasswordMismatch)
	}
	return nil
}

type registerView struct {
	Message       string       `json:"message" yaml:"message"`
	ServerMessage string       `json:"server_message,omitempty" yaml:"server_message,omitempty"`
	User          *domain.User `json:"user,omitempty" yaml:"user,omitempty"`
}

func runAuthLogout(cmd *cobra.Command, args []string) (err error) {
	ctx, span := telemetry.StartCommandSpan(cmd.Context(), "auth.logout")
	defer func() { telemetry.End(span, err) }()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	defer func() { a.record(err) }()

	snap := a.loadSession(ctx)
	err = a.session.Logout(ctx)
	if snap.IsAuthenticated() || err != nil {
		_ = a.auditor().LogLogout(snap.User.Username, err)
	}
	if err != nil {
		return err
	}

	if !snap.IsAuthenticated() {
		a.notify.Info("Not logged in")
		return nil
	}
	a.notify.Success(msgLogoutSuccess)
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) (err error) {
	ctx, span := telemetry.StartCommandSpan(cmd.Context(), "auth.status")
	defer func() { telemetry.End(span, err) }()

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	defer func() { a.record(err) }()

	return writeResult(cmd, a.cmdCtx, newStatusView(a.loadSession(ctx)))
}

// statusView is the session as shown by `auth status`. The raw token is
// never included.
type statusView struct {
	Authenticated bool         `json:"authenticated" yaml:"authenticated"`
	User          *domain.User `json:"user,omitempty" yaml:"user,omitempty"`
	Token         string       `json:"token,omitempty" yaml:"token,omitempty"`
	Subject       string       `json:"subject,omitempty" yaml:"subject,omitempty"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	Expired       bool         `json:"expired,omitempty" yaml:"expired,omitempty"`
}

func newStatusView(s session.Snapshot) statusView {
	if !s.IsAuthenticated() {
		return statusView{}
	}
	user := s.User
	v := statusView{
		Authenticated: true,
		User:          &user,
		Token:         "tok_" + log.Fingerprint(s.Token),
	}
	if sub, ok := session.TokenSubject(s.Token); ok {
		v.Subject = sub
	}
	if exp, ok := session.TokenExpiry(s.Token); ok {
		v.ExpiresAt = &exp
		v.Expired = time.Now().After(exp)
	}
	return v
}

func (v statusView) RenderText(w io.Writer) error {
	if !v.Authenticated {
		_, err := fmt.Fprintln(w, "Not logged in")
		return err
	}
	lines := []string{
		"User:    " + v.User.String(),
		"Token:   " + v.Token,
	}
	if v.Subject != "" {
		lines = append(lines, "Subject: "+v.Subject)
	}
	if v.ExpiresAt != nil {
		state := "valid"
		if v.Expired {
			state = "expired"
		}
		lines = append(lines, fmt.Sprintf("Expires: %s (%s)", v.ExpiresAt.Local().Format(time.RFC1123), state))
	}
	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

// writeResult encodes v in the --format encoding.
func writeResult(cmd *cobra.Command, cmdCtx *CommandContext, v any) error {
	f, err := cmdCtx.Formatter(cmd)
	if err != nil {
		return qerrors.ValidationFailed(err.Error())
	}
	return f.Format(v)
}
