package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/brewhouse/pkg/sessionsdk"
)

var (
	// ErrUsage is returned for an unknown command or malformed arguments.
	ErrUsage = errors.New("usage error")

	// ErrInvalidInput is returned when form fields fail client-side checks.
	// The problems have already been printed.
	ErrInvalidInput = errors.New("invalid input")
)

const usage = `usage: brewhouse [-api URL] [-storage memory|sqlite|redis] [-db FILE] <command>

commands:
  status                                     show who is logged in
  login [-remember] [-email E]               log in
  register [-remember] [-name N] [-email E]  create an account
  logout                                     log out on this device
  whoami                                     show the current user
  fetch [-X METHOD] [-d JSON] PATH           call a protected API
`

// Run executes one command. Every command except login and register first
// restores the previous session from storage.
func (app *Application) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(app.out, usage)
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "help", "-h", "--help":
		fmt.Fprint(app.out, usage)
		return nil
	case "status":
		return app.runStatus(ctx)
	case "login":
		return app.runLogin(ctx, rest)
	case "register":
		return app.runRegister(ctx, rest)
	case "logout":
		return app.runLogout(ctx)
	case "whoami":
		return app.runWhoAmI(ctx)
	case "fetch":
		return app.runFetch(ctx, rest)
	default:
		fmt.Fprintf(app.out, "unknown command %q\n\n%s", cmd, usage)
		return ErrUsage
	}
}

// Describe renders err for the terminal.
func Describe(err error) string {
	if sessionsdk.KindOf(err) != "" {
		return sessionsdk.FriendlyMessage(err)
	}
	return err.Error()
}

// bootstrap settles the session once per Application. A session started by
// login or register needs no bootstrap. A storage failure while settling is
// logged and otherwise ignored: the in-memory session is still correct.
func (app *Application) bootstrap(ctx context.Context) (sessionsdk.State, error) {
	if st := app.session.State(); app.bootstrapped || st.Authenticated() {
		return st, nil
	}
	app.bootstrapped = true

	st, err := app.session.Bootstrap(ctx, app.live)
	if errors.Is(err, sessionsdk.ErrTornDown) {
		return st, err
	}
	if err != nil {
		app.logger.Warn("failed to update stored session", "error", err)
	}
	return st, nil
}

func (app *Application) runStatus(ctx context.Context) error {
	st, err := app.bootstrap(ctx)
	if err != nil {
		return err
	}

	if !st.Authenticated() {
		fmt.Fprintln(app.out, "Not logged in.")
		return nil
	}

	fmt.Fprintf(app.out, "Logged in as %s <%s>\n", st.User.Name, st.User.Email)
	if !st.ExpiresAt.IsZero() {
		fmt.Fprintf(app.out, "Access credential expires at %s\n", st.ExpiresAt.Local().Format(time.RFC3339))
	}
	return nil
}

func (app *Application) runLogin(ctx context.Context, args []string) error {
	fs := app.flagSet("login")
	remember := fs.Bool("remember", false, "stay logged in on this device")
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}

	var err error
	if *email == "" {
		if *email, err = app.prompt("Email"); err != nil {
			return err
		}
	}
	password, err := app.promptPassword("Password")
	if err != nil {
		return err
	}

	req := sessionsdk.LoginRequest{Email: *email, Password: password}
	if problems := req.Validate(); problems != nil {
		app.printProblems(problems)
		return ErrInvalidInput
	}

	resp, err := app.session.Login(ctx, req.Email, req.Password, *remember)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.out, "Welcome back, %s.\n", resp.User.Name)
	return nil
}

func (app *Application) runRegister(ctx context.Context, args []string) error {
	fs := app.flagSet("register")
	remember := fs.Bool("remember", false, "stay logged in on this device")
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}

	var err error
	if *name == "" {
		if *name, err = app.prompt("Name"); err != nil {
			return err
		}
	}
	if *email == "" {
		if *email, err = app.prompt("Email"); err != nil {
			return err
		}
	}
	password, err := app.promptPassword("Password")
	if err != nil {
		return err
	}

	req := sessionsdk.RegisterRequest{Name: *name, Email: *email, Password: password}
	if problems := req.Validate(); problems != nil {
		app.printProblems(problems)
		return ErrInvalidInput
	}
	fmt.Fprintf(app.out, "Password strength: %s\n", sessionsdk.PasswordStrength(password))

	resp, err := app.session.Register(ctx, req.Name, req.Email, req.Password, *remember)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.out, "Welcome, %s.\n", resp.User.Name)
	return nil
}

func (app *Application) runLogout(ctx context.Context) error {
	if _, err := app.bootstrap(ctx); err != nil {
		return err
	}

	// Logout also ends a server session this device never bootstrapped into.
	if err := app.session.Logout(ctx); err != nil {
		return err
	}

	fmt.Fprintln(app.out, "Logged out.")
	return nil
}

func (app *Application) runWhoAmI(ctx context.Context) error {
	if _, err := app.bootstrap(ctx); err != nil {
		return err
	}

	var raw json.RawMessage
	if err := app.session.AuthedJSON(ctx, http.MethodGet, "/api/auth/me", nil, &raw); err != nil {
		return err
	}

	return app.printJSON(raw)
}

func (app *Application) runFetch(ctx context.Context, args []string) error {
	fs := app.flagSet("fetch")
	method := fs.String("X", http.MethodGet, "HTTP method")
	data := fs.String("d", "", "JSON request body")
	if err := fs.Parse(args); err != nil {
		return ErrUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(app.out, "fetch needs exactly one PATH")
		return ErrUsage
	}

	if _, err := app.bootstrap(ctx); err != nil {
		return err
	}

	var body io.Reader
	if *data != "" {
		body = strings.NewReader(*data)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(*method), app.targetURL(fs.Arg(0)), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := app.session.AuthedFetch(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	app.logger.Debug("fetch complete", "status", resp.StatusCode, "bytes", len(b))

	return app.printJSON(b)
}

// targetURL joins relative paths to the API base URL.
func (app *Application) targetURL(target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	return strings.TrimSuffix(app.cfg.APIBaseURL, "/") + "/" + strings.TrimPrefix(target, "/")
}

func (app *Application) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(app.out)
	return fs
}

// printProblems lists field problems in a stable order.
func (app *Application) printProblems(problems map[string]string) {
	fields := make([]string, 0, len(problems))
	for field := range problems {
		fields = append(fields, field)
	}
	slices.Sort(fields)

	for _, field := range fields {
		fmt.Fprintf(app.out, "  %s: %s\n", field, problems[field])
	}
}

// printJSON pretty-prints b, or writes it as-is when it is not JSON.
func (app *Application) printJSON(b []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, b, "", "  "); err != nil {
		buf.Reset()
		buf.Write(b)
	}
	if buf.Len() > 0 && buf.Bytes()[buf.Len()-1] != '\n' {
		buf.WriteByte('\n')
	}

	_, err := app.out.Write(buf.Bytes())
	return err
}
