package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// prompt prints label and reads one line. A final line without a newline is
// accepted.
func (app *Application) prompt(label string) (string, error) {
	if _, err := fmt.Fprintf(app.out, "%s: ", label); err != nil {
		return "", err
	}
	line, err := app.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads a password without echo.
func (app *Application) promptPassword(label string) (string, error) {
	if _, err := fmt.Fprintf(app.out, "%s: ", label); err != nil {
		return "", err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(app.out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}
