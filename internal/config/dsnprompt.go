package config

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"
)

// dsnPasswordPlaceholder is the literal token an operator writes into the
// persistence DSN in place of a password they'd rather not commit to disk
// ("postgres://streamkeep:{PASSWORD}@db/streamkeep").
const dsnPasswordPlaceholder = "{PASSWORD}"

// ResolveDSN substitutes a password typed at a hidden terminal prompt for
// dsnPasswordPlaceholder in dsn. A dsn without the placeholder is returned
// unchanged. Grounded on the teacher's pkg/util/password.go PromptPassword.
func ResolveDSN(dsn string) (string, error) {
	if !strings.Contains(dsn, dsnPasswordPlaceholder) {
		return dsn, nil
	}

	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("config: dsn requires a password and stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, "Persistence DSN password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("config: read password: %w", err)
	}

	return strings.Replace(dsn, dsnPasswordPlaceholder, string(password), 1), nil
}
