package cli

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/cirrus-hq/cirrus/internal/engine"
)

// loadEngine opens the CIRRUS runtime. The vault passphrase comes from
// CIRRUS_PASSPHRASE when set (credential_process runs non-interactively),
// otherwise from a prompt on stderr.
func loadEngine() (*engine.Engine, error) {
	passphrase := os.Getenv("CIRRUS_PASSPHRASE")
	if passphrase == "" {
		fmt.Fprint(os.Stderr, "Vault passphrase: ")
		passBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return nil, fmt.Errorf("reading passphrase: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		passphrase = string(passBytes)
	}

	e, err := engine.Open(passphrase, engine.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening cirrus: %w", err)
	}
	return e, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
