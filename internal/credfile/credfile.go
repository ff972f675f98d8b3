// Package credfile rewrites the AWS shared credentials file (~/.aws/credentials)
// as sessions start and stop. Only the profile section a session owns is
// touched; everything else in the file is preserved verbatim.
package credfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cirrus-hq/cirrus/internal/core"
)

// Writer applies and removes credential profile sections in a shared
// credentials file.
type Writer struct {
	path string
	mu   sync.Mutex
}

// NewWriter creates a writer over the credentials file at path.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// DefaultPath returns the conventional shared credentials file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".aws", "credentials"), nil
}

// Path returns the file this writer manages.
func (w *Writer) Path() string {
	return w.path
}

// Apply writes the credentials under [profileName], replacing any existing
// section with the same name.
func (w *Writer) Apply(profileName string, creds *core.Credentials) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	sections, order, err := w.load()
	if err != nil {
		return err
	}

	lines := []string{
		"aws_access_key_id = " + creds.AccessKeyID,
		"aws_secret_access_key = " + creds.SecretAccessKey,
	}
	if creds.SessionToken != "" {
		lines = append(lines, "aws_session_token = "+creds.SessionToken)
	}

	if _, exists := sections[profileName]; !exists {
		order = append(order, profileName)
	}
	sections[profileName] = lines

	return w.save(sections, order)
}

// DeApply removes the [profileName] section if present. Removing an absent
// section is not an error; stop must be idempotent.
func (w *Writer) DeApply(profileName string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	sections, order, err := w.load()
	if err != nil {
		return err
	}
	if _, exists := sections[profileName]; !exists {
		return nil
	}

	delete(sections, profileName)
	kept := order[:0]
	for _, name := range order {
		if name != profileName {
			kept = append(kept, name)
		}
	}

	return w.save(sections, kept)
}

// load parses the file into named sections, keeping line content and section
// order intact. A missing file parses as empty.
func (w *Writer) load() (map[string][]string, []string, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]string{}, nil, nil
		}
		return nil, nil, fmt.Errorf("reading credentials file: %w", err)
	}

	sections := map[string][]string{}
	var order []string
	current := ""

	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			current = trimmed[1 : len(trimmed)-1]
			if _, seen := sections[current]; !seen {
				sections[current] = nil
				order = append(order, current)
			}
			continue
		}
		if current == "" || trimmed == "" {
			continue
		}
		sections[current] = append(sections[current], line)
	}

	return sections, order, nil
}

func (w *Writer) save(sections map[string][]string, order []string) error {
	var b strings.Builder
	for i, name := range order {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("[" + name + "]\n")
		for _, line := range sections[name] {
			b.WriteString(line + "\n")
		}
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	if err := os.WriteFile(w.path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("writing credentials file: %w", err)
	}
	return nil
}
