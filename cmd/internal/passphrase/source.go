package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source lazily resolves a keystore passphrase from an environment variable or
// by prompting the operator. The value is cached after the first successful
// retrieval.
type Source struct {
	envVar  string
	label   string
	confirm bool

	once  sync.Once
	value string
	err   error
}

// Option customises a Source.
type Option func(*Source)

// WithLabel names the secret in prompts and errors, for example "application
// keystore".
func WithLabel(label string) Option {
	return func(s *Source) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			s.label = trimmed
		}
	}
}

// WithConfirmation asks for the passphrase twice when prompting. Used when a
// new keystore is written.
func WithConfirmation() Option {
	return func(s *Source) { s.confirm = true }
}

// NewSource constructs a passphrase source that checks envVar before
// interactively prompting on the terminal.
func NewSource(envVar string, opts ...Option) *Source {
	s := &Source{envVar: strings.TrimSpace(envVar), label: "keystore"}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Get returns the cached passphrase or resolves it if this is the first call.
// When the environment variable is set the exact value is used; otherwise the
// operator is prompted on stderr. Whitespace-only passphrases are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if value, ok := os.LookupEnv(s.envVar); ok {
				if strings.TrimSpace(value) == "" {
					s.err = fmt.Errorf("%s is set but empty", s.envVar)
					return
				}
				s.value = value
				return
			}
		}

		if !term.IsTerminal(int(os.Stdin.Fd())) {
			if s.envVar != "" {
				s.err = fmt.Errorf("%s passphrase required; set %s or run interactively", s.label, s.envVar)
			} else {
				s.err = fmt.Errorf("%s passphrase required and no terminal available", s.label)
			}
			return
		}

		passphrase, err := s.prompt("Enter " + s.label + " passphrase: ")
		if err != nil {
			s.err = err
			return
		}
		if strings.TrimSpace(passphrase) == "" {
			s.err = fmt.Errorf("%s passphrase cannot be empty", s.label)
			return
		}
		if s.confirm {
			again, err := s.prompt("Repeat " + s.label + " passphrase: ")
			if err != nil {
				s.err = err
				return
			}
			if again != passphrase {
				s.err = errors.New("passphrases do not match")
				return
			}
		}
		s.value = passphrase
	})

	return s.value, s.err
}

func (s *Source) prompt(message string) (string, error) {
	fmt.Fprint(os.Stderr, message)
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(bytes), nil
}
