package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// DefaultEnvVar is consulted before prompting for the operator passphrase.
const DefaultEnvVar = "VESTAKE_KEYSTORE_PASSPHRASE"

// ErrNoTerminal is returned when no environment value is present and stdin is
// not interactive.
var ErrNoTerminal = errors.New("keystore passphrase required and no terminal available")

// Source lazily resolves a keystore passphrase from an environment variable or
// by prompting the operator. The value is cached after the first call.
type Source struct {
	envVar string
	prompt func(label string) (string, error)

	once  sync.Once
	value string
	err   error
}

// NewSource constructs a passphrase source that checks envVar before
// prompting on the terminal.
func NewSource(envVar string) *Source {
	return &Source{envVar: strings.TrimSpace(envVar), prompt: readTerminal}
}

// Get returns the cached passphrase or resolves it on first use. Whitespace
// only values are rejected.
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
		value, err := s.prompt("Enter operator keystore passphrase: ")
		if err != nil {
			if errors.Is(err, ErrNoTerminal) && s.envVar != "" {
				err = fmt.Errorf("%w; set %s", err, s.envVar)
			}
			s.err = err
			return
		}
		if strings.TrimSpace(value) == "" {
			s.err = errors.New("keystore passphrase cannot be empty")
			return
		}
		s.value = value
	})
	return s.value, s.err
}

// NewPassphrase asks for a fresh passphrase twice and checks both entries
// match. The environment variable still wins when set.
func (s *Source) NewPassphrase() (string, error) {
	if s.envVar != "" {
		if value, ok := os.LookupEnv(s.envVar); ok && strings.TrimSpace(value) != "" {
			return value, nil
		}
	}
	first, err := s.prompt("New keystore passphrase: ")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(first) == "" {
		return "", errors.New("keystore passphrase cannot be empty")
	}
	second, err := s.prompt("Repeat passphrase: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passphrases do not match")
	}
	return first, nil
}

func readTerminal(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", ErrNoTerminal
	}
	return readFrom(os.Stderr, label, func() ([]byte, error) { return term.ReadPassword(fd) })
}

func readFrom(out io.Writer, label string, read func() ([]byte, error)) (string, error) {
	fmt.Fprint(out, label)
	bytes, err := read()
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return string(bytes), nil
}
