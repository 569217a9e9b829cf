package cryptox

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// test seams
var (
	isTerminal   = term.IsTerminal
	readPassword = term.ReadPassword
	lookupEnv    = os.LookupEnv
)

// PassphraseSource resolves the custody passphrase from an environment
// variable or, failing that, an interactive prompt. The result is cached.
type PassphraseSource struct {
	envVar string
	prompt io.Writer

	once  sync.Once
	value []byte
	err   error
}

// NewPassphraseSource checks envVar before prompting on prompt.
func NewPassphraseSource(envVar string, prompt io.Writer) *PassphraseSource {
	return &PassphraseSource{envVar: strings.TrimSpace(envVar), prompt: prompt}
}

// Get returns the passphrase, resolving it on first use.
func (s *PassphraseSource) Get() ([]byte, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if v, ok := lookupEnv(s.envVar); ok {
				if strings.TrimSpace(v) == "" {
					s.err = fmt.Errorf("%w: %s is set but empty", ErrEmptyPassphrase, s.envVar)
					return
				}
				s.value = []byte(v)
				return
			}
		}

		fd := int(os.Stdin.Fd())
		if !isTerminal(fd) {
			if s.envVar != "" {
				s.err = fmt.Errorf("custody passphrase required; set %s or run interactively", s.envVar)
			} else {
				s.err = errors.New("custody passphrase required and no terminal available")
			}
			return
		}

		fmt.Fprint(s.prompt, "Enter custody passphrase: ")
		b, err := readPassword(fd)
		fmt.Fprintln(s.prompt)
		if err != nil {
			s.err = fmt.Errorf("failed to read passphrase: %w", err)
			return
		}
		if strings.TrimSpace(string(b)) == "" {
			s.err = ErrEmptyPassphrase
			return
		}
		s.value = b
	})
	return s.value, s.err
}
