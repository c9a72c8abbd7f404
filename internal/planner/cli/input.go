package cli

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

func (a *App) promptLine(prompt string) (string, error) {
	fmt.Fprint(a.out, prompt)
	line, err := a.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptSecret reads without echo when stdin is a terminal, falling back to
// a plain line read so scripted input still works.
func (a *App) promptSecret(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := a.promptLine(prompt)
		if err != nil {
			return nil, err
		}
		return []byte(line), nil
	}

	fmt.Fprint(a.out, prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(a.out)
	if err != nil {
		return nil, err
	}
	return secret, nil
}

func (a *App) confirm() bool {
	line, err := a.reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
