// Package interactive pauses a demo run between steps until the presenter
// presses a key, giving time to look at the dashboards.
package interactive

import (
	"errors"
	"fmt"
	"io"

	"github.com/eiannone/keyboard"
)

// ErrAborted is returned when the presenter presses Esc, q or Ctrl+C
var ErrAborted = errors.New("aborted by user")

// KeyReader reads a single keypress
type KeyReader func() (rune, keyboard.Key, error)

// KeyPauser implements driver.Pauser on top of the terminal keyboard
type KeyPauser struct {
	out  io.Writer
	read KeyReader
}

func New(out io.Writer) *KeyPauser {
	return &KeyPauser{out: out, read: keyboard.GetSingleKey}
}

// NewWithReader is New with a custom key source
func NewWithReader(out io.Writer, read KeyReader) *KeyPauser {
	return &KeyPauser{out: out, read: read}
}

func (p *KeyPauser) Pause(next string) error {
	fmt.Fprintf(p.out, "\nPress any key to %s (q to quit)...", next)
	ch, key, err := p.read()
	fmt.Fprintln(p.out)
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}
	switch {
	case key == keyboard.KeyEsc, key == keyboard.KeyCtrlC, ch == 'q', ch == 'Q':
		return ErrAborted
	}
	return nil
}
