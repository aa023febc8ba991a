package clipguard

import (
	"fyne.io/fyne/v2"
	sysclip "github.com/atotto/clipboard"
	"github.com/cockroachdb/errors"
)

// Backend is a text clipboard.
type Backend interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

// ErrUnsupported is returned by System when no clipboard utility is available.
var ErrUnsupported = errors.New("system clipboard not available")

// System talks to the OS clipboard (pbcopy, xclip/xsel/wl-clipboard, or the Windows API).
type System struct{}

// SystemAvailable reports whether the OS clipboard can be used.
func SystemAvailable() bool {
	return !sysclip.Unsupported
}

func (System) ReadAll() (string, error) {
	if sysclip.Unsupported {
		return "", ErrUnsupported
	}
	s, err := sysclip.ReadAll()
	if err != nil {
		return "", errors.Wrap(err, "read clipboard")
	}
	return s, nil
}

func (System) WriteAll(text string) error {
	if sysclip.Unsupported {
		return ErrUnsupported
	}
	if err := sysclip.WriteAll(text); err != nil {
		return errors.Wrap(err, "write clipboard")
	}
	return nil
}

// Fyne adapts the clipboard of a fyne window. Fyne requires UI calls on its
// own goroutine, so access goes through Do, which defaults to fyne.DoAndWait.
type Fyne struct {
	Clipboard fyne.Clipboard
	Do        func(func())
}

// NewFyne wraps cb, typically w.Clipboard() of the main window.
func NewFyne(cb fyne.Clipboard) *Fyne {
	return &Fyne{Clipboard: cb, Do: fyne.DoAndWait}
}

func (f *Fyne) run(fn func()) {
	if f.Do == nil {
		fn()
		return
	}
	f.Do(fn)
}

func (f *Fyne) ReadAll() (string, error) {
	var s string
	f.run(func() { s = f.Clipboard.Content() })
	return s, nil
}

func (f *Fyne) WriteAll(text string) error {
	f.run(func() { f.Clipboard.SetContent(text) })
	return nil
}
