// Command pm is the terminal front end for a vaultkeeper vault.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/awnumar/memguard"
	"github.com/cockroachdb/errors"
	"golang.org/x/term"

	"github.com/Hussein-Mazeh/vaultkeeper/auth"
	"github.com/Hussein-Mazeh/vaultkeeper/internal/clipguard"
	"github.com/Hussein-Mazeh/vaultkeeper/internal/passgen"
	"github.com/Hussein-Mazeh/vaultkeeper/internal/service"
	"github.com/Hussein-Mazeh/vaultkeeper/internal/vault"
	"github.com/Hussein-Mazeh/vaultkeeper/krypto"
)

const cliVersion = "0.2.0"

type userError struct {
	msg string
}

func (e userError) Error() string { return e.msg }

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	defer memguard.Purge()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(os.Stdin, os.Stdout, os.Stderr)
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	return exitCode(a.stderr, root.ExecuteContext(ctx))
}

// exitCode prints err and maps it to the process status: 1 for problems the
// user can fix, 2 for anything unexpected.
func exitCode(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	if isUserError(err) {
		fmt.Fprintln(w, userMessage(err))
		for _, h := range errors.GetAllHints(err) {
			fmt.Fprintf(w, "hint: %s\n", h)
		}
		return 1
	}
	fmt.Fprintf(w, "unexpected error: %v\n", err)
	return 2
}

var userSentinels = []error{
	service.ErrAuthFailure,
	service.ErrNotFound,
	service.ErrCorrupted,
	service.ErrVersionUnsupported,
	service.ErrLocked,
	service.ErrAlreadyUnlocked,
	service.ErrVaultExists,
	service.ErrCooldown,
	service.ErrNoClipboard,
	service.ErrRecordNotFound,
	service.ErrCategoryNotFound,
	auth.ErrWeakPassphrase,
	krypto.ErrEmptyPassphrase,
	vault.ErrInvalidRecord,
	vault.ErrInvalidCategory,
	vault.ErrDuplicateCategory,
	vault.ErrFixedCategory,
	passgen.ErrInvalidOptions,
	clipguard.ErrUnsupported,
	clipguard.ErrEmptySecret,
}

func isUserError(err error) bool {
	var uerr userError
	if errors.As(err, &uerr) {
		return true
	}
	return errors.IsAny(err, userSentinels...)
}

// userMessage keeps wrong-passphrase and tampering indistinguishable.
func userMessage(err error) string {
	if errors.Is(err, service.ErrAuthFailure) {
		return "unlock failed: wrong passphrase or the vault file has been modified"
	}
	return err.Error()
}

// handleSessionError reports err inside the interactive shell without exiting.
func handleSessionError(w io.Writer, err error) {
	if err == nil {
		return
	}
	if isUserError(err) {
		fmt.Fprintln(w, userMessage(err))
		for _, h := range errors.GetAllHints(err) {
			fmt.Fprintf(w, "hint: %s\n", h)
		}
		return
	}
	fmt.Fprintf(w, "error: %v\n", err)
}

func promptPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

func zeroBytes(b []byte) {
	memguard.WipeBytes(b)
}
