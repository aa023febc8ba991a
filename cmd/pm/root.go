package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/Hussein-Mazeh/vaultkeeper/internal/audit"
	"github.com/Hussein-Mazeh/vaultkeeper/internal/clipguard"
	"github.com/Hussein-Mazeh/vaultkeeper/internal/config"
	"github.com/Hussein-Mazeh/vaultkeeper/internal/logging"
	"github.com/Hussein-Mazeh/vaultkeeper/internal/service"
)

// app holds what the commands share. The session and its collaborators are
// built on first use so that commands like generate never touch the vault.
type app struct {
	cfgFile   string
	vaultPath string
	logLevel  string

	stdin          io.Reader
	stdout, stderr io.Writer
	readPassword   func(prompt string) ([]byte, error)
	clipboard      clipguard.Backend // nil selects the OS clipboard when available
	lines          *bufio.Scanner

	loaded  bool
	inShell bool
	cfg     config.Config
	log     *zap.Logger
	audit   *audit.Log
	clip    *clipguard.Guard
	cleared chan bool
	sess    *service.Session
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		stdin:        stdin,
		stdout:       stdout,
		stderr:       stderr,
		readPassword: promptPassword,
		log:          zap.NewNop(),
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "pm",
		Short:         "Local encrypted password vault",
		Long:          "pm keeps credentials in a single passphrase-encrypted file and locks itself after a period of inactivity.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return userError{msg: err.Error()}
	})

	addGlobalFlags(root.PersistentFlags(), a)

	root.AddCommand(
		newInitCmd(a),
		newListCmd(a),
		newGetCmd(a),
		newCopyCmd(a),
		newAddCmd(a),
		newEditCmd(a),
		newRemoveCmd(a),
		newMoveCmd(a),
		newPasswdCmd(a),
		newCategoryCmd(a),
		newGenerateCmd(a),
		newShellCmd(a),
		newAuditCmd(a),
		newVersionCmd(a),
	)
	return root
}

func addGlobalFlags(fs *pflag.FlagSet, a *app) {
	fs.StringVar(&a.cfgFile, "config", "", "config file (default: config.yaml in the user config directory)")
	fs.StringVar(&a.vaultPath, "vault", "", "vault file to use instead of vault.path")
	fs.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")
}

// load reads configuration and sets up logging once per process.
func (a *app) load() error {
	if a.loaded {
		return nil
	}
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return userError{msg: err.Error()}
	}
	if a.vaultPath != "" {
		cfg.Vault.Path = a.vaultPath
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	log, err := logging.NewWriter(cfg.Log.Level, a.stderr)
	if err != nil {
		return userError{msg: err.Error()}
	}
	a.cfg = cfg
	a.log = log
	a.loaded = true
	return nil
}

// session returns the vault session, creating it and its audit log and
// clipboard guard on first call.
func (a *app) session() *service.Session {
	if a.sess != nil {
		return a.sess
	}

	opts := []service.Option{
		service.WithLogger(a.log.Named("session")),
		service.WithAutoLock(a.cfg.Session.AutoLock),
		service.WithKDF(a.cfg.KDFParams()),
		service.WithPolicy(a.cfg.PassphrasePolicy()),
		service.WithOnLock(a.onLock),
	}

	if a.cfg.Audit.Enabled {
		l, err := audit.Open(a.cfg.AuditPath())
		if err != nil {
			a.log.Warn("audit log unavailable", zap.String("path", a.cfg.AuditPath()), zap.Error(err))
		} else {
			a.audit = l
			opts = append(opts, service.WithAudit(l))
		}
	}

	backend := a.clipboard
	if backend == nil && clipguard.SystemAvailable() {
		backend = clipguard.System{}
	}
	if backend != nil {
		a.cleared = make(chan bool, 1)
		a.clip = clipguard.New(backend,
			clipguard.WithTimeout(a.cfg.Clipboard.Timeout),
			clipguard.WithLogger(a.log.Named("clipboard")),
			clipguard.WithOnClear(func(cleared bool) {
				select {
				case a.cleared <- cleared:
				default:
				}
			}),
		)
		opts = append(opts, service.WithClipboard(a.clip))
	}

	a.sess = service.New(opts...)
	return a.sess
}

func (a *app) onLock(reason service.LockReason) {
	if a.inShell && reason == service.ReasonInactivity {
		fmt.Fprintln(a.stderr, "\nvault locked after inactivity")
	}
}

// unlocked returns a session with the configured vault open, prompting for
// the passphrase when needed.
func (a *app) unlocked() (*service.Session, error) {
	s := a.session()
	if s.IsUnlocked() {
		return s, nil
	}
	pw, err := a.readPassword("Master passphrase: ")
	if err != nil {
		return nil, errors.Wrap(err, "read master passphrase")
	}
	defer zeroBytes(pw)
	if err := s.Unlock(a.cfg.Vault.Path, string(pw)); err != nil {
		return nil, err
	}
	return s, nil
}

// newPassphrase asks for a passphrase twice.
func (a *app) newPassphrase(prompt string) ([]byte, error) {
	pw, err := a.readPassword(prompt)
	if err != nil {
		return nil, errors.Wrap(err, "read passphrase")
	}
	confirm, err := a.readPassword("Confirm: ")
	if err != nil {
		zeroBytes(pw)
		return nil, errors.Wrap(err, "read confirmation")
	}
	defer zeroBytes(confirm)
	if !bytes.Equal(pw, confirm) {
		zeroBytes(pw)
		return nil, userError{msg: "passphrases do not match"}
	}
	return pw, nil
}

// close locks the vault and releases the clipboard and the audit log.
func (a *app) close() {
	if a.sess != nil {
		a.sess.Lock()
	}
	if a.clip != nil {
		if err := a.clip.Close(); err != nil {
			a.log.Warn("clear clipboard on exit", zap.Error(err))
		}
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.log.Warn("close audit log", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}

// exactArgs is cobra.ExactArgs reported as a user error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return userError{msg: fmt.Sprintf("%s: %v", cmd.CommandPath(), err)}
		}
		return nil
	}
}
