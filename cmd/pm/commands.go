package main

import (
	"bufio"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/Hussein-Mazeh/vaultkeeper/internal/passgen"
)

// readLine reads one line of input. The shell and confirmations share the
// same scanner so neither loses buffered input.
func (a *app) readLine() (string, bool) {
	if a.lines == nil {
		a.lines = bufio.NewScanner(a.stdin)
	}
	if !a.lines.Scan() {
		return "", false
	}
	return strings.TrimSpace(a.lines.Text()), true
}

func (a *app) confirm(question string) bool {
	fmt.Fprintf(a.stderr, "%s [y/N] ", question)
	answer, ok := a.readLine()
	if !ok {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new empty vault",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.session()
			pw, err := a.newPassphrase("New master passphrase: ")
			if err != nil {
				return err
			}
			defer zeroBytes(pw)
			if err := s.CreateVault(a.cfg.Vault.Path, string(pw)); err != nil {
				return err
			}
			kdf := a.cfg.KDFParams()
			fmt.Fprintf(a.stdout, "created vault %s (%s)\n", a.cfg.Vault.Path, kdf.Name)
			return nil
		},
	}
}

func newPasswdCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the master passphrase",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.session()
			cur, err := a.readPassword("Current master passphrase: ")
			if err != nil {
				return errors.Wrap(err, "read current passphrase")
			}
			defer zeroBytes(cur)
			if !s.IsUnlocked() {
				if err := s.Unlock(a.cfg.Vault.Path, string(cur)); err != nil {
					return err
				}
			}
			next, err := a.newPassphrase("New master passphrase: ")
			if err != nil {
				return err
			}
			defer zeroBytes(next)
			if err := s.ChangePassphrase(string(cur), string(next)); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "master passphrase changed")
			return nil
		},
	}
}

func newGenerateCmd(a *app) *cobra.Command {
	var (
		preset    string
		length    int
		noSymbols bool
		noAmbig   bool
		count     int
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Print random passwords without touching the vault",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, ok := passgen.Presets[preset]
			if !ok {
				return userError{msg: fmt.Sprintf("unknown preset %q (have %s)", preset, strings.Join(passgen.PresetNames(), ", "))}
			}
			if length > 0 {
				o.Length = length
			}
			if noSymbols {
				o.Symbols = false
			}
			if noAmbig {
				o.ExcludeAmbiguous = true
			}
			if count < 1 {
				count = 1
			}
			for i := 0; i < count; i++ {
				res, err := passgen.Generate(o)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "%s\t%.0f bits, %s\n", res.Password, res.Entropy, passgen.StrengthLabel(res.Score))
			}
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&preset, "preset", "p", "strong", "one of "+strings.Join(passgen.PresetNames(), ", "))
	fs.IntVarP(&length, "length", "l", 0, fmt.Sprintf("length between %d and %d", passgen.MinLength, passgen.MaxLength))
	fs.BoolVar(&noSymbols, "no-symbols", false, "leave out symbols")
	fs.BoolVar(&noAmbig, "no-ambiguous", false, "leave out characters such as 0, O, l and 1")
	fs.IntVarP(&count, "count", "n", 1, "how many to print")
	return cmd
}

func newAuditCmd(a *app) *cobra.Command {
	var (
		limit    int
		showPath bool
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent vault lifecycle events",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.session()
			if a.audit == nil {
				return userError{msg: "audit log is disabled or unavailable"}
			}
			if showPath {
				fmt.Fprintln(a.stdout, a.audit.Path())
				return nil
			}
			events, err := a.audit.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tEVENT\tDETAIL\tVAULT")
			for _, e := range events {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.At.Local().Format("2006-01-02 15:04:05"), e.Kind, e.Detail, e.Vault)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of events")
	cmd.Flags().BoolVar(&showPath, "path", false, "print the audit database location and exit")
	return cmd
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  exactArgs(0),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(a.stdout, cliVersion)
		},
	}
}
