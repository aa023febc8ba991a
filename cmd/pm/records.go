package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Hussein-Mazeh/vaultkeeper/internal/passgen"
	"github.com/Hussein-Mazeh/vaultkeeper/internal/service"
	"github.com/Hussein-Mazeh/vaultkeeper/internal/vault"
)

// minIDPrefix is the shortest id prefix accepted in place of a full id.
const minIDPrefix = 4

// findRecord resolves ref as a full id, a unique id prefix, or a unique
// service name.
func findRecord(s *service.Session, ref string) (vault.Record, error) {
	if rec, err := s.GetRecord(ref); err == nil {
		return rec, nil
	} else if !errors.Is(err, service.ErrRecordNotFound) {
		return vault.Record{}, err
	}

	recs, err := s.ListRecords()
	if err != nil {
		return vault.Record{}, err
	}
	var byPrefix, byService []vault.Record
	for _, r := range recs {
		if len(ref) >= minIDPrefix && strings.HasPrefix(r.ID, ref) {
			byPrefix = append(byPrefix, r)
		}
		if strings.EqualFold(r.Service, ref) {
			byService = append(byService, r)
		}
	}
	switch {
	case len(byPrefix) == 1:
		return byPrefix[0], nil
	case len(byPrefix) == 0 && len(byService) == 1:
		return byService[0], nil
	case len(byPrefix) > 1 || len(byService) > 1:
		return vault.Record{}, userError{msg: fmt.Sprintf("%q matches more than one record; use the id", ref)}
	}
	return vault.Record{}, errors.WithHint(
		errors.Wrapf(service.ErrRecordNotFound, "%q", ref),
		"run 'pm list' to see record ids")
}

// findCategory resolves ref as a category id or name.
func findCategory(s *service.Session, ref string) (vault.Category, error) {
	if c, err := s.CategoryByName(ref); err == nil {
		return c, nil
	} else if !errors.Is(err, service.ErrCategoryNotFound) {
		return vault.Category{}, err
	}
	cats, err := s.ListCategories()
	if err != nil {
		return vault.Category{}, err
	}
	for _, c := range cats {
		if c.ID == ref {
			return c, nil
		}
	}
	return vault.Category{}, errors.WithHint(
		errors.Wrapf(service.ErrCategoryNotFound, "%q", ref),
		"run 'pm category list' to see categories")
}

func categoryNames(s *service.Session) (map[string]string, error) {
	cats, err := s.ListCategories()
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	return names, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newListCmd(a *app) *cobra.Command {
	var category, search string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List records without their secrets",
		Args:    exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.unlocked()
			if err != nil {
				return err
			}
			recs, err := s.ListRecords()
			if err != nil {
				return err
			}
			names, err := categoryNames(s)
			if err != nil {
				return err
			}
			if category != "" {
				c, err := findCategory(s, category)
				if err != nil {
					return err
				}
				kept := recs[:0]
				for _, r := range recs {
					if r.CategoryID == c.ID {
						kept = append(kept, r)
					}
				}
				recs = kept
			}
			if search != "" {
				kept := recs[:0]
				for _, r := range recs {
					if matchesSearch(r, search) {
						kept = append(kept, r)
					}
				}
				recs = kept
			}
			if len(recs) == 0 {
				fmt.Fprintln(a.stdout, "no records")
				return nil
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSERVICE\tUSERNAME\tCATEGORY")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", shortID(r.ID), r.Service, r.Username, names[r.CategoryID])
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "only show records in this category")
	cmd.Flags().StringVarP(&search, "search", "q", "", "only show records whose service, username or URL contains this text")
	return cmd
}

// matchesSearch reports whether q appears in the record's service, username
// or URL, ignoring case.
func matchesSearch(r vault.Record, q string) bool {
	q = strings.ToLower(q)
	for _, field := range []string{r.Service, r.Username, r.URL} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

func printRecord(w io.Writer, r vault.Record, category string, showSecret bool) {
	secret := strings.Repeat("*", 8)
	if showSecret {
		secret = r.Secret
	}
	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	fmt.Fprintf(tw, "id:\t%s\n", r.ID)
	fmt.Fprintf(tw, "service:\t%s\n", r.Service)
	fmt.Fprintf(tw, "username:\t%s\n", r.Username)
	fmt.Fprintf(tw, "secret:\t%s\n", secret)
	if r.URL != "" {
		fmt.Fprintf(tw, "url:\t%s\n", r.URL)
	}
	fmt.Fprintf(tw, "category:\t%s\n", category)
	fmt.Fprintf(tw, "modified:\t%s\n", r.Modified.Local().Format("2006-01-02 15:04"))
	_ = tw.Flush()
}

func newGetCmd(a *app) *cobra.Command {
	var show bool
	cmd := &cobra.Command{
		Use:   "get <id|service>",
		Short: "Show one record",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.unlocked()
			if err != nil {
				return err
			}
			rec, err := findRecord(s, args[0])
			if err != nil {
				return err
			}
			names, err := categoryNames(s)
			if err != nil {
				return err
			}
			printRecord(a.stdout, rec, names[rec.CategoryID], show)
			return nil
		},
	}
	cmd.Flags().BoolVar(&show, "show", false, "print the secret in clear text")
	return cmd
}

func newCopyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "copy <id|service>",
		Short: "Copy a secret to the clipboard and clear it after the timeout",
		Long: "Copies the secret of a record to the clipboard. Outside the shell the command waits " +
			"until the clipboard has been cleared; interrupting it clears the clipboard at once.",
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.unlocked()
			if err != nil {
				return err
			}
			rec, err := findRecord(s, args[0])
			if err != nil {
				return err
			}
			if err := s.CopySecretToClipboard(rec.ID); err != nil {
				if errors.Is(err, service.ErrNoClipboard) {
					return errors.WithHint(err, "install xclip, xsel or wl-clipboard")
				}
				return err
			}
			fmt.Fprintf(a.stdout, "copied secret for %s; clipboard clears in %s\n", rec.Service, a.clip.Timeout())
			if a.inShell {
				return nil
			}

			// The process must outlive the exposure window to clear it.
			s.Lock()
			select {
			case cleared := <-a.cleared:
				if !cleared {
					fmt.Fprintln(a.stdout, "clipboard changed since the copy; left as is")
				}
			case <-cmd.Context().Done():
				if err := a.clip.Close(); err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, "clipboard cleared")
			}
			return nil
		},
	}
}

type recordFlags struct {
	service  string
	username string
	url      string
	category string
	generate bool
	preset   string
	length   int
}

func (f *recordFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.service, "service", "s", "", "service or site name")
	fs.StringVarP(&f.username, "username", "u", "", "account name")
	fs.StringVar(&f.url, "url", "", "login URL")
	fs.StringVarP(&f.category, "category", "c", "", "category name")
	fs.BoolVarP(&f.generate, "generate", "g", false, "generate the secret instead of prompting for it")
	fs.StringVar(&f.preset, "preset", "strong", "generator preset: "+strings.Join(passgen.PresetNames(), ", "))
	fs.IntVar(&f.length, "length", 0, "generated secret length (default from the preset)")
}

// secret generates or prompts for a record secret.
func (f *recordFlags) secret(a *app) (string, error) {
	if f.generate {
		o, ok := passgen.Presets[f.preset]
		if !ok {
			return "", userError{msg: fmt.Sprintf("unknown preset %q", f.preset)}
		}
		if f.length > 0 {
			o.Length = f.length
		}
		res, err := passgen.Generate(o)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(a.stdout, "generated a %d character secret (%s)\n", len(res.Password), passgen.StrengthLabel(res.Score))
		return res.Password, nil
	}
	b, err := a.readPassword("Secret: ")
	if err != nil {
		return "", errors.Wrap(err, "read secret")
	}
	defer zeroBytes(b)
	return string(b), nil
}

func newAddCmd(a *app) *cobra.Command {
	var f recordFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a record",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(f.service) == "" {
				return userError{msg: "add requires --service"}
			}
			s, err := a.unlocked()
			if err != nil {
				return err
			}
			in := vault.RecordInput{Service: f.service, Username: f.username, URL: f.url}
			if f.category != "" {
				c, err := findCategory(s, f.category)
				if err != nil {
					return err
				}
				in.CategoryID = c.ID
			}
			if in.Secret, err = f.secret(a); err != nil {
				return err
			}
			rec, err := s.AddRecord(in)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "added %s (%s)\n", rec.Service, rec.ID)
			return nil
		},
	}
	f.register(cmd.Flags())
	return cmd
}

func newEditCmd(a *app) *cobra.Command {
	var (
		f         recordFlags
		newSecret bool
	)
	cmd := &cobra.Command{
		Use:   "edit <id|service>",
		Short: "Change fields of a record",
		Long:  "Only the flags given are changed. Use --secret or --generate to replace the secret.",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.unlocked()
			if err != nil {
				return err
			}
			rec, err := findRecord(s, args[0])
			if err != nil {
				return err
			}
			in := rec.Input()
			fs := cmd.Flags()
			if fs.Changed("service") {
				in.Service = f.service
			}
			if fs.Changed("username") {
				in.Username = f.username
			}
			if fs.Changed("url") {
				in.URL = f.url
			}
			if fs.Changed("category") {
				c, err := findCategory(s, f.category)
				if err != nil {
					return err
				}
				in.CategoryID = c.ID
			}
			if newSecret || f.generate {
				if in.Secret, err = f.secret(a); err != nil {
					return err
				}
			}
			rec, err = s.EditRecord(rec.ID, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "updated %s (%s)\n", rec.Service, rec.ID)
			return nil
		},
	}
	f.register(cmd.Flags())
	cmd.Flags().BoolVar(&newSecret, "secret", false, "prompt for a new secret")
	return cmd
}

func newRemoveCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "rm <id|service>",
		Aliases: []string{"delete"},
		Short:   "Delete a record",
		Args:    exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.unlocked()
			if err != nil {
				return err
			}
			rec, err := findRecord(s, args[0])
			if err != nil {
				return err
			}
			if !yes && !a.confirm(fmt.Sprintf("delete %s (%s)?", rec.Service, shortID(rec.ID))) {
				fmt.Fprintln(a.stdout, "cancelled")
				return nil
			}
			if err := s.DeleteRecord(rec.ID); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "deleted %s\n", rec.Service)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newMoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "move <id|service> <category>",
		Short: "Move a record to another category",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.unlocked()
			if err != nil {
				return err
			}
			rec, err := findRecord(s, args[0])
			if err != nil {
				return err
			}
			c, err := findCategory(s, args[1])
			if err != nil {
				return err
			}
			if _, err := s.MoveRecord(rec.ID, c.ID); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "moved %s to %s\n", rec.Service, c.Name)
			return nil
		},
	}
}
