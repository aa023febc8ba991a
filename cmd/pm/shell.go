package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/Hussein-Mazeh/vaultkeeper/internal/service"
)

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Unlock once and run commands until exit or auto-lock",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.inShell {
				return userError{msg: "already in a shell"}
			}
			if _, err := a.unlocked(); err != nil {
				return err
			}
			a.inShell = true
			defer func() { a.inShell = false }()

			fmt.Fprintln(a.stdout, "session unlocked; type 'help' for commands")
			return a.sessionLoop(cmd)
		},
	}
}

func (a *app) sessionLoop(parent *cobra.Command) error {
	ctx := parent.Context()
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(a.stdout, "pm> ")
		line, ok := a.readLine()
		if !ok {
			if err := a.lines.Err(); err != nil {
				return errors.Wrap(err, "read input")
			}
			fmt.Fprintln(a.stdout)
			return nil
		}
		if line == "" {
			continue
		}

		fields, err := splitArgs(line)
		if err != nil {
			handleSessionError(a.stderr, err)
			continue
		}

		switch fields[0] {
		case "help":
			printSessionHelp(a)
		case "exit", "quit":
			return nil
		case "lock":
			a.session().Lock()
			fmt.Fprintln(a.stdout, "vault locked")
		case "status":
			printStatus(a, a.session().Status())
		case "init", "shell":
			fmt.Fprintf(a.stderr, "%s is not available inside the shell\n", fields[0])
		default:
			// A fresh tree per line keeps flag values from leaking between commands.
			root := newRootCmd(a)
			root.SetArgs(fields)
			handleSessionError(a.stderr, root.ExecuteContext(ctx))
		}
	}
}

func printStatus(a *app, st service.Status) {
	if st.State != service.Unlocked {
		fmt.Fprintf(a.stdout, "locked (%s)\n", st.Reason)
		return
	}
	fmt.Fprintf(a.stdout, "unlocked %s, %d record(s)", st.Path, st.Records)
	if !st.Deadline.IsZero() {
		fmt.Fprintf(a.stdout, ", locks in %s", time.Until(st.Deadline).Round(time.Second))
	}
	fmt.Fprintln(a.stdout)
}

func printSessionHelp(a *app) {
	fmt.Fprintln(a.stdout, "Commands:")
	fmt.Fprintln(a.stdout, "  list [--category <name>] [--search <text>]")
	fmt.Fprintln(a.stdout, "  get <id|service> [--show]")
	fmt.Fprintln(a.stdout, "  copy <id|service>")
	fmt.Fprintln(a.stdout, "  add --service <name> [--username <user>] [--url <url>] [--category <name>] [--generate]")
	fmt.Fprintln(a.stdout, "  edit <id|service> [--service ...] [--secret | --generate]")
	fmt.Fprintln(a.stdout, "  rm <id|service> [--yes]")
	fmt.Fprintln(a.stdout, "  move <id|service> <category>")
	fmt.Fprintln(a.stdout, "  category list|add|edit|rm")
	fmt.Fprintln(a.stdout, "  generate [--preset <name>] [--length <n>]")
	fmt.Fprintln(a.stdout, "  passwd | audit | status | lock")
	fmt.Fprintln(a.stdout, "  exit | quit")
}

// splitArgs splits a shell line on spaces, keeping single- or double-quoted
// runs together.
func splitArgs(line string) ([]string, error) {
	var (
		out   []string
		cur   strings.Builder
		quote rune
		inArg bool
	)
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inArg = true
		case r == ' ' || r == '\t':
			if inArg {
				out = append(out, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, userError{msg: "unterminated quote"}
	}
	if inArg {
		out = append(out, cur.String())
	}
	return out, nil
}
