package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rzbill/tokenvault/pkg/cli/format"
	"github.com/rzbill/tokenvault/pkg/log"
	"github.com/rzbill/tokenvault/pkg/tokens"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

func newCreateCmd() *cobra.Command {
	var application bool
	var expires time.Duration
	var outFile string
	cmd := &cobra.Command{
		Use:   "create <user>",
		Short: "Issue a new token for a user",
		Long: `Issue a new signed token for a user and store it.

User tokens default to the configured expiry (token.default_expiry).
Application tokens never expire unless --expires is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer s.Close()

			token, err := s.manager.Create(cmd.Context(), args[0], application, expires)
			if err != nil {
				return err
			}

			if outFile != "" {
				if err := os.WriteFile(outFile, []byte(token), 0o600); err != nil {
					return fmt.Errorf("failed to write token to %s: %w", outFile, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s Token created for %s, written to %s\n", format.StatusSymbol(true), args[0], outFile)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "%s Token created for %s\n", format.StatusSymbol(true), args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&application, "application", false, "Issue an application token")
	cmd.Flags().DurationVar(&expires, "expires", 0, "Time-to-live (e.g., 1h). 0 uses the default for user tokens and no expiry for application tokens; negative values also use the default for user tokens and are rejected for application tokens")
	cmd.Flags().StringVar(&outFile, "out-file", "", "Write the token to this file (0600) instead of stdout")
	return cmd
}

func newListCmd() *cobra.Command {
	var output string
	var full bool
	cmd := &cobra.Command{
		Use:   "list <user>",
		Short: "List the live tokens of a user",
		Long: `List the live tokens of a user. Expired or undecodable tokens found
while listing are purged from the store.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer s.Close()

			list, err := s.manager.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			rows := make([]tokenRow, 0, len(list))
			for _, token := range list {
				payload, err := s.signer.Verify(token)
				if err != nil {
					// expired between the purge and now
					s.logger.Debug("Skipping token that no longer verifies", log.Err(err))
					continue
				}
				rows = append(rows, tokenRow{Token: token, Payload: payload})
			}

			switch output {
			case "yaml":
				return writeYAML(cmd.OutOrStdout(), rows)
			case "table", "":
				table := NewResourceTable()
				table.ShowFull = full
				return table.RenderTokens(cmd.OutOrStdout(), rows)
			default:
				return fmt.Errorf("unsupported output format: %s", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table|yaml)")
	cmd.Flags().BoolVar(&full, "full", false, "Show full tokens instead of truncating them")
	return cmd
}

func newRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <token>",
		Short: "Revoke a single token",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := readToken(cmd, args)
			if err != nil {
				return err
			}

			s, err := newSession(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.manager.Revoke(cmd.Context(), token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Token revoked\n", format.StatusSymbol(true))
			return nil
		},
	}
}

func newRevokeAllCmd() *cobra.Command {
	var before string
	var userOnly, applicationOnly bool
	cmd := &cobra.Command{
		Use:   "revoke-all <user>",
		Short: "Revoke every token of a user matching the filters",
		Long: `Revoke every token of a user matching the filters.

--before accepts an RFC3339 timestamp or a duration, which is taken as
that long ago (e.g. --before 24h revokes tokens issued over a day ago).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userOnly && applicationOnly {
				return fmt.Errorf("--user-only and --application-only are mutually exclusive")
			}

			preds := []tokens.Predicate{tokens.All()}
			if userOnly {
				preds = append(preds, tokens.UserTokensOnly())
			}
			if applicationOnly {
				preds = append(preds, tokens.ApplicationTokensOnly())
			}
			if before != "" {
				cutoff, err := parseCutoff(before, time.Now())
				if err != nil {
					return err
				}
				preds = append(preds, tokens.IssuedBefore(cutoff))
			}

			s, err := newSession(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.manager.BatchRevoke(cmd.Context(), args[0], tokens.And(preds...)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Matching tokens of %s revoked\n", format.StatusSymbol(true), args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&before, "before", "", "Only revoke tokens issued before this time (RFC3339 or duration ago)")
	cmd.Flags().BoolVar(&userOnly, "user-only", false, "Only revoke user tokens")
	cmd.Flags().BoolVar(&applicationOnly, "application-only", false, "Only revoke application tokens")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "verify [token]",
		Short: "Check that a token is valid and not revoked",
		Long: `Check that a token is valid and not revoked, printing its claims.

The token is read from the argument, from stdin when the argument is "-"
or stdin is piped, or from a hidden prompt on a terminal. The exit code
is 2 for an invalid token, 3 for an expired one and 4 for a revoked one.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := readToken(cmd, args)
			if err != nil {
				return err
			}

			s, err := newSession(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer s.Close()

			payload, err := s.manager.Verify(cmd.Context(), token)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch output {
			case "yaml":
				return writeYAML(out, payload)
			case "text", "":
				kind := "user"
				if payload.Application {
					kind = "application"
				}
				fmt.Fprintf(out, "%s Token is valid\n", format.StatusSymbol(true))
				fmt.Fprintln(out, format.Label("User", payload.Username))
				fmt.Fprintln(out, format.Label("Type", kind))
				fmt.Fprintln(out, format.Label("Issued", format.Timestamp(payload.IssuedAt)))
				fmt.Fprintln(out, format.Label("Expires", format.Timestamp(payload.ExpiresAt)))
				return nil
			default:
				return fmt.Errorf("unsupported output format: %s", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text|yaml)")
	return cmd
}

func newUsersCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List users that hold tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer s.Close()

			users, err := s.manager.Users(cmd.Context())
			if err != nil {
				return err
			}
			if output == "yaml" {
				return writeYAML(cmd.OutOrStdout(), users)
			}
			return NewResourceTable().RenderUsers(cmd.OutOrStdout(), users)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table|yaml)")
	return cmd
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Purge expired tokens from every user once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer s.Close()

			result, err := s.manager.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Swept %d users: %d tokens purged from %d objects, %d skipped\n",
				format.StatusSymbol(true), result.Objects, result.Purged, result.Updated, result.Skipped)
			return nil
		},
	}
}

// readToken takes the token from args, stdin or a hidden terminal prompt.
func readToken(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return strings.TrimSpace(args[0]), nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && len(args) == 0 && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Token: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		return nonEmptyToken(string(raw))
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read token from stdin: %w", err)
	}
	return nonEmptyToken(line)
}

func nonEmptyToken(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("no token given")
	}
	return s, nil
}

// parseCutoff accepts an RFC3339 timestamp or a duration before now.
func parseCutoff(value string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --before value %q: want RFC3339 time or duration", value)
	}
	return now.Add(-d), nil
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
