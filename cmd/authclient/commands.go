package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jrsteele09/go-auth-client/client"
	"github.com/jrsteele09/go-auth-client/credential"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/jrsteele09/go-auth-client/persist"
	"github.com/jrsteele09/go-auth-client/providers"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// passwordPrompter reads a secret without echo. Only the shell provides one.
type passwordPrompter interface {
	PasswordPrompt(prompt string) (string, error)
}

type runtime struct {
	client   *client.Client
	cfg      config.Config
	prompter passwordPrompter
}

// demoConfig keeps every backend in process.
type demoConfig struct {
	config.Config
}

func (demoConfig) GetIdentityBackend() string  { return config.IdentityBackendInMemory }
func (demoConfig) GetStoreBackend() string     { return config.StoreBackendInMemory }
func (demoConfig) GetSessionStorePath() string { return persist.MemoryPath }
func (demoConfig) GetGoogleClientID() string   { return "" }
func (demoConfig) GetGitHubClientID() string   { return "" }

func (rt *runtime) close() {
	if rt.client != nil {
		rt.client.Close()
		rt.client = nil
	}
}

func newRootCmd(rt *runtime) *cobra.Command {
	var (
		envFile  string
		demo     bool
		logLevel string
	)

	root := &cobra.Command{
		Use:           "authclient",
		Short:         "Sign in, manage your session and edit your records",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(envFile); err != nil {
				return err
			}
			var cfg config.Config = config.New()
			if demo {
				cfg = demoConfig{Config: cfg}
			}
			if logLevel == "" {
				logLevel = cfg.GetLogLevel()
			}
			configureLogging(logLevel)

			c, err := client.New(cmd.Context(), cfg,
				client.WithExpiryHandler(func(n session.Notice) {
					fmt.Fprintf(os.Stderr, "\nSigned out (%s) at %s.\n", n.Reason, n.At.Format("15:04:05"))
				}),
				client.WithURLOpener(func(authURL string) error {
					fmt.Fprintf(os.Stderr, "Open this URL to continue:\n  %s\n", authURL)
					return nil
				}),
			)
			if err != nil {
				return err
			}
			rt.client = c
			rt.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Load settings from this .env file when present")
	root.PersistentFlags().BoolVar(&demo, "demo", false, "Use in-process identity and record backends")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	addCommands(root, rt)
	root.AddCommand(newShellCmd(rt))
	return root
}

func configureLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// addCommands attaches every session and record command. Each invocation counts
// as user interaction and postpones idle expiry.
func addCommands(parent *cobra.Command, rt *runtime) {
	touch := func(cmd *cobra.Command, args []string) {
		rt.client.Monitor.Touch()
	}
	for _, cmd := range []*cobra.Command{
		newSignInCmd(rt),
		newSignUpCmd(rt),
		newResetPasswordCmd(rt),
		newChangePasswordCmd(rt),
		newSignOutCmd(rt),
		newWhoAmICmd(rt),
		newRecordsCmd(rt),
	} {
		cmd.PreRun = touch
		for _, sub := range cmd.Commands() {
			sub.PreRun = touch
		}
		parent.AddCommand(cmd)
	}
}

func (rt *runtime) password(value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	if rt.prompter == nil {
		return "", errors.New("password is required")
	}
	return rt.prompter.PasswordPrompt(prompt)
}

func newSignInCmd(rt *runtime) *cobra.Command {
	var email, password, provider string
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with email and password, or with --provider google|github",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				s   session.Session
				err error
			)
			if provider != "" {
				s, err = rt.client.Gateway.SignInWithProvider(cmd.Context(), providers.ID(strings.ToLower(provider)))
			} else {
				pw, perr := rt.password(password, "Password: ")
				if perr != nil {
					return perr
				}
				s, err = rt.client.Gateway.SignInWithPassword(cmd.Context(), email, pw)
			}
			if err != nil {
				return userError(err)
			}
			printSession(cmd.OutOrStdout(), s)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	cmd.Flags().StringVar(&provider, "provider", "", "External provider (google or github)")
	return cmd
}

func newSignUpCmd(rt *runtime) *cobra.Command {
	var email, password, name string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := rt.password(password, "Choose a password: ")
			if err != nil {
				return err
			}
			s, err := rt.client.Gateway.SignUp(cmd.Context(), email, pw, name)
			if s.IsLive {
				printSession(cmd.OutOrStdout(), s)
			}
			if err != nil {
				return userError(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	return cmd
}

func newResetPasswordCmd(rt *runtime) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Send a password reset email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.client.Gateway.RequestPasswordReset(cmd.Context(), email); err != nil {
				return userError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "An email has been sent to reset your password.")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	return cmd
}

func newChangePasswordCmd(rt *runtime) *cobra.Command {
	var current, next string
	cmd := &cobra.Command{
		Use:   "change-password",
		Short: "Change the signed-in account's password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cur, err := rt.password(current, "Current password: ")
			if err != nil {
				return err
			}
			nxt, err := rt.password(next, "New password: ")
			if err != nil {
				return err
			}
			if err := rt.client.Gateway.ChangePassword(cmd.Context(), cur, nxt); err != nil {
				return userError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password changed.")
			return nil
		},
	}
	cmd.Flags().StringVar(&current, "current", "", "Current password")
	cmd.Flags().StringVar(&next, "new", "", "New password")
	return cmd
}

func newSignOutCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = rt.client.Gateway.SignOut(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func newWhoAmICmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rt.client.RequireSession()
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return nil
			}
			printSession(cmd.OutOrStdout(), s)
			if deadline, ok := rt.client.Monitor.Deadline(); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "  idle expiry at %s\n", deadline.Format("15:04:05"))
			}
			return nil
		},
	}
}

func newRecordsCmd(rt *runtime) *cobra.Command {
	requireSession := func(cmd *cobra.Command, args []string) error {
		_, err := rt.client.RequireSession()
		return err
	}
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List and edit your records",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Reload and list records",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := requireSession(cmd, args); err != nil {
					return err
				}
				recs, err := rt.client.Records.ListAll(cmd.Context())
				if err != nil {
					return err
				}
				if len(recs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No records.")
				}
				for _, r := range recs {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", r.ID, utils.FormatFields(r.Fields))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "create key=value...",
			Short: "Create a record",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := requireSession(cmd, args); err != nil {
					return err
				}
				fields, err := utils.ParseFields(args)
				if err != nil {
					return err
				}
				if err := rt.client.Records.Create(cmd.Context(), fields); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created. %d record(s).\n", len(rt.client.Records.Records()))
				return nil
			},
		},
		&cobra.Command{
			Use:   "update id key=value...",
			Short: "Replace a record's fields",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := requireSession(cmd, args); err != nil {
					return err
				}
				fields, err := utils.ParseFields(args[1:])
				if err != nil {
					return err
				}
				if err := rt.client.Records.Update(cmd.Context(), args[0], fields); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Updated.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete id",
			Short: "Delete a record",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := requireSession(cmd, args); err != nil {
					return err
				}
				if err := rt.client.Records.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Deleted.")
				return nil
			},
		},
	)
	return cmd
}

func printSession(w io.Writer, s session.Session) {
	name := s.DisplayName
	if name == "" {
		name = s.Email
	}
	fmt.Fprintf(w, "Signed in as %s (%s via %s)\n", name, s.Identity, s.ProviderID)
}

// userError surfaces the display message of a classified credential failure.
func userError(err error) error {
	var ce *credential.Error
	if errors.As(err, &ce) {
		log.Debug().Err(err).Msg("credential operation failed")
		return errors.New(ce.Message)
	}
	return err
}
