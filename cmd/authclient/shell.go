package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const historyFile = "shell_history"

// secretFlags carry passwords; lines using them never reach the history file.
var secretFlags = []string{"--password", "--current", "--new"}

func newShellCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive session; every command counts as activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			displayAppname(rt.cfg.GetAppName())

			line := liner.NewLiner()
			line.SetCtrlCAborts(true)
			rt.prompter = line
			historyPath := filepath.Join(rt.cfg.GetDataFolder(), historyFile)
			if f, err := os.Open(historyPath); err == nil {
				_, _ = line.ReadHistory(f)
				f.Close()
			}
			defer func() {
				saveHistory(line, historyPath)
				line.Close()
				rt.prompter = nil
			}()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Type 'help' for commands, 'exit' to quit.")
			for {
				if cmd.Context().Err() != nil {
					return nil
				}
				if !acknowledgeNotice(rt, line, out) {
					return nil
				}

				input, err := line.Prompt(prompt(rt))
				if err != nil {
					// Ctrl+C, Ctrl+D or a closed terminal all end the shell.
					fmt.Fprintln(out)
					return nil
				}
				input = strings.TrimSpace(input)
				if input == "" {
					continue
				}
				if keepInHistory(input) {
					line.AppendHistory(input)
				}
				if input == "exit" || input == "quit" {
					return nil
				}

				rt.client.Monitor.Touch()
				if err := runShellLine(cmd, rt, strings.Fields(input)); err != nil {
					fmt.Fprintf(out, "Error: %v\n", err)
				}
			}
		},
	}
}

// acknowledgeNotice holds the shell on a forced sign-out notice until the user
// confirms it. It reports false when the terminal is gone.
func acknowledgeNotice(rt *runtime, line *liner.State, out io.Writer) bool {
	notice, ok := rt.client.Monitor.PendingNotice()
	if !ok {
		return true
	}
	fmt.Fprintf(out, "Your session ended (%s). Sign in again to continue.\n", notice.Reason)
	if _, err := line.Prompt("Press Enter to continue "); err != nil {
		return false
	}
	rt.client.Monitor.AcknowledgeNotice()
	return true
}

func prompt(rt *runtime) string {
	if s, ok := rt.client.Monitor.Current(); ok {
		return s.Email + "> "
	}
	return "anonymous> "
}

// runShellLine executes one line against a fresh command tree so flag values
// never leak between lines.
func runShellLine(parent *cobra.Command, rt *runtime, args []string) error {
	tree := &cobra.Command{
		Use:           "authclient",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	addCommands(tree, rt)
	tree.SetArgs(args)
	tree.SetOut(parent.OutOrStdout())
	tree.SetErr(parent.ErrOrStderr())
	return tree.ExecuteContext(parent.Context())
}

func keepInHistory(input string) bool {
	for _, field := range strings.Fields(input) {
		for _, flag := range secretFlags {
			if field == flag || strings.HasPrefix(field, flag+"=") {
				return false
			}
		}
	}
	return true
}

func saveHistory(line *liner.State, path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		log.Debug().Err(err).Msg("saving shell history")
		return
	}
	defer f.Close()
	_, _ = line.WriteHistory(f)
}
