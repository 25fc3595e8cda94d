package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/axiomos/internal/types"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionShowCmd, sessionDeleteCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and delete sessions",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <token>",
	Short: "Show a session and its conversation memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openAdmin(ctx, loadConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		token := types.SessionToken(args[0])
		sess, err := a.sessions.Get(ctx, token)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				return fmt.Errorf("session not found: %s", args[0])
			}
			return fmt.Errorf("get session: %w", err)
		}
		mem, err := a.memory.LoadSession(ctx, token)
		if err != nil {
			return fmt.Errorf("load session memory: %w", err)
		}

		fmt.Printf("Session:     %s\n", sess.Token)
		fmt.Printf("User:        %s\n", sess.UserID)
		fmt.Printf("Created:     %s\n", sess.CreatedAt.Format(time.DateTime))
		fmt.Printf("Last active: %s\n", sess.LastActiveAt.Format(time.DateTime))
		fmt.Printf("Expires in:  %s\n", sess.Remaining(time.Now()).Round(time.Second))
		fmt.Printf("Messages:    %d\n", len(mem.Messages))
		if len(mem.Messages) == 0 {
			return nil
		}

		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tROLE\tCONTENT")
		for _, m := range mem.Messages {
			fmt.Fprintf(w, "%s\t%s\t%s\n", m.Timestamp.Format(time.TimeOnly), m.Role, truncate(m.Content, 80))
		}
		return w.Flush()
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <token>",
	Short: "Delete a session and its conversation memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openAdmin(ctx, loadConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		token := types.SessionToken(args[0])
		if err := a.sessions.Invalidate(ctx, token); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		if h := a.memory.ClearSession(ctx, token); h != types.Healthy {
			fmt.Fprintln(os.Stderr, "Warning: session memory could not be cleared.")
		}
		fmt.Printf("Session %s deleted.\n", args[0])
		return nil
	},
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
