package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/axiomos/internal/types"
)

func init() {
	rootCmd.AddCommand(memoryCmd)
	memoryCmd.AddCommand(memoryListCmd, memoryAddCmd, memoryPurgeCmd)
	memoryAddCmd.Flags().String("key", "", "replace any entry with the same key")
	memoryAddCmd.Flags().String("category", types.CategoryNote, "fact, conversation or note")
}

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Manage long-term memory",
}

var memoryListCmd = &cobra.Command{
	Use:   "list <user_id>",
	Short: "List a user's long-term memories",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openAdmin(ctx, loadConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.memory.ListLongTerm(ctx, types.UserID(args[0]))
		if err != nil {
			return fmt.Errorf("list memories: %w", err)
		}
		if len(entries) == 0 {
			fmt.Println("No memories found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCATEGORY\tKEY\tCREATED\tCONTENT")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.ID,
				e.Category,
				e.Key,
				e.CreatedAt.Format(time.DateTime),
				truncate(e.Content, 60),
			)
		}
		return w.Flush()
	},
}

var memoryAddCmd = &cobra.Command{
	Use:   "add <user_id> <content>",
	Short: "Store a long-term memory for a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")
		category, _ := cmd.Flags().GetString("category")
		switch category {
		case types.CategoryFact, types.CategoryConversation, types.CategoryNote:
		default:
			return fmt.Errorf("invalid category %q (want fact, conversation or note)", category)
		}

		ctx := context.Background()
		a, err := openAdmin(ctx, loadConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		entry, err := a.memory.SaveLongTerm(ctx, types.MemoryEntry{
			UserID:   types.UserID(args[0]),
			Category: category,
			Key:      key,
			Content:  args[1],
		})
		if err != nil {
			return fmt.Errorf("save memory: %w", err)
		}
		fmt.Printf("Memory %s saved.\n", entry.ID)
		return nil
	},
}

var memoryPurgeCmd = &cobra.Command{
	Use:   "purge <user_id>",
	Short: "Delete all of a user's long-term memories",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openAdmin(ctx, loadConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.memory.PurgeLongTerm(ctx, types.UserID(args[0]))
		if err != nil {
			return fmt.Errorf("purge memories: %w", err)
		}
		fmt.Printf("Deleted %d memories.\n", n)
		return nil
	},
}
