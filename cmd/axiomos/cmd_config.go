package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/user/axiomos/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd, configPathCmd)
	configListCmd.Flags().Bool("show-secrets", false, "print the Groq API key, Redis password and bot token unmasked")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit LLM, session, store and channel settings",
	Long: `Inspect and edit the axiomos config file.

Keys are dotted paths such as llm.model, session.timeout_seconds or redis.host.
"list" shows effective values, so environment overrides (GROQ_*, REDIS_*,
DB_PATH, SESSION_TIMEOUT, ...) are included. "get" and "set" work on the file.`,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List effective settings, environment overrides applied",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		showSecrets, _ := cmd.Flags().GetBool("show-secrets")
		values, err := config.ListValues(loadConfig(), !showSecrets)
		if err != nil {
			return fmt.Errorf("list config: %w", err)
		}

		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		out := cmd.OutOrStdout()
		for _, k := range keys {
			fmt.Fprintf(out, "%s = %v\n", k, values[k])
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:     "get <key>",
	Short:   "Print one setting from the config file",
	Example: "  axiomos config get llm.model",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		val, err := config.GetValue(cfgPath, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), val)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:     "set <key> <value>",
	Short:   "Write one setting to the config file",
	Example: "  axiomos config set session.timeout_seconds 1800\n  axiomos config set redis.host localhost",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetValue(cfgPath, args[0], args[1]); err != nil {
			return err
		}
		display := args[1]
		if config.IsSecretKey(args[0]) {
			display = "***"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s (restart the server to apply)\n", args[0], display)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), cfgPath)
		return nil
	},
}
