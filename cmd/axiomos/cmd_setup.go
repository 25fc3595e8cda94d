package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/axiomos/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("Axiomos Setup Wizard")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.LLM.APIKey = prompt(scanner, "Groq API key", cfg.LLM.APIKey)
		cfg.LLM.BaseURL = prompt(scanner, "LLM base URL", cfg.LLM.BaseURL)
		cfg.LLM.Model = prompt(scanner, "Model", cfg.LLM.Model)

		if n, err := strconv.Atoi(prompt(scanner, "Max output tokens", strconv.Itoa(cfg.LLM.MaxTokens))); err == nil {
			cfg.LLM.MaxTokens = n
		}
		temp := strconv.FormatFloat(cfg.LLM.Temperature, 'f', -1, 64)
		if f, err := strconv.ParseFloat(prompt(scanner, "Temperature", temp), 64); err == nil {
			cfg.LLM.Temperature = f
		}

		dbDefault := cfg.Database.Path
		if dbDefault == "" {
			dbDefault = filepath.Join(cfg.DataDir, "axiomos.db")
		}
		cfg.Database.Path = prompt(scanner, "Database path", dbDefault)
		cfg.Redis.Host = prompt(scanner, "Redis host (optional, empty keeps session memory in-process)", cfg.Redis.Host)
		cfg.Telegram.Token = prompt(scanner, "Telegram bot token (optional)", cfg.Telegram.Token)
		cfg.HTTP.Listen = prompt(scanner, "HTTP listen address", cfg.HTTP.Listen)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// prompt reads one line for label, returning defaultVal on empty input.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		if input := strings.TrimSpace(scanner.Text()); input != "" {
			return input
		}
	}
	return defaultVal
}
