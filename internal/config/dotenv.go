package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads .env.local and then .env from the working directory.
// Variables already set in the environment win, and the first file to set
// a variable wins over later ones. AXIOMOS_DOTENV=0 disables loading.
func LoadDotEnv(paths ...string) error {
	if dotEnvDisabled() {
		return nil
	}
	if len(paths) == 0 {
		paths = []string{".env.local", ".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
		slog.Debug("loaded env file", "path", p)
	}
	return nil
}

func dotEnvDisabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("AXIOMOS_DOTENV"))) {
	case "0", "false", "off", "no":
		return true
	}
	return false
}
