package config

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// DotEnvPath returns REPOFLEET_ENV when set, otherwise .env in cwd.
func DotEnvPath(cwd string) string {
	if env := strings.TrimSpace(os.Getenv(EnvDotEnv)); env != "" {
		return env
	}
	return filepath.Join(cwd, ".env")
}

// LoadDotEnv reads KEY=VALUE lines from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, strings.TrimSpace(value)); err != nil {
			return err
		}
	}
	return scanner.Err()
}
