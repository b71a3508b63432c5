// Package config resolves meshpilot's configuration: the device address,
// console options, and the files kept under the user's config directory
// (default address, prompt history, startup scripts).
//
// Priority (highest to lowest): CLI flags > environment variables >
// local .env > config .env > config.yaml > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"meshpilot/internal/logger"
)

// EnvPrefix is the prefix for environment variables viper reads,
// e.g. MESHPILOT_ADDRESS, MESHPILOT_ACK_TIMEOUT.
const EnvPrefix = "MESHPILOT"

// Connection defaults for schemes that omit them.
const (
	DefaultTCPPort = 5000
	DefaultBaud    = 115200
)

// Dir returns the user's meshpilot config directory, honoring
// XDG_CONFIG_HOME with a ~/.config fallback.
func Dir() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		configHome = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configHome, "meshpilot"), nil
}

// EnsureDir returns the config directory, creating it if needed.
func EnsureDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// LoadDotEnv layers .env files into the process environment. The local .env
// is loaded before the config-directory one so it wins on overlap; variables
// already present in the environment are never overridden.
func LoadDotEnv() {
	if err := godotenv.Load(".env"); err == nil {
		logger.Debug("Loaded local .env")
	}
	dir, err := Dir()
	if err != nil {
		return
	}
	envPath := filepath.Join(dir, ".env")
	if err := godotenv.Load(envPath); err == nil {
		logger.Debug("Loaded config .env", "path", envPath)
	}
}

// SetupViper wires the environment prefix and the optional config.yaml in
// the config directory into a viper instance. A missing config file is not
// an error.
func SetupViper(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	dir, err := Dir()
	if err != nil {
		return
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err == nil {
		logger.Debug("Loaded config file", "path", v.ConfigFileUsed())
	}
}

// DefaultAddressFile returns the path of the persisted device address, or ""
// when the config directory cannot be determined.
func DefaultAddressFile() string {
	dir, err := Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "default_address")
}

// ReadDefaultAddress loads the last successfully used device address.
func ReadDefaultAddress() (string, bool) {
	path := DefaultAddressFile()
	if path == "" {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	addr := strings.TrimSpace(string(data))
	return addr, addr != ""
}

// WriteDefaultAddress persists the device address for the next session.
func WriteDefaultAddress(addr string) error {
	dir, err := EnsureDir()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "default_address"), []byte(addr+"\n"), 0600)
}

// HistoryFile returns the readline history path, or "" when the config
// directory cannot be determined (history is then kept in memory only).
func HistoryFile() string {
	dir, err := EnsureDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "history")
}

// StartupScripts returns the startup script paths that exist, in execution
// order: the shared script first, then the per-node one.
func StartupScripts(nodeName string) []string {
	dir, err := Dir()
	if err != nil {
		return nil
	}
	candidates := []string{filepath.Join(dir, "startup")}
	if nodeName != "" {
		candidates = append(candidates, filepath.Join(dir, "startup-"+nodeName))
	}
	var found []string
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			found = append(found, p)
		}
	}
	return found
}
