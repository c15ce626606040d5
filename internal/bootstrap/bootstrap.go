// Package bootstrap scaffolds a starter configuration file.
package bootstrap

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/socialcredit/socialcredit-backend/internal/config"
)

// InitOptions configures the generated config file.
type InitOptions struct {
	Root        string
	Environment string
	StoreDriver string
	PostgresDSN string
	FrontendURL string
	Force       bool
}

// Init writes config/socialcredit.yaml under Root with fresh secrets and
// returns its path.
func Init(opts InitOptions) (string, error) {
	applyDefaults(&opts)
	if err := Validate(opts); err != nil {
		return "", err
	}

	cfg := config.Defaults()
	cfg.Environment = opts.Environment
	cfg.Store.Driver = opts.StoreDriver
	cfg.Store.Path = filepath.Join("data", "socialcredit.db")
	cfg.Store.PostgresDSN = opts.PostgresDSN
	if opts.FrontendURL != "" {
		cfg.FrontendURL = opts.FrontendURL
	}
	secret, err := randomHex(32)
	if err != nil {
		return "", err
	}
	salt, err := randomHex(16)
	if err != nil {
		return "", err
	}
	cfg.Auth.Secret = secret
	cfg.Auth.APIKeySalt = salt

	body, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}

	path := filepath.Join(opts.Root, config.DefaultPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := writeFile(path, header(opts)+string(body), opts.Force); err != nil {
		return "", err
	}
	return path, nil
}

func applyDefaults(opts *InitOptions) {
	if strings.TrimSpace(opts.Root) == "" {
		opts.Root = "."
	}
	if strings.TrimSpace(opts.Environment) == "" {
		opts.Environment = "dev"
	}
	if strings.TrimSpace(opts.StoreDriver) == "" {
		opts.StoreDriver = "sqlite"
	}
}

// Validate checks the options without touching the filesystem.
func Validate(opts InitOptions) error {
	applyDefaults(&opts)
	switch opts.StoreDriver {
	case "memory", "sqlite":
	case "postgres":
		if strings.TrimSpace(opts.PostgresDSN) == "" {
			return fmt.Errorf("postgres driver needs a dsn")
		}
	default:
		return fmt.Errorf("unknown store driver %q", opts.StoreDriver)
	}
	return nil
}

func writeFile(path, contents string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file already exists: %s", path)
		}
	}
	// secrets inside
	return os.WriteFile(path, []byte(contents), 0o600)
}

func header(opts InitOptions) string {
	return fmt.Sprintf(`# socialcreditd configuration (%s)
# Any key can be overridden with SOCIALCREDIT_* environment variables,
# e.g. SOCIALCREDIT_DISCORD_BOT_TOKEN.
`, opts.Environment)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
