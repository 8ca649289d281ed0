package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Log        LogConfig
	LLM        LLMConfig
	Mail       MailConfig
	Extraction ExtractionConfig
	Events     EventsConfig
}

type ServerConfig struct {
	Port int
	// APIToken, when set, is required as a bearer token on /api/* (the
	// inbound webhook excepted).
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type LLMConfig struct {
	Provider string // "openai" (any OpenAI-compatible endpoint) or "gemini"
	BaseURL  string
	APIKey   string
	Model    string // empty selects the provider default
}

type MailConfig struct {
	APIKey        string
	BaseURL       string
	From          string
	ReplyTo       string
	WebhookSecret string
}

type ExtractionConfig struct {
	// AutoParse enqueues proposal extraction for every stored inbound reply.
	AutoParse bool
}

type EventsConfig struct {
	NATSURL string
}

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 3000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		LLM: LLMConfig{
			Provider: ProviderOpenAI,
			BaseURL:  "https://api.groq.com/openai/v1",
		},
		Mail: MailConfig{
			BaseURL: "https://api.resend.com",
			From:    "RFP System <rfp@example.com>",
		},
	}
}

// Load reads configuration and fails when a key the server cannot run
// without is missing.
//
// Sources, lowest precedence first: built-in defaults, the JSON file at
// $XDG_CONFIG_HOME/rfpd/config.json, the secrets file at
// $XDG_DATA_HOME/rfpd/secrets.json (secret keys only), then RFPD_* and the
// well-known provider environment variables. A .env file in the working
// directory is loaded into the environment first; it never overrides
// variables that are already set.
func Load() (Config, error) {
	cfg, err := LoadUnchecked()
	if err != nil {
		return Config{}, err
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadUnchecked is Load without required-key validation. CLI commands that
// only talk to a running server use it.
func LoadUnchecked() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[WARN] could not load .env: %v\n", err)
	}
	return loadWith(newPlatformBackend(), newSecretsFile(secretsFilePath()))
}

// secretSource abstracts the secrets store for testing.
type secretSource interface {
	Get(key string) (string, error)
}

func loadWith(b ConfigBackend, secrets secretSource) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applySecrets(&cfg, secrets)
	applyEnvOverrides(&cfg)

	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	return cfg, nil
}

func validate(cfg Config) error {
	var missing []string
	if cfg.LLM.APIKey == "" {
		missing = append(missing, "LLM API key (RFPD_LLM_API_KEY or GROQ_API_KEY)")
	}
	if cfg.Mail.APIKey == "" {
		missing = append(missing, "mail API key (RFPD_MAIL_API_KEY or RESEND_API_KEY)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	switch cfg.LLM.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("unknown llm.provider %q (want %q or %q)", cfg.LLM.Provider, ProviderOpenAI, ProviderGemini)
	}
	if cfg.Mail.WebhookSecret == "" {
		fmt.Fprintln(os.Stderr, "[WARN] mail.webhook_secret is not set; inbound webhook signatures will not be verified.")
	}
	return nil
}
