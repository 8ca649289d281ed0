package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	aliases []string // fallback env vars, consulted when env is unset
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "RFPD_SERVER_PORT", aliases: []string{"PORT"},
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "RFPD_SERVER_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "RFPD_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "RFPD_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "llm.provider", typ: kString, env: "RFPD_LLM_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.LLM.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Provider },
	},
	{
		key: "llm.base_url", typ: kString, env: "RFPD_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.api_key", typ: kString, env: "RFPD_LLM_API_KEY", aliases: []string{"GROQ_API_KEY", "GEMINI_API_KEY"},
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "llm.model", typ: kString, env: "RFPD_LLM_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Model },
	},
	{
		key: "mail.api_key", typ: kString, env: "RFPD_MAIL_API_KEY", aliases: []string{"RESEND_API_KEY"},
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Mail.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Mail.APIKey },
	},
	{
		key: "mail.base_url", typ: kString, env: "RFPD_MAIL_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Mail.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Mail.BaseURL },
	},
	{
		key: "mail.from", typ: kString, env: "RFPD_MAIL_FROM", aliases: []string{"RESEND_FROM_EMAIL"},
		apply:   func(cfg *Config, v any) { cfg.Mail.From = v.(string) },
		extract: func(cfg Config) any { return cfg.Mail.From },
	},
	{
		key: "mail.reply_to", typ: kString, env: "RFPD_MAIL_REPLY_TO", aliases: []string{"RESEND_REPLY_TO"},
		apply:   func(cfg *Config, v any) { cfg.Mail.ReplyTo = v.(string) },
		extract: func(cfg Config) any { return cfg.Mail.ReplyTo },
	},
	{
		key: "mail.webhook_secret", typ: kString, env: "RFPD_MAIL_WEBHOOK_SECRET", aliases: []string{"RESEND_WEBHOOK_SECRET"},
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Mail.WebhookSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Mail.WebhookSecret },
	},
	{
		key: "extraction.auto_parse", typ: kBool, env: "RFPD_EXTRACTION_AUTO_PARSE",
		apply:   func(cfg *Config, v any) { cfg.Extraction.AutoParse = v.(bool) },
		extract: func(cfg Config) any { return cfg.Extraction.AutoParse },
	},
	{
		key: "events.nats_url", typ: kString, env: "RFPD_EVENTS_NATS_URL",
		apply:   func(cfg *Config, v any) { cfg.Events.NATSURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Events.NATSURL },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applySecrets(cfg *Config, secrets secretSource) {
	if secrets == nil {
		return
	}
	for _, s := range specs {
		if !s.secret {
			continue
		}
		if v, err := secrets.Get(s.key); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}

// lookupEnv returns the first non-empty value among the key's env var and
// its aliases, and the name it came from.
func (s keySpec) lookupEnv() (string, string) {
	for _, name := range append([]string{s.env}, s.aliases...) {
		if name == "" {
			continue
		}
		if raw := os.Getenv(name); raw != "" {
			return raw, name
		}
	}
	return "", ""
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw, name := s.lookupEnv()
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		}
	}
}
