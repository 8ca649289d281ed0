package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// mockSecrets is a test double for the secrets store.
type mockSecrets map[string]string

func (m mockSecrets) Get(key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func writeTempConfig(t *testing.T, content string) *fileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return newFileBackend(path)
}

// clearEnv blanks every variable the loader consults so the host
// environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
		for _, a := range s.aliases {
			t.Setenv(a, "")
		}
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(writeTempConfig(t, `{}`), mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.LLM.Provider != ProviderOpenAI {
		t.Errorf("LLM.Provider = %q, want %q", cfg.LLM.Provider, ProviderOpenAI)
	}
	if cfg.LLM.BaseURL != "https://api.groq.com/openai/v1" {
		t.Errorf("LLM.BaseURL = %q", cfg.LLM.BaseURL)
	}
	if cfg.Mail.BaseURL != "https://api.resend.com" {
		t.Errorf("Mail.BaseURL = %q", cfg.Mail.BaseURL)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Extraction.AutoParse {
		t.Error("Extraction.AutoParse should default to false")
	}
}

func TestFileValues(t *testing.T) {
	clearEnv(t)

	b := writeTempConfig(t, `{
		"server.port": 5000,
		"storage.data_dir": "/tmp/rfpd-test",
		"llm.provider": "Gemini",
		"llm.model": "gemini-2.0-flash",
		"mail.from": "Buyer <buyer@example.test>",
		"extraction.auto_parse": "true",
		"events.nats_url": "nats://localhost:4222",
		"llm.api_key": "ignored-in-file"
	}`)
	cfg, err := loadWith(b, mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Storage.DataDir != "/tmp/rfpd-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.LLM.Provider != ProviderGemini {
		t.Errorf("LLM.Provider = %q, want normalised %q", cfg.LLM.Provider, ProviderGemini)
	}
	if cfg.LLM.Model != "gemini-2.0-flash" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.Mail.From != "Buyer <buyer@example.test>" {
		t.Errorf("Mail.From = %q", cfg.Mail.From)
	}
	if !cfg.Extraction.AutoParse {
		t.Error("Extraction.AutoParse = false, want true")
	}
	if cfg.Events.NATSURL != "nats://localhost:4222" {
		t.Errorf("Events.NATSURL = %q", cfg.Events.NATSURL)
	}
	if cfg.LLM.APIKey != "" {
		t.Errorf("secret read from config file: LLM.APIKey = %q", cfg.LLM.APIKey)
	}
}

func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("RFPD_SERVER_PORT", "8080")
	t.Setenv("RFPD_LLM_API_KEY", "env-key")

	cfg, err := loadWith(writeTempConfig(t, `{"server.port": 5000}`), mockSecrets{"llm.api_key": "secret-key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("LLM.APIKey = %q, want %q", cfg.LLM.APIKey, "env-key")
	}
}

func TestEnvAliases(t *testing.T) {
	clearEnv(t)
	t.Setenv("GROQ_API_KEY", "groq-key")
	t.Setenv("RESEND_API_KEY", "resend-key")
	t.Setenv("RESEND_WEBHOOK_SECRET", "whsec_abc")
	t.Setenv("RESEND_REPLY_TO", "buyer@example.test")

	cfg, err := loadWith(writeTempConfig(t, `{}`), mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LLM.APIKey != "groq-key" {
		t.Errorf("LLM.APIKey = %q", cfg.LLM.APIKey)
	}
	if cfg.Mail.APIKey != "resend-key" {
		t.Errorf("Mail.APIKey = %q", cfg.Mail.APIKey)
	}
	if cfg.Mail.WebhookSecret != "whsec_abc" {
		t.Errorf("Mail.WebhookSecret = %q", cfg.Mail.WebhookSecret)
	}
	if cfg.Mail.ReplyTo != "buyer@example.test" {
		t.Errorf("Mail.ReplyTo = %q", cfg.Mail.ReplyTo)
	}

	// The prefixed variable wins over the alias.
	t.Setenv("RFPD_LLM_API_KEY", "primary")
	cfg, _ = loadWith(writeTempConfig(t, `{}`), mockSecrets{})
	if cfg.LLM.APIKey != "primary" {
		t.Errorf("LLM.APIKey = %q, want primary", cfg.LLM.APIKey)
	}
}

func TestSecretsFallback(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(writeTempConfig(t, `{}`), mockSecrets{"mail.api_key": "stored-key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Mail.APIKey != "stored-key" {
		t.Errorf("Mail.APIKey = %q, want %q", cfg.Mail.APIKey, "stored-key")
	}
}

func TestInvalidEnvValueKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("RFPD_SERVER_PORT", "not-a-number")
	t.Setenv("RFPD_EXTRACTION_AUTO_PARSE", "maybe")

	cfg, err := loadWith(writeTempConfig(t, `{}`), mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want default 3000", cfg.Server.Port)
	}
	if cfg.Extraction.AutoParse {
		t.Error("Extraction.AutoParse = true, want default false")
	}
}

func TestValidateMissingRequired(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(writeTempConfig(t, `{}`), mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = validate(cfg)
	if err == nil {
		t.Fatal("expected error for missing API keys, got nil")
	}
	for _, want := range []string{"missing required config", "GROQ_API_KEY", "RESEND_API_KEY"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error = %q, want it to contain %q", err.Error(), want)
		}
	}

	cfg.LLM.APIKey = "k"
	cfg.Mail.APIKey = "k"
	if err := validate(cfg); err != nil {
		t.Errorf("validate with keys set: %v", err)
	}

	cfg.LLM.Provider = "anthropic"
	if err := validate(cfg); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestSetKey(t *testing.T) {
	dir := t.TempDir()
	b := newFileBackend(filepath.Join(dir, "config.json"))
	secrets := newSecretsFile(filepath.Join(dir, "secrets.json"))

	if err := setKeyWith(b, secrets, "server.port", "4100"); err != nil {
		t.Fatalf("setKeyWith server.port: %v", err)
	}
	if err := setKeyWith(b, secrets, "extraction.auto_parse", "true"); err != nil {
		t.Fatalf("setKeyWith extraction.auto_parse: %v", err)
	}
	if err := setKeyWith(b, secrets, "mail.api_key", "re_123"); err != nil {
		t.Fatalf("setKeyWith mail.api_key: %v", err)
	}
	if err := setKeyWith(b, secrets, "server.port", "abc"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if err := setKeyWith(b, secrets, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}

	reloaded := newFileBackend(filepath.Join(dir, "config.json"))
	if port, ok, _ := reloaded.GetInt("server.port"); !ok || port != 4100 {
		t.Errorf("server.port = %d (ok=%v), want 4100", port, ok)
	}
	if _, ok, _ := reloaded.GetString("mail.api_key"); ok {
		t.Error("secret written to config file")
	}
	if v, err := secrets.Get("mail.api_key"); err != nil || v != "re_123" {
		t.Errorf("secrets mail.api_key = %q, %v", v, err)
	}
}

func TestShowAllMasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.LLM.APIKey = "gsk_abcdefghijkl"

	for _, info := range ShowAll(cfg) {
		if info.Key == "llm.api_key" {
			if info.Value != "gsk_****" {
				t.Errorf("llm.api_key shown as %q, want masked", info.Value)
			}
			return
		}
	}
	t.Error("llm.api_key missing from ShowAll")
}
