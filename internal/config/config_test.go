package config

import (
	"errors"
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "LOG_LEVEL", "OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT",
		"AZURE_OPENAI_API_KEY", "AZURE_OPENAI_API_VERSION", "SILENCE_TIMEOUT",
		"REALTIME_SERVER_VAD", "GREETING_TEXT", "TOOLS_MAX_CONCURRENT",
	} {
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	c := Load()

	if c.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", c.Server.Port)
	}
	if c.Server.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %q", c.Server.LogLevel)
	}
	if c.Conversation.SilenceTimeout != 10*time.Second {
		t.Fatalf("expected 10s silence timeout, got %s", c.Conversation.SilenceTimeout)
	}
	if c.Conversation.Greeting != "Hello" {
		t.Fatalf("expected default greeting Hello, got %q", c.Conversation.Greeting)
	}
	if c.Realtime.ServerVAD {
		t.Fatal("local turn detection should be the default")
	}
	if !c.Realtime.AutoReconnect {
		t.Fatal("auto reconnect should default on")
	}
	if c.Tools.MaxConcurrent != 1 {
		t.Fatalf("expected single-flight tools by default, got %d", c.Tools.MaxConcurrent)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("SILENCE_TIMEOUT", "3s")
	t.Setenv("REALTIME_SERVER_VAD", "true")
	t.Setenv("TOOLS_MAX_CONCURRENT", "4")

	c := Load()

	if c.Conversation.SilenceTimeout != 3*time.Second {
		t.Fatalf("expected 3s, got %s", c.Conversation.SilenceTimeout)
	}
	if !c.Realtime.ServerVAD {
		t.Fatal("expected server VAD from env")
	}
	if c.Tools.MaxConcurrent != 4 {
		t.Fatalf("expected 4, got %d", c.Tools.MaxConcurrent)
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)

	c := Load()
	if err := c.Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")
	c = Load()
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.UsesAzure() {
		t.Fatal("should not use Azure without an endpoint")
	}

	t.Setenv("AZURE_OPENAI_ENDPOINT", "wss://example.openai.azure.com/openai/realtime")
	c = Load()
	if !c.UsesAzure() {
		t.Fatal("expected Azure endpoint to be selected")
	}
	if err := c.Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("azure without key: expected ErrMissingAPIKey, got %v", err)
	}
	t.Setenv("AZURE_OPENAI_API_KEY", "az-key")
	c = Load()
	if c.RealtimeKey() != "az-key" {
		t.Fatalf("expected azure key, got %q", c.RealtimeKey())
	}
	if c.Realtime.AzureAPIVersion != defaultAzureAPIVersion {
		t.Fatalf("expected default api version, got %q", c.Realtime.AzureAPIVersion)
	}
}
