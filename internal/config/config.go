package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingAPIKey is returned by Validate when neither an OpenAI key nor an
// Azure endpoint/key pair is configured.
var ErrMissingAPIKey = errors.New("config: realtime API key is required")

const (
	defaultInstructions = "You are a helpful assistant. Respond concisely and at most one sentence. " +
		"You have access to a variety of tools to analyze, translate and review text and code."
	defaultAzureAPIVersion = "2024-10-01-preview"
)

type Config struct {
	Server struct {
		Port      string
		GRPCPort  string
		LogLevel  string
		LogFormat string
	}
	Realtime struct {
		APIKey          string
		AzureEndpoint   string
		AzureAPIKey     string
		AzureAPIVersion string
		Model           string
		Voice           string
		Instructions    string
		Temperature     float64
		ServerVAD       bool
		AutoReconnect   bool
	}
	Conversation struct {
		SilenceTimeout time.Duration
		Greeting       string
	}
	Tools struct {
		MaxConcurrent int
		Timeout       time.Duration
	}
	Device struct {
		TokenSecret   string
		TokenSkewSecs int
	}
}

func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "console")

	v.SetDefault("realtime.azure_api_version", defaultAzureAPIVersion)
	v.SetDefault("realtime.model", "gpt-4o-realtime-preview")
	v.SetDefault("realtime.voice", "ballad")
	v.SetDefault("realtime.instructions", defaultInstructions)
	v.SetDefault("realtime.temperature", 0.8)
	v.SetDefault("realtime.server_vad", false)
	v.SetDefault("realtime.auto_reconnect", true)

	v.SetDefault("conversation.silence_timeout", 10*time.Second)
	v.SetDefault("conversation.greeting", "Hello")

	v.SetDefault("tools.max_concurrent", 1)
	v.SetDefault("tools.timeout", 30*time.Second)

	v.SetDefault("device.token_skew_secs", 30)

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.grpc_port", "GRPC_PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")
	v.BindEnv("server.log_format", "LOG_FORMAT")

	v.BindEnv("realtime.api_key", "OPENAI_API_KEY")
	v.BindEnv("realtime.azure_endpoint", "AZURE_OPENAI_ENDPOINT")
	v.BindEnv("realtime.azure_api_key", "AZURE_OPENAI_API_KEY")
	v.BindEnv("realtime.azure_api_version", "AZURE_OPENAI_API_VERSION")
	v.BindEnv("realtime.model", "REALTIME_MODEL")
	v.BindEnv("realtime.voice", "REALTIME_VOICE")
	v.BindEnv("realtime.instructions", "REALTIME_INSTRUCTIONS")
	v.BindEnv("realtime.temperature", "REALTIME_TEMPERATURE")
	v.BindEnv("realtime.server_vad", "REALTIME_SERVER_VAD")
	v.BindEnv("realtime.auto_reconnect", "REALTIME_AUTO_RECONNECT")

	v.BindEnv("conversation.silence_timeout", "SILENCE_TIMEOUT")
	v.BindEnv("conversation.greeting", "GREETING_TEXT")

	v.BindEnv("tools.max_concurrent", "TOOLS_MAX_CONCURRENT")
	v.BindEnv("tools.timeout", "TOOLS_TIMEOUT")

	v.BindEnv("device.token_secret", "DEVICE_TOKEN_SECRET")
	v.BindEnv("device.token_skew_secs", "DEVICE_TOKEN_SKEW_SECS")

	var c Config
	c.Server.Port = toString(v.Get("server.port"))
	c.Server.GRPCPort = toString(v.Get("server.grpc_port"))
	c.Server.LogLevel = v.GetString("server.log_level")
	c.Server.LogFormat = v.GetString("server.log_format")

	c.Realtime.APIKey = v.GetString("realtime.api_key")
	c.Realtime.AzureEndpoint = v.GetString("realtime.azure_endpoint")
	c.Realtime.AzureAPIKey = v.GetString("realtime.azure_api_key")
	c.Realtime.AzureAPIVersion = v.GetString("realtime.azure_api_version")
	c.Realtime.Model = v.GetString("realtime.model")
	c.Realtime.Voice = v.GetString("realtime.voice")
	c.Realtime.Instructions = v.GetString("realtime.instructions")
	c.Realtime.Temperature = v.GetFloat64("realtime.temperature")
	c.Realtime.ServerVAD = v.GetBool("realtime.server_vad")
	c.Realtime.AutoReconnect = v.GetBool("realtime.auto_reconnect")

	c.Conversation.SilenceTimeout = v.GetDuration("conversation.silence_timeout")
	c.Conversation.Greeting = v.GetString("conversation.greeting")

	c.Tools.MaxConcurrent = v.GetInt("tools.max_concurrent")
	c.Tools.Timeout = v.GetDuration("tools.timeout")

	c.Device.TokenSecret = v.GetString("device.token_secret")
	c.Device.TokenSkewSecs = v.GetInt("device.token_skew_secs")

	return c
}

// UsesAzure reports whether the realtime session should dial an Azure
// OpenAI deployment instead of api.openai.com.
func (c Config) UsesAzure() bool { return c.Realtime.AzureEndpoint != "" }

// RealtimeKey returns the credential matching the selected endpoint.
func (c Config) RealtimeKey() string {
	if c.UsesAzure() {
		return c.Realtime.AzureAPIKey
	}
	return c.Realtime.APIKey
}

// Validate checks the fields the assistant cannot start without.
func (c Config) Validate() error {
	if c.RealtimeKey() == "" {
		if c.UsesAzure() {
			return fmt.Errorf("%w: set AZURE_OPENAI_API_KEY for endpoint %s", ErrMissingAPIKey, c.Realtime.AzureEndpoint)
		}
		return fmt.Errorf("%w: set OPENAI_API_KEY", ErrMissingAPIKey)
	}
	if c.UsesAzure() && c.Realtime.AzureAPIVersion == "" {
		return errors.New("config: AZURE_OPENAI_API_VERSION is required with an Azure endpoint")
	}
	if c.Conversation.SilenceTimeout <= 0 {
		return fmt.Errorf("config: silence timeout must be positive, got %s", c.Conversation.SilenceTimeout)
	}
	return nil
}

func toString(v any) string { return fmt.Sprint(v) }
