package dairy

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config carries the tunables shared by the client, cache, session and
// orchestrator. LoadConfig reads them from DAIRY_* environment variables;
// DefaultConfig returns the built-in defaults.
type Config struct {
	// APIURL is the base URL of the REST API, including the /api prefix.
	APIURL string `envconfig:"API_URL" default:"http://localhost:6969/api"`

	// StreamURL is the WebSocket endpoint for suggestion streaming.
	StreamURL string `envconfig:"STREAM_URL" default:"ws://localhost:6969/ws/ai-chat"`

	// HTTPTimeout bounds a single REST request end to end.
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`

	// SaveDebounce is the trailing quiet period before an edited note is
	// written to the backend.
	SaveDebounce time.Duration `envconfig:"SAVE_DEBOUNCE" default:"1s"`

	// ReconnectBase and ReconnectCap bound the stream reconnect schedule:
	// delay = min(base * 2^attempt, cap).
	ReconnectBase time.Duration `envconfig:"RECONNECT_BASE" default:"1s"`
	ReconnectCap  time.Duration `envconfig:"RECONNECT_CAP" default:"30s"`

	// MaxReconnects is the number of reconnect attempts before the
	// session gives up and reports the connection as lost.
	MaxReconnects int `envconfig:"MAX_RECONNECTS" default:"5"`

	// MinSuggestionLen is the minimum trimmed note length eligible for a
	// suggestion request.
	MinSuggestionLen int `envconfig:"MIN_SUGGESTION_LEN" default:"15"`

	// TemplateID selects the prompt template for suggestion requests.
	TemplateID string `envconfig:"TEMPLATE_ID" default:"default"`
}

// LoadConfig reads configuration from the environment (prefix DAIRY),
// falling back to defaults for unset variables.
func LoadConfig() (Config, error) {
	var c Config
	if err := envconfig.Process("dairy", &c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// DefaultConfig returns the built-in defaults without consulting the
// environment.
func DefaultConfig() Config {
	return Config{
		APIURL:           "http://localhost:6969/api",
		StreamURL:        "ws://localhost:6969/ws/ai-chat",
		HTTPTimeout:      10 * time.Second,
		SaveDebounce:     time.Second,
		ReconnectBase:    time.Second,
		ReconnectCap:     30 * time.Second,
		MaxReconnects:    5,
		MinSuggestionLen: 15,
		TemplateID:       "default",
	}
}
