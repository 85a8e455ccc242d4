// Package config provides configuration types and loading for wagateway.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Config is the root configuration struct.
// Top-level groups: Gateway, WhatsApp, Reconnect, Kafka, Timeline, Log.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway" toml:"gateway"`
	WhatsApp  WhatsAppConfig  `json:"whatsapp" toml:"whatsapp"`
	Reconnect ReconnectConfig `json:"reconnect" toml:"reconnect"`
	Kafka     KafkaConfig     `json:"kafka" toml:"kafka"`
	Timeline  TimelineConfig  `json:"timeline" toml:"timeline"`
	Log       LogConfig       `json:"log" toml:"log"`
}

// ---------------------------------------------------------------------------
// Gateway – HTTP server networking
// ---------------------------------------------------------------------------

// GatewayConfig contains HTTP API settings.
type GatewayConfig struct {
	Host            string        `json:"host" toml:"host" envconfig:"HOST"`
	Port            int           `json:"port" toml:"port" envconfig:"PORT"`
	AuthToken       string        `json:"authToken" toml:"authToken" envconfig:"API_TOKEN"`
	AdminSessionTTL time.Duration `json:"adminSessionTtl" toml:"adminSessionTtl" envconfig:"ADMIN_SESSION_TTL"`
	SendTimeout     time.Duration `json:"sendTimeout" toml:"sendTimeout" envconfig:"SEND_TIMEOUT"`
}

// Addr returns the listen address.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// ---------------------------------------------------------------------------
// WhatsApp – messaging adapter
// ---------------------------------------------------------------------------

// WhatsAppConfig configures the WhatsApp adapter.
type WhatsAppConfig struct {
	DataDir string `json:"dataDir" toml:"dataDir" envconfig:"WHATSAPP_DATA_DIR"`
	QRFile  string `json:"qrFile" toml:"qrFile" envconfig:"WHATSAPP_QR_FILE"`
	PrintQR bool   `json:"printQr" toml:"printQr" envconfig:"WHATSAPP_PRINT_QR"`
}

// SessionDBPath is the adapter's credential store. Its contents are opaque
// to the gateway.
func (w WhatsAppConfig) SessionDBPath() string {
	return filepath.Join(w.DataDir, "whatsapp-session.db")
}

// TimelineDBPath is the audit log database.
func (w WhatsAppConfig) TimelineDBPath() string {
	return filepath.Join(w.DataDir, "timeline.db")
}

// ---------------------------------------------------------------------------
// Reconnect – re-initialization after disconnects
// ---------------------------------------------------------------------------

// ReconnectConfig bounds re-initialization attempts after a disconnect.
type ReconnectConfig struct {
	Initial     time.Duration `json:"initial" toml:"initial" envconfig:"RECONNECT_INITIAL"`
	Max         time.Duration `json:"max" toml:"max" envconfig:"RECONNECT_MAX"`
	MaxAttempts int           `json:"maxAttempts" toml:"maxAttempts" envconfig:"RECONNECT_MAX_ATTEMPTS"`
}

// ---------------------------------------------------------------------------
// Kafka – optional event sink
// ---------------------------------------------------------------------------

// KafkaConfig configures the optional event sink. Empty brokers disables it.
type KafkaConfig struct {
	Brokers string `json:"brokers" toml:"brokers" envconfig:"KAFKA_BROKERS"`
	Topic   string `json:"topic" toml:"topic" envconfig:"KAFKA_TOPIC"`
}

// Enabled reports whether a broker list is configured.
func (k KafkaConfig) Enabled() bool {
	return strings.TrimSpace(k.Brokers) != ""
}

// BrokerList splits the comma separated broker list.
func (k KafkaConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Timeline – audit log retention
// ---------------------------------------------------------------------------

// TimelineConfig bounds how long audit events are kept. Zero retention keeps
// everything.
type TimelineConfig struct {
	Retention     time.Duration `json:"retention" toml:"retention" envconfig:"TIMELINE_RETENTION"`
	PruneInterval time.Duration `json:"pruneInterval" toml:"pruneInterval" envconfig:"TIMELINE_PRUNE_INTERVAL"`
}

// LogConfig selects log level and encoding.
type LogConfig struct {
	Level  string `json:"level" toml:"level" envconfig:"LOG_LEVEL"`
	Format string `json:"format" toml:"format" envconfig:"LOG_FORMAT"` // "console" or "json"
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			AdminSessionTTL: 12 * time.Hour,
			SendTimeout:     30 * time.Second,
		},
		WhatsApp: WhatsAppConfig{
			DataDir: "~/.wagateway",
			PrintQR: true,
		},
		Reconnect: ReconnectConfig{
			Initial:     2 * time.Second,
			Max:         2 * time.Minute,
			MaxAttempts: 10,
		},
		Kafka: KafkaConfig{
			Topic: "wagateway.events",
		},
		Timeline: TimelineConfig{
			Retention:     30 * 24 * time.Hour,
			PruneInterval: time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks settings the gateway cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Gateway.AuthToken) == "" {
		return fmt.Errorf("API_TOKEN is required")
	}
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Gateway.Port)
	}
	if c.Reconnect.Initial <= 0 || c.Reconnect.Max < c.Reconnect.Initial {
		return fmt.Errorf("invalid reconnect delays initial=%s max=%s", c.Reconnect.Initial, c.Reconnect.Max)
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("invalid reconnect maxAttempts %d", c.Reconnect.MaxAttempts)
	}
	if c.Timeline.Retention < 0 || (c.Timeline.Retention > 0 && c.Timeline.PruneInterval <= 0) {
		return fmt.Errorf("invalid timeline retention=%s pruneInterval=%s", c.Timeline.Retention, c.Timeline.PruneInterval)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	return nil
}
