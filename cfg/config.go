package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog/log"
)

// SerializationFormat selects how structured values are serialized by the encoder
type SerializationFormat string

const (
	SerializationJSON   SerializationFormat = "json"
	SerializationNative SerializationFormat = "native" // msgpack object graph
)

// CompressionMethod selects the compression applied to encoded values
type CompressionMethod string

const (
	CompressionNone   CompressionMethod = "none"
	CompressionZlib   CompressionMethod = "zlib"
	CompressionFastLZ CompressionMethod = "fastlz"
)

// CodecConfiguration controls the default value transcoder
type CodecConfiguration struct {
	SerializationFormat  SerializationFormat `toml:"serialization_format"`
	Compression          CompressionMethod   `toml:"compression"`
	CompressionThreshold int                 `toml:"compression_threshold"` // Bytes; smaller bodies are never compressed
	CompressionMinRatio  float64             `toml:"compression_min_ratio"` // raw > compressed*ratio to keep compressed form
	DecodeJSONAsMaps     bool                `toml:"decode_json_as_maps"`
}

// PoolConfiguration controls the shared connection cache
type PoolConfiguration struct {
	MaxIdleSeconds       int `toml:"max_idle_seconds"`       // Idle time before a released connection is destroyed
	MaxIdleConnections   int `toml:"max_idle_connections"`   // 0 = unlimited
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"` // 0 = sweep only when asked
}

// TransportConfiguration controls how new connections are established
type TransportConfiguration struct {
	ConnectTimeoutMS   int    `toml:"connect_timeout_ms"`
	BootstrapTimeoutMS int    `toml:"bootstrap_timeout_ms"`
	OperationTimeoutMS int    `toml:"operation_timeout_ms"`
	ClientID           string `toml:"client_id"` // Sent in HELLO; auto-generated when empty
	TLSSkipVerify      bool   `toml:"tls_skip_verify"`
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// AdminConfiguration for the HTTP admin API
type AdminConfiguration struct {
	Enabled     bool   `toml:"enabled"`
	BindAddress string `toml:"bind_address"`
	Port        int    `toml:"port"`
	Secret      string `toml:"secret"` // Empty disables authentication
}

// Configuration is the main configuration structure
type Configuration struct {
	Codec      CodecConfiguration      `toml:"codec"`
	Pool       PoolConfiguration       `toml:"pool"`
	Transport  TransportConfiguration  `toml:"transport"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
	Admin      AdminConfiguration      `toml:"admin"`
}

// Command line flags
var (
	ConfigPathFlag    = flag.String("config", "pcbc.toml", "Path to configuration file")
	CompressionFlag   = flag.String("compression", "", "Compression method: none, zlib, fastlz (overrides config)")
	SerializationFlag = flag.String("serialization", "", "Serialization format: json, native (overrides config)")
	MaxIdleFlag       = flag.Int("max-idle", -1, "Seconds an unused connection stays cached (overrides config)")
	AdminPortFlag     = flag.Int("admin-port", 0, "Admin HTTP port (overrides config)")
)

// Default configuration
var Config = Default()

// Default returns a fresh copy of the built-in defaults
func Default() *Configuration {
	return &Configuration{
		Codec: CodecConfiguration{
			SerializationFormat:  SerializationJSON,
			Compression:          CompressionNone,
			CompressionThreshold: 0,
			CompressionMinRatio:  0,
			DecodeJSONAsMaps:     false,
		},

		Pool: PoolConfiguration{
			MaxIdleSeconds:       60,
			MaxIdleConnections:   0,
			SweepIntervalSeconds: 0,
		},

		Transport: TransportConfiguration{
			ConnectTimeoutMS:   2000,
			BootstrapTimeoutMS: 5000,
			OperationTimeoutMS: 2500,
		},

		Logging: LoggingConfiguration{
			Verbose: false,
			Format:  "console",
		},

		Prometheus: PrometheusConfiguration{
			Enabled: true,
		},

		Admin: AdminConfiguration{
			Enabled:     true,
			BindAddress: "127.0.0.1",
			Port:        9091,
		},
	}
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	// Load from file if it exists
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Debug().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply CLI overrides
	if *CompressionFlag != "" {
		Config.Codec.Compression = CompressionMethod(strings.ToLower(*CompressionFlag))
	}
	if *SerializationFlag != "" {
		Config.Codec.SerializationFormat = SerializationFormat(strings.ToLower(*SerializationFlag))
	}
	if *MaxIdleFlag >= 0 {
		Config.Pool.MaxIdleSeconds = *MaxIdleFlag
	}
	if *AdminPortFlag != 0 {
		Config.Admin.Port = *AdminPortFlag
	}

	// Auto-generate client ID if not set
	if Config.Transport.ClientID == "" {
		id, err := generateClientID()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to derive client ID from machine ID, using pid")
			id = "pid-" + strconv.Itoa(os.Getpid())
		}
		Config.Transport.ClientID = id
		log.Debug().Str("client_id", id).Msg("Auto-generated client ID")
	}

	return nil
}

// generateClientID creates a stable client ID based on machine ID
func generateClientID() (string, error) {
	id, err := machineid.ProtectedID("pcbc")
	if err != nil {
		return "", err
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// Validate checks configuration for errors
func Validate() error {
	switch Config.Codec.SerializationFormat {
	case SerializationJSON, SerializationNative:
	default:
		return fmt.Errorf("invalid serialization format: %q", Config.Codec.SerializationFormat)
	}

	switch Config.Codec.Compression {
	case CompressionNone, CompressionZlib, CompressionFastLZ:
	default:
		return fmt.Errorf("invalid compression method: %q", Config.Codec.Compression)
	}

	if Config.Codec.CompressionThreshold < 0 {
		return fmt.Errorf("compression threshold must be >= 0")
	}

	if Config.Codec.CompressionMinRatio < 0 {
		return fmt.Errorf("compression min ratio must be >= 0")
	}

	if Config.Pool.MaxIdleSeconds < 0 {
		return fmt.Errorf("pool max idle seconds must be >= 0")
	}

	if Config.Pool.MaxIdleConnections < 0 {
		return fmt.Errorf("pool max idle connections must be >= 0")
	}

	if Config.Pool.SweepIntervalSeconds < 0 {
		return fmt.Errorf("pool sweep interval must be >= 0")
	}

	if Config.Transport.ConnectTimeoutMS < 1 {
		return fmt.Errorf("transport connect timeout must be >= 1ms")
	}

	if Config.Transport.BootstrapTimeoutMS < 1 {
		return fmt.Errorf("transport bootstrap timeout must be >= 1ms")
	}

	if Config.Transport.OperationTimeoutMS < 1 {
		return fmt.Errorf("transport operation timeout must be >= 1ms")
	}

	if Config.Admin.Port < 1 || Config.Admin.Port > 65535 {
		return fmt.Errorf("invalid admin port: %d", Config.Admin.Port)
	}

	if Config.Logging.Format != "console" && Config.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %q", Config.Logging.Format)
	}

	return nil
}
