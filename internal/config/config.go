package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/solana-sos/emergency/domain"
	"github.com/solana-sos/emergency/domain/entities"
)

// Audio device backends
const (
	AudioDeviceLog       = "log"
	AudioDeviceWebsocket = "websocket"
)

const (
	defaultPort              = "8080"
	defaultMongoDatabase     = "emergency"
	defaultNatsSubject       = "emergency.events"
	defaultDispatcherTimeout = 10 * time.Second
	defaultRetention         = 30 * 24 * time.Hour
)

// Config is the process configuration
type Config struct {
	Port     string
	LogLevel zapcore.Level

	JWTSecret    string
	DeviceSecret string

	MongoURI      string // empty selects the in-memory call record store
	MongoDatabase string

	NatsURL     string // empty disables broker publishing
	NatsSubject string

	DispatcherURL     string // empty selects the logging transport
	DispatcherAPIKey  string
	DispatcherTimeout time.Duration

	AudioDevice     string
	AudioConfigFile string
	Audio           entities.AudioConfig

	CallRecordRetention time.Duration
}

// audioFile is the layout of the optional audio configuration file
type audioFile struct {
	Audio entities.AudioConfig `yaml:"audio"`
}

// Load reads the configuration from an optional .env file and the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: failed to load .env: %w", domain.ErrInvalidConfig, err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", defaultPort),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		DeviceSecret:      os.Getenv("DEVICE_SECRET"),
		MongoURI:          os.Getenv("MONGODB_URI"),
		MongoDatabase:     getEnv("MONGODB_DATABASE", defaultMongoDatabase),
		NatsURL:           os.Getenv("NATS_URL"),
		NatsSubject:       getEnv("NATS_SUBJECT", defaultNatsSubject),
		DispatcherURL:     os.Getenv("DISPATCHER_URL"),
		DispatcherAPIKey:  os.Getenv("DISPATCHER_API_KEY"),
		DispatcherTimeout: defaultDispatcherTimeout,
		AudioDevice:       strings.ToLower(getEnv("AUDIO_DEVICE", AudioDeviceLog)),
		AudioConfigFile:   os.Getenv("AUDIO_CONFIG_FILE"),
		Audio:             entities.DefaultAudioConfig(),
	}
	cfg.CallRecordRetention = defaultRetention

	level, err := zapcore.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("%w: LOG_LEVEL: %w", domain.ErrInvalidConfig, err)
	}
	cfg.LogLevel = level

	if v := os.Getenv("DISPATCHER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%w: DISPATCHER_TIMEOUT: %w", domain.ErrInvalidConfig, err)
		}
		cfg.DispatcherTimeout = d
	}

	if v := os.Getenv("CALL_RECORD_RETENTION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%w: CALL_RECORD_RETENTION: %w", domain.ErrInvalidConfig, err)
		}
		cfg.CallRecordRetention = d
	}

	if cfg.AudioConfigFile != "" {
		audio, err := LoadAudioConfig(cfg.AudioConfigFile)
		if err != nil {
			return nil, err
		}
		cfg.Audio = audio
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadAudioConfig reads an audio configuration file. Keys missing from the
// file keep their default values.
func LoadAudioConfig(path string) (entities.AudioConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return entities.AudioConfig{}, fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}
	defer f.Close()

	file := audioFile{Audio: entities.DefaultAudioConfig()}
	if err := yaml.NewDecoder(f).Decode(&file); err != nil {
		return entities.AudioConfig{}, fmt.Errorf("%w: decode %s: %w", domain.ErrInvalidConfig, path, err)
	}
	if err := file.Audio.Validate(); err != nil {
		return entities.AudioConfig{}, fmt.Errorf("%w: %s: %w", domain.ErrInvalidConfig, path, err)
	}
	return file.Audio, nil
}

// Validate checks the configuration is usable
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("%w: JWT_SECRET is required", domain.ErrInvalidConfig)
	}
	if c.DeviceSecret == "" {
		return fmt.Errorf("%w: DEVICE_SECRET is required", domain.ErrInvalidConfig)
	}
	if c.AudioDevice != AudioDeviceLog && c.AudioDevice != AudioDeviceWebsocket {
		return fmt.Errorf("%w: AUDIO_DEVICE must be %q or %q, got %q",
			domain.ErrInvalidConfig, AudioDeviceLog, AudioDeviceWebsocket, c.AudioDevice)
	}
	if c.CallRecordRetention <= 0 {
		return fmt.Errorf("%w: CALL_RECORD_RETENTION must be positive", domain.ErrInvalidConfig)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
