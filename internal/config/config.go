package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// SpeechProvider selects the engines behind the speech controllers
type SpeechProvider string

const (
	// SpeechProviderHost relays speech to the engines of the connected browser
	SpeechProviderHost SpeechProvider = "host"
	// SpeechProviderCloud uses Google streaming recognition and ElevenLabs synthesis
	SpeechProviderCloud SpeechProvider = "cloud"
	// SpeechProviderMock scripts recognition and synthesis
	SpeechProviderMock SpeechProvider = "mock"
)

const devJWTSecret = "buddy-dev-secret"

// Config is the server configuration
type Config struct {
	Port     string
	LogLevel string

	JWTSecret         string
	JWTTTL            time.Duration
	ClientCredentials string

	SpeechProvider SpeechProvider
	SpeechLanguage string
	PreferredVoice string
	SpeechRate     float64
	SpeechPitch    float64
	SpeechVolume   float64

	SubmittedNoticeDuration time.Duration
	VoiceCatalogRefresh     time.Duration
	RequestTimeout          time.Duration
}

// Development reports whether the server runs with development defaults
func (c *Config) Development() bool {
	return c.LogLevel == "debug"
}

// Load reads the configuration from the environment, loading .env first when present
func Load(logger *zap.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file loaded", zap.Error(err))
	}

	config := &Config{
		Port:                    getEnv("PORT", "8080"),
		LogLevel:                strings.ToLower(getEnv("LOG_LEVEL", "info")),
		JWTSecret:               os.Getenv("JWT_SECRET"),
		ClientCredentials:       getEnv("CLIENT_CREDENTIALS", "buddy-web:buddy-secret"),
		SpeechProvider:          SpeechProvider(strings.ToLower(getEnv("SPEECH_PROVIDER", string(SpeechProviderHost)))),
		SpeechLanguage:          getEnv("SPEECH_LANGUAGE", "en-US"),
		PreferredVoice:          getEnv("PREFERRED_VOICE", "Google UK English Male"),
		JWTTTL:                  24 * time.Hour,
		SpeechRate:              1.15,
		SpeechPitch:             1.0,
		SpeechVolume:            1.3,
		SubmittedNoticeDuration: 3 * time.Second,
		VoiceCatalogRefresh:     10 * time.Minute,
		RequestTimeout:          30 * time.Second,
	}

	var err error
	if config.JWTTTL, err = getDuration("JWT_TTL", config.JWTTTL); err != nil {
		return nil, err
	}
	if config.SubmittedNoticeDuration, err = getDuration("SUBMITTED_NOTICE_DURATION", config.SubmittedNoticeDuration); err != nil {
		return nil, err
	}
	if config.VoiceCatalogRefresh, err = getDuration("VOICE_CATALOG_REFRESH", config.VoiceCatalogRefresh); err != nil {
		return nil, err
	}
	if config.RequestTimeout, err = getDuration("SEARCH_API_TIMEOUT", config.RequestTimeout); err != nil {
		return nil, err
	}
	if config.SpeechRate, err = getFloat("SPEECH_RATE", config.SpeechRate); err != nil {
		return nil, err
	}
	if config.SpeechPitch, err = getFloat("SPEECH_PITCH", config.SpeechPitch); err != nil {
		return nil, err
	}
	if config.SpeechVolume, err = getFloat("SPEECH_VOLUME", config.SpeechVolume); err != nil {
		return nil, err
	}

	if config.JWTSecret == "" && config.Development() {
		config.JWTSecret = devJWTSecret
		logger.Warn("Using development JWT secret")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger.Info("Configuration loaded",
		zap.String("port", config.Port),
		zap.String("speechProvider", string(config.SpeechProvider)),
		zap.String("speechLanguage", config.SpeechLanguage),
		zap.String("preferredVoice", config.PreferredVoice))
	return config, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be a number, got %q", c.Port)
	}
	switch c.SpeechProvider {
	case SpeechProviderHost, SpeechProviderCloud, SpeechProviderMock:
	default:
		return fmt.Errorf("SPEECH_PROVIDER must be one of host, cloud, mock, got %q", c.SpeechProvider)
	}
	if c.SpeechRate <= 0 || c.SpeechPitch <= 0 || c.SpeechVolume <= 0 {
		return errors.New("speech rate, pitch and volume must be positive")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive, got %v", c.JWTTTL)
	}
	if c.SubmittedNoticeDuration <= 0 {
		return fmt.Errorf("SUBMITTED_NOTICE_DURATION must be positive, got %v", c.SubmittedNoticeDuration)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
