package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             int
	StreamURL        string
	StreamWidth      int // Requested capture width, 0 keeps the source resolution
	StreamHeight     int
	StreamQuality    string // Preferred variant when the source is a Twitch channel, e.g. "720p"
	DetectModelPath  string
	ClassifyModel    string
	ClassNamesPath   string
	CardsDBPath      string
	LogDirectory     string
	ExposeLogs       bool   // Serves the level log files under /logs/ when set
	CertFile         string // TLS is enabled when both CertFile and KeyFile are set
	KeyFile          string
	AllowedOrigins   []string
	SubscriberBuffer int // Events buffered per stream subscriber before dropping
	ClassifyTimeout  time.Duration
	MQTTBroker       string // Empty disables the MQTT sink
	MQTTTopic        string
	MQTTClientID     string
}

// Load reads configuration from the environment, after merging a .env file when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:             getEnvAsInt("PORT", 5000),
		StreamURL:        getEnv("STREAM_URL", "https://www.twitch.tv/marvelsnapvision"),
		StreamWidth:      getEnvAsInt("STREAM_WIDTH", 1280),
		StreamHeight:     getEnvAsInt("STREAM_HEIGHT", 720),
		StreamQuality:    getEnv("STREAM_QUALITY", "720p"),
		DetectModelPath:  getEnv("DETECT_MODEL_PATH", filepath.Join(".", "models", "detect.onnx")),
		ClassifyModel:    getEnv("CLASSIFY_MODEL_PATH", filepath.Join(".", "models", "classify.onnx")),
		ClassNamesPath:   getEnv("CLASS_NAMES_PATH", filepath.Join(".", "class_names.json")),
		CardsDBPath:      getEnv("CARDS_DB_PATH", filepath.Join(".", "cards.db")),
		LogDirectory:     getEnv("LOG_DIR", filepath.Join(".", "logs")),
		ExposeLogs:       getEnvAsBool("EXPOSE_LOGS", false),
		CertFile:         getEnv("CERT_FILE", ""),
		KeyFile:          getEnv("KEY_FILE", ""),
		AllowedOrigins:   getEnvAsList("ALLOWED_ORIGINS", []string{"https://*.ext-twitch.tv"}),
		SubscriberBuffer: getEnvAsInt("SUBSCRIBER_BUFFER", 16),
		ClassifyTimeout:  time.Duration(getEnvAsInt("CLASSIFY_TIMEOUT_MS", 5000)) * time.Millisecond,
		MQTTBroker:       getEnv("MQTT_BROKER", ""),
		MQTTTopic:        getEnv("MQTT_TOPIC", "snapvision/detections"),
		MQTTClientID:     getEnv("MQTT_CLIENT_ID", "snapvision"),
	}
}

// TLSEnabled reports whether both halves of the key pair are configured.
func (c *Config) TLSEnabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping empty items.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
