package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "ALLOWED_ORIGINS", "CLASSIFY_TIMEOUT_MS", "CERT_FILE", "KEY_FILE", "MQTT_BROKER", "EXPOSE_LOGS", "STREAM_QUALITY"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Port != 5000 {
		t.Errorf("Expected default port 5000, got %d", cfg.Port)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"https://*.ext-twitch.tv"}) {
		t.Errorf("Unexpected default origins: %v", cfg.AllowedOrigins)
	}
	if cfg.ClassifyTimeout != 5*time.Second {
		t.Errorf("Expected 5s classify timeout, got %v", cfg.ClassifyTimeout)
	}
	if cfg.TLSEnabled() {
		t.Error("TLS should be disabled without cert and key")
	}
	if cfg.MQTTBroker != "" {
		t.Errorf("MQTT should be disabled by default, got broker %q", cfg.MQTTBroker)
	}
	if cfg.ExposeLogs {
		t.Error("Log files should not be served by default")
	}
	if cfg.StreamQuality != "720p" {
		t.Errorf("Expected 720p stream quality, got %q", cfg.StreamQuality)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "8443")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example.com, ,https://*.b.example.com ")
	t.Setenv("CLASSIFY_TIMEOUT_MS", "250")
	t.Setenv("CERT_FILE", "cert.pem")
	t.Setenv("KEY_FILE", "key.pem")
	t.Setenv("EXPOSE_LOGS", "true")

	cfg := Load()

	if cfg.Port != 8443 {
		t.Errorf("Expected port 8443, got %d", cfg.Port)
	}
	expected := []string{"https://a.example.com", "https://*.b.example.com"}
	if !reflect.DeepEqual(cfg.AllowedOrigins, expected) {
		t.Errorf("Expected origins %v, got %v", expected, cfg.AllowedOrigins)
	}
	if cfg.ClassifyTimeout != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %v", cfg.ClassifyTimeout)
	}
	if !cfg.TLSEnabled() {
		t.Error("TLS should be enabled with cert and key")
	}
	if !cfg.ExposeLogs {
		t.Error("Expected EXPOSE_LOGS=true to enable log files")
	}
}

func TestGetEnvAsInt_Invalid(t *testing.T) {
	tests := []struct {
		value    string
		expected int
	}{
		{"", 7},
		{"abc", 7},
		{"12.5", 7},
		{"42", 42},
	}

	for _, tt := range tests {
		t.Setenv("SNAPVISION_TEST_INT", tt.value)
		if got := getEnvAsInt("SNAPVISION_TEST_INT", 7); got != tt.expected {
			t.Errorf("getEnvAsInt(%q) = %d, expected %d", tt.value, got, tt.expected)
		}
	}
}
