package config

import "testing"

func TestClickhouseDefaultUsesNativePort(t *testing.T) {
	// clickhouse-go v2 speaks the native protocol, so the default must not
	// point at the HTTP port.
	t.Setenv("CLICKHOUSE_URL", "")

	cfg := LoadConfig()
	if cfg.Clickhouse.URL != "http://127.0.0.1:9000" {
		t.Errorf("default clickhouse URL = %q", cfg.Clickhouse.URL)
	}
}

func TestEnvironmentHelpers(t *testing.T) {
	prod := &Config{Environment: "production"}
	dev := &Config{Environment: "development"}

	if !prod.IsProduction() || prod.IsDevelopment() {
		t.Error("production environment misclassified")
	}
	if !dev.IsDevelopment() || dev.IsProduction() {
		t.Error("development environment misclassified")
	}
}
