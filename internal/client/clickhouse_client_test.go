package client

import "testing"

func TestExtractHostPort(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://127.0.0.1:9000", "127.0.0.1:9000"},
		{"http://clickhouse.internal", "clickhouse.internal:9000"},
		{"https://clickhouse.example.com", "clickhouse.example.com:8443"},
		{"clickhouse.internal:9440", "clickhouse.internal:9440"},
	}

	for _, tt := range tests {
		if got := extractHostPort(tt.url); got != tt.want {
			t.Errorf("extractHostPort(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestExtractHostname(t *testing.T) {
	if got := extractHostname("https://clickhouse.example.com:9440"); got != "clickhouse.example.com" {
		t.Errorf("extractHostname = %q", got)
	}
}
