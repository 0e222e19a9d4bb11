package encryption

import (
	"context"
	"testing"

	"github.com/dd-repo/hp/internal/config"
)

func TestEncryptDecryptRoundTripLocal(t *testing.T) {
	cfg := &config.Config{}
	m := NewManager(cfg, nil)

	data, err := m.EncryptField(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("EncryptField: %v", err)
	}
	if data.EncryptedValue == "alice@example.com" || data.EncryptedValue == "" {
		t.Fatalf("value not encrypted: %q", data.EncryptedValue)
	}

	got, err := m.DecryptField(context.Background(), data)
	if err != nil {
		t.Fatalf("DecryptField: %v", err)
	}
	if got != "alice@example.com" {
		t.Errorf("round trip = %q", got)
	}

	// Decryption must also work without the cached data key.
	m.ClearCache()
	got, err = m.DecryptField(context.Background(), data)
	if err != nil {
		t.Fatalf("DecryptField after cache clear: %v", err)
	}
	if got != "alice@example.com" {
		t.Errorf("round trip after cache clear = %q", got)
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	cfg := &config.Config{}
	m := NewManager(cfg, nil)

	_, err := m.DecryptField(context.Background(), &EncryptedData{
		EncryptedValue: "!!not-base64!!",
		EncryptedDEK:   "!!not-base64!!",
	})
	if err == nil {
		t.Fatal("expected error for malformed envelope")
	}
}
