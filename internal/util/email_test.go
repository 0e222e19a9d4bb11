package util

import "testing"

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"User@Example.COM", "user@example.com"},
		{"  user@example.com ", "user@example.com"},
		{"user+spam@example.com", "user@example.com"},
		{"user+a+b@example.com", "user@example.com"},
		{"first.last@gmail.com", "firstlast@gmail.com"},
		{"First.Last+tag@GoogleMail.com", "firstlast@googlemail.com"},
		{"first.last@example.com", "first.last@example.com"},
		{"not-an-email", "not-an-email"},
		{"@example.com", "@example.com"},
		{"user@", "user@"},
		{"+only@example.com", "+only@example.com"},
	}
	for _, tt := range tests {
		if got := NormalizeEmail(tt.in); got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeEmailIdempotent(t *testing.T) {
	in := "First.Last+x@gmail.com"
	once := NormalizeEmail(in)
	if twice := NormalizeEmail(once); twice != once {
		t.Errorf("normalization not idempotent: %q -> %q", once, twice)
	}
}
