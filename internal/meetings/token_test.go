package meetings

import (
	"errors"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	issued := time.UnixMilli(1700000000000)
	tok := MakeToken("meeting-1", issued)

	id, ts, err := ParseToken(tok)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if id != "meeting-1" {
		t.Errorf("id = %q, want %q", id, "meeting-1")
	}
	if !ts.Equal(issued) {
		t.Errorf("issuedAt = %v, want %v", ts, issued)
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	cases := []struct {
		name  string
		token string
	}{
		{"not base64", "!!not-base64!!"},
		{"no separator", "bWVldGluZy0x"},      // "meeting-1"
		{"empty id", "OjE3MDAwMDAwMDAwMDA"},   // ":1700000000000"
		{"bad timestamp", "bWVldGluZzp4eXo"},  // "meeting:xyz"
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := ParseToken(tc.token); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken(%q) = %v, want ErrTokenInvalid", tc.token, err)
			}
		})
	}
}

func TestValidateToken(t *testing.T) {
	issued := time.Now()
	tok := MakeToken("meeting-1", issued)

	t.Run("valid", func(t *testing.T) {
		if err := ValidateToken(tok, "meeting-1", time.Hour, issued.Add(time.Minute)); err != nil {
			t.Errorf("ValidateToken = %v, want nil", err)
		}
	})
	t.Run("wrong meeting", func(t *testing.T) {
		if err := ValidateToken(tok, "meeting-2", time.Hour, issued); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("ValidateToken = %v, want ErrTokenInvalid", err)
		}
	})
	t.Run("expired", func(t *testing.T) {
		if err := ValidateToken(tok, "meeting-1", time.Hour, issued.Add(2*time.Hour)); !errors.Is(err, ErrTokenExpired) {
			t.Errorf("ValidateToken = %v, want ErrTokenExpired", err)
		}
	})
	t.Run("zero ttl disables age check", func(t *testing.T) {
		if err := ValidateToken(tok, "meeting-1", 0, issued.Add(240*time.Hour)); err != nil {
			t.Errorf("ValidateToken = %v, want nil", err)
		}
	})
}
