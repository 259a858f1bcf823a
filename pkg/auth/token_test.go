package auth

import (
	"strings"
	"testing"
	"time"
)

func TestTokenGenerator_GenerateToken(t *testing.T) {
	tg := NewTokenGenerator()

	token, hash, prefix, err := tg.GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if !strings.HasPrefix(token, TokenPrefix) {
		t.Errorf("Token should start with %q, got %s", TokenPrefix, token)
	}
	if len(hash) != 64 {
		t.Errorf("Expected 64-char hex hash, got %d chars", len(hash))
	}
	if !strings.HasPrefix(prefix, TokenPrefix) {
		t.Errorf("Prefix should start with %q, got %s", TokenPrefix, prefix)
	}
	if len(prefix) != len(TokenPrefix)+8 {
		t.Errorf("Expected prefix of %d chars, got %d", len(TokenPrefix)+8, len(prefix))
	}
	if tg.HashToken(token) != hash {
		t.Error("HashToken should reproduce the stored hash")
	}
}

func TestTokenGenerator_Uniqueness(t *testing.T) {
	tg := NewTokenGenerator()
	seen := make(map[string]struct{})

	for i := 0; i < 100; i++ {
		token, _, _, err := tg.GenerateToken()
		if err != nil {
			t.Fatalf("GenerateToken failed: %v", err)
		}
		if _, dup := seen[token]; dup {
			t.Fatalf("Duplicate token generated: %s", token)
		}
		seen[token] = struct{}{}
	}
}

func TestTokenGenerator_ValidateTokenFormat(t *testing.T) {
	tg := NewTokenGenerator()

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid token", TokenPrefix + "YWJjZGVmZ2hpamtsbW5vcA", false},
		{"wrong prefix", "apikey_YWJjZGVmZ2hpamtsbW5vcA", true},
		{"no prefix", "YWJjZGVmZ2hpamtsbW5vcA", true},
		{"prefix only", TokenPrefix, true},
		{"invalid base64url", TokenPrefix + "not!valid!", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tg.ValidateTokenFormat(tt.token)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTokenFormat(%q) error = %v, wantErr %v", tt.token, err, tt.wantErr)
			}
		})
	}
}

func TestTokenGenerator_ExtractPrefix(t *testing.T) {
	tg := NewTokenGenerator()

	token, _, prefix, err := tg.GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if got := tg.ExtractPrefix(token); got != prefix {
		t.Errorf("ExtractPrefix = %q, want %q", got, prefix)
	}
	if got := tg.ExtractPrefix("bogus"); got != "" {
		t.Errorf("ExtractPrefix on foreign token = %q, want empty", got)
	}
}

func TestToken_Expired(t *testing.T) {
	now := time.Now()

	t.Run("no expiry never expires", func(t *testing.T) {
		token := &Token{}
		if token.Expired(now.Add(100 * 365 * 24 * time.Hour)) {
			t.Error("Token without expiry should never expire")
		}
	})

	t.Run("past expiry", func(t *testing.T) {
		expires := now.Add(-time.Minute)
		token := &Token{ExpiresAt: &expires}
		if !token.Expired(now) {
			t.Error("Token past its expiry should be expired")
		}
	})

	t.Run("future expiry", func(t *testing.T) {
		expires := now.Add(time.Hour)
		token := &Token{ExpiresAt: &expires}
		if token.Expired(now) {
			t.Error("Token before its expiry should not be expired")
		}
	})
}
