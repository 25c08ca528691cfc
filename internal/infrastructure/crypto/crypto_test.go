package crypto

import (
	"errors"
	"strings"
	"testing"
)

const testKey = "0123456789abcdef0123456789abcdef" // 32 bytes

func TestNewEncryptorKeyLength(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "32-byte key", key: testKey},
		{name: "empty key", key: "", wantErr: true},
		{name: "short key", key: "sixteen-byte-key", wantErr: true},
		{name: "long key", key: testKey + "overflow", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewEncryptor(tt.key)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidKey) {
					t.Fatalf("expected ErrInvalidKey, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if enc == nil {
				t.Fatal("expected non-nil encryptor")
			}
		})
	}
}

func TestRoundtrip(t *testing.T) {
	enc, err := NewEncryptor(testKey)
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	tokens := []string{
		"access-sandbox-2c7e01ad-31f3-4e7c-a9f1-5a187f0b34cc",
		"access-production-00000000-0000-0000-0000-000000000000",
		strings.Repeat("padded-token-", 500),
	}

	for _, token := range tokens {
		ciphertext, err := enc.Encrypt(token)
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		if ciphertext == token {
			t.Fatal("ciphertext must not equal plaintext")
		}
		if strings.Contains(ciphertext, "access-") {
			t.Fatal("ciphertext leaks plaintext prefix")
		}

		plaintext, err := enc.Decrypt(ciphertext)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if plaintext != token {
			t.Errorf("roundtrip mismatch: got %q", plaintext)
		}
	}
}

func TestEmptyStringPassesThrough(t *testing.T) {
	// A connection without a stored token round-trips as empty rather than
	// erroring, so callers need no special casing.
	enc, _ := NewEncryptor(testKey)

	if got, err := enc.Encrypt(""); err != nil || got != "" {
		t.Errorf("Encrypt(\"\") = %q, %v", got, err)
	}
	if got, err := enc.Decrypt(""); err != nil || got != "" {
		t.Errorf("Decrypt(\"\") = %q, %v", got, err)
	}
}

func TestNonceVariesPerCall(t *testing.T) {
	enc, _ := NewEncryptor(testKey)

	c1, _ := enc.Encrypt("same token")
	c2, _ := enc.Encrypt("same token")
	if c1 == c2 {
		t.Error("identical ciphertexts for repeated plaintext")
	}
}

func TestDecryptRejectsBadInput(t *testing.T) {
	enc, _ := NewEncryptor(testKey)
	valid, _ := enc.Encrypt("secret token")

	tests := []struct {
		name  string
		input string
	}{
		{name: "invalid base64", input: "not-valid-base64!!!"},
		{name: "shorter than nonce", input: "YQ=="},
		{name: "tampered tail", input: valid[:len(valid)-2] + "XX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := enc.Decrypt(tt.input); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	enc1, _ := NewEncryptor(testKey)
	enc2, _ := NewEncryptor("fedcba9876543210fedcba9876543210")

	ciphertext, _ := enc1.Encrypt("encrypted under the first key")
	if _, err := enc2.Decrypt(ciphertext); err == nil {
		t.Error("decrypt under a different key must fail")
	}
}
