package crypto

import (
	"errors"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	tests := []string{
		"",
		"hello",
		"I met Alice in London.\nIt rained all day.",
		"non-ascii: Zoë, café, 東京",
	}
	for _, plaintext := range tests {
		ciphertext, err := EncryptString(key, plaintext)
		if err != nil {
			t.Fatalf("EncryptString(%q) failed: %v", plaintext, err)
		}
		if ciphertext == plaintext && plaintext != "" {
			t.Fatalf("ciphertext equals plaintext for %q", plaintext)
		}

		got, err := DecryptString(key, ciphertext)
		if err != nil {
			t.Fatalf("DecryptString failed: %v", err)
		}
		if got != plaintext {
			t.Fatalf("round trip mismatch: got %q, want %q", got, plaintext)
		}
	}
}

func TestDecryptOldToken(t *testing.T) {
	// Fernet spec verify vector; the token timestamp is 1985-10-26. Stored
	// chats are read long after they were written, so age must not matter.
	key := "cw_0x689RpI-jtRR7oE8h_eQsKImvJapLeSbXpwF4e4="
	token := "gAAAAAAdwJ6wAAECAwQFBgcICQoLDA0ODy021cpGVWKZ_eEwCGM4BLLF_5CV9dOPmrhuVUPgJobwOz7JcbmrR64jVmpU4IwqDA=="

	got, err := DecryptString(key, token)
	if err != nil {
		t.Fatalf("DecryptString failed on aged token: %v", err)
	}
	if got != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	key1, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	key2, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	ciphertext, err := EncryptString(key1, "secret")
	if err != nil {
		t.Fatalf("EncryptString failed: %v", err)
	}

	_, err = DecryptString(key2, ciphertext)
	if !errors.Is(err, ErrDecrypt) {
		t.Fatalf("expected ErrDecrypt, got %v", err)
	}
}

func TestInvalidKey(t *testing.T) {
	if _, err := EncryptString("not-a-key", "x"); err == nil {
		t.Fatal("expected error for invalid key")
	}
	if _, err := DecryptString("not-a-key", "x"); err == nil {
		t.Fatal("expected error for invalid key")
	}
}
