// SPDX-License-Identifier: GPL-3.0-only

package crypto

import (
	"strings"
	"testing"
)

func TestHashPassword(t *testing.T) {
	crypto := NewCrypto()
	password := "testpassword123"

	hash, err := crypto.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if hash == "" {
		t.Error("Hash should not be empty")
	}

	hash2, err := crypto.HashPassword(password)
	if err != nil {
		t.Fatalf("Second HashPassword failed: %v", err)
	}

	if hash == hash2 {
		t.Error("Two hashes of same password should be different (due to salt)")
	}
}

func TestVerifyPassword(t *testing.T) {
	crypto := NewCrypto()
	password := "testpassword123"
	wrongPassword := "wrongpassword"

	hash, err := crypto.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	err = crypto.VerifyPassword(password, hash)
	if err != nil {
		t.Errorf("VerifyPassword failed for correct password: %v", err)
	}

	err = crypto.VerifyPassword(wrongPassword, hash)
	if err == nil {
		t.Error("VerifyPassword should fail for wrong password")
	}

	err = crypto.VerifyPassword(password, "invalid-hash")
	if err == nil {
		t.Error("VerifyPassword should fail for invalid hash")
	}
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	t.Setenv("CREDENTIALS_ENC_KEY", "12345678901234567890123456789012")
	crypto := NewCrypto()

	plaintext := "0123456789abcdef0123456789abcdef"
	encrypted, err := crypto.EncryptData([]byte(plaintext))
	if err != nil {
		t.Fatalf("EncryptData failed: %v", err)
	}
	if encrypted == plaintext {
		t.Error("Ciphertext should differ from plaintext")
	}

	decrypted, err := crypto.DecryptData(encrypted)
	if err != nil {
		t.Fatalf("DecryptData failed: %v", err)
	}
	if string(decrypted) != plaintext {
		t.Errorf("Expected %s, got %s", plaintext, string(decrypted))
	}

	// Fresh nonce per call.
	encrypted2, err := crypto.EncryptData([]byte(plaintext))
	if err != nil {
		t.Fatalf("Second EncryptData failed: %v", err)
	}
	if encrypted == encrypted2 {
		t.Error("Two encryptions of same plaintext should be different")
	}
}

func TestEncryptDataRequiresKey(t *testing.T) {
	crypto := &Crypto{}
	if _, err := crypto.EncryptData([]byte("secret")); err == nil {
		t.Error("EncryptData should fail without a 32 byte key")
	}
}

func TestGenerateRandomString(t *testing.T) {
	token, err := GenerateRandomString("ak_", 16, "hex")
	if err != nil {
		t.Fatalf("GenerateRandomString failed: %v", err)
	}
	if !strings.HasPrefix(token, "ak_") {
		t.Errorf("Expected ak_ prefix, got %s", token)
	}
	if len(token) != 3+32 {
		t.Errorf("Expected 35 characters, got %d", len(token))
	}

	if _, err := GenerateRandomString("x_", 8, "rot13"); err == nil {
		t.Error("Unsupported encoding should fail")
	}
}
