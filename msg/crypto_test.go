package msg

import (
	"bytes"
	"testing"
)

func TestPKCS7PadUnpadIdentity(t *testing.T) {
	for _, n := range []int{0, 1, 15, 16, 17, 31, 32, 100} {
		data := bytes.Repeat([]byte{0xAB}, n)
		padded := pkcs7Pad(data, 16)
		if len(padded)%16 != 0 {
			t.Fatalf("n=%d: padded length %d not block-aligned", n, len(padded))
		}
		unpadded, err := pkcs7Unpad(padded, 16)
		if err != nil {
			t.Fatalf("n=%d: pkcs7Unpad: %v", n, err)
		}
		if !bytes.Equal(unpadded, data) {
			t.Fatalf("n=%d: round trip mismatch", n)
		}
	}
}

func TestPKCS7UnpadRejectsBadPadding(t *testing.T) {
	block := bytes.Repeat([]byte{0x05}, 16)
	block[15] = 0 // zero padding length is invalid
	if _, err := pkcs7Unpad(block, 16); err == nil {
		t.Fatalf("expected error for zero padding length")
	}

	block2 := bytes.Repeat([]byte{0x05}, 16)
	block2[12] = 0x01 // breaks the uniform padding-byte run
	if _, err := pkcs7Unpad(block2, 16); err == nil {
		t.Fatalf("expected error for inconsistent padding bytes")
	}
}

func TestAESCBCEncryptDecryptRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)
	iv := bytes.Repeat([]byte{0x22}, 16)
	plaintext := pkcs7Pad([]byte("the quick brown fox"), 16)

	ciphertext, err := aesCBCEncrypt(key, iv, plaintext)
	if err != nil {
		t.Fatalf("aesCBCEncrypt: %v", err)
	}
	decrypted, err := aesCBCDecrypt(key, iv, ciphertext)
	if err != nil {
		t.Fatalf("aesCBCDecrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("round trip mismatch")
	}
}

func TestAESGCMDetectsTamperedCiphertext(t *testing.T) {
	key := bytes.Repeat([]byte{0x33}, 32)
	iv := bytes.Repeat([]byte{0x44}, 12)
	aad := []byte("associated data")
	plaintext := []byte("secret message")

	ciphertext, tag, err := aesGCMEncrypt(key, iv, aad, plaintext)
	if err != nil {
		t.Fatalf("aesGCMEncrypt: %v", err)
	}

	decrypted, err := aesGCMDecrypt(key, iv, aad, ciphertext, tag)
	if err != nil {
		t.Fatalf("aesGCMDecrypt on untampered data: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("round trip mismatch")
	}

	tampered := append([]byte(nil), ciphertext...)
	tampered[0] ^= 0xFF
	if _, err := aesGCMDecrypt(key, iv, aad, tampered, tag); err == nil {
		t.Fatalf("expected decryption failure on tampered ciphertext")
	}

	tamperedTag := tag
	tamperedTag[0] ^= 0xFF
	if _, err := aesGCMDecrypt(key, iv, aad, ciphertext, tamperedTag); err == nil {
		t.Fatalf("expected decryption failure on tampered tag")
	}
}

func TestX25519KeyAgreement(t *testing.T) {
	clientCtx, clientWire, err := x25519ClientContext()
	if err != nil {
		t.Fatalf("x25519ClientContext: %v", err)
	}
	if len(clientWire) != 36 {
		t.Fatalf("client wire length = %d, want 36", len(clientWire))
	}

	serverCtx, serverWire, err := x25519ServerContext(clientWire)
	if err != nil {
		t.Fatalf("x25519ServerContext: %v", err)
	}
	if len(serverWire) != 33 {
		t.Fatalf("server wire length = %d, want 33", len(serverWire))
	}

	clientShared, err := x25519ClientSecret(clientCtx, serverWire)
	if err != nil {
		t.Fatalf("x25519ClientSecret: %v", err)
	}

	if clientShared != serverCtx.shared {
		t.Fatalf("client and server derived different shared secrets")
	}
}

func TestX25519ServerContextRejectsBadProtocolTag(t *testing.T) {
	_, wire, err := x25519ClientContext()
	if err != nil {
		t.Fatalf("x25519ClientContext: %v", err)
	}
	putUint32BE(wire[32:36], 0xDEADBEEF)
	if _, _, err := x25519ServerContext(wire); err == nil {
		t.Fatalf("expected error for bad protocol tag")
	}
}

func TestShaStretchDeterministic(t *testing.T) {
	a := shaStretch(sha256Alg, []byte("input"), 8)
	b := shaStretch(sha256Alg, []byte("input"), 8)
	if !bytes.Equal(a, b) {
		t.Fatalf("shaStretch not deterministic")
	}
	one := shaStretch(sha256Alg, []byte("input"), 1)
	if bytes.Equal(a, one) {
		t.Fatalf("stretch=8 should differ from stretch=1")
	}
}

func TestConstantTimeEqual(t *testing.T) {
	a := []byte{1, 2, 3, 4}
	b := []byte{1, 2, 3, 4}
	c := []byte{1, 2, 3, 5}
	if !constantTimeEqual(a, b) {
		t.Fatalf("expected equal")
	}
	if constantTimeEqual(a, c) {
		t.Fatalf("expected not equal")
	}
}
