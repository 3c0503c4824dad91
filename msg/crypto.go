package msg

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"hash"

	"golang.org/x/crypto/curve25519"
)

// constantTimeEqual reports whether a and b are equal without leaking
// timing information about where they first differ (spec §4.4).
func constantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// randomBytes returns n cryptographically strong random bytes (spec §4.3).
func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, newErr(ErrCrypto, err)
	}
	return b, nil
}

type shaAlg int

const (
	sha1Alg shaAlg = iota
	sha224Alg
	sha256Alg
	sha384Alg
	sha512Alg
)

func newHash(alg shaAlg) hash.Hash {
	switch alg {
	case sha1Alg:
		return sha1.New()
	case sha224Alg:
		return sha256.New224()
	case sha256Alg:
		return sha256.New()
	case sha384Alg:
		return sha512.New384()
	case sha512Alg:
		return sha512.New()
	default:
		return sha256.New()
	}
}

// shaStretch computes H(H(...H(msg)...)) applied `stretch` times, stretch
// >= 1 (spec §4.3).
func shaStretch(alg shaAlg, msg []byte, stretch int) []byte {
	if stretch < 1 {
		stretch = 1
	}
	h := newHash(alg)
	h.Write(msg)
	sum := h.Sum(nil)
	for i := 1; i < stretch; i++ {
		h = newHash(alg)
		h.Write(sum)
		sum = h.Sum(nil)
	}
	return sum
}

func sha256Sum(msg []byte) [32]byte {
	return sha256.Sum256(msg)
}

// hmacSHA256 computes HMAC-SHA-256(key, msg) (spec §4.3, §4.4).
func hmacSHA256(key, msg []byte) [32]byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// pkcs7Pad pads data to a multiple of blockSize (spec §4.3).
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// pkcs7Unpad reverses pkcs7Pad, rejecting malformed padding.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, newErrf(ErrCrypto, "pkcs7: invalid length %d", len(data))
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, newErrf(ErrCrypto, "pkcs7: invalid padding length %d", padLen)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("pkcs7: invalid padding bytes")
		}
	}
	return data[:len(data)-padLen], nil
}

// aesCBCEncrypt encrypts data (already padded to a block multiple) under
// AES-256-CBC (spec §4.3).
func aesCBCEncrypt(key32 []byte, iv16 []byte, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key32)
	if err != nil {
		return nil, newErr(ErrCrypto, err)
	}
	if len(data)%block.BlockSize() != 0 {
		return nil, newErrf(ErrCrypto, "aes-cbc: data not block-aligned")
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv16).CryptBlocks(out, data)
	return out, nil
}

func aesCBCDecrypt(key32 []byte, iv16 []byte, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key32)
	if err != nil {
		return nil, newErr(ErrCrypto, err)
	}
	if len(data)%block.BlockSize() != 0 {
		return nil, newErrf(ErrCrypto, "aes-cbc: data not block-aligned")
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv16).CryptBlocks(out, data)
	return out, nil
}

// aesCTR streams data through AES-256-CTR using a 16-byte nonce/counter
// block (spec §4.3). offset/streamBlock are not carried between calls
// here: each call is self-contained over the full data slice, which is
// sufficient for this core's message-sized payloads.
func aesCTR(key32 []byte, nonceCounter16 []byte, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key32)
	if err != nil {
		return nil, newErr(ErrCrypto, err)
	}
	out := make([]byte, len(data))
	cipher.NewCTR(block, nonceCounter16).XORKeyStream(out, data)
	return out, nil
}

// aesGCMEncrypt encrypts plaintext under AES-256-GCM, returning ciphertext
// and a detached 16-byte tag (spec §4.3).
func aesGCMEncrypt(key32, iv, aad, plaintext []byte) (ciphertext []byte, tag [16]byte, err error) {
	block, err := aes.NewCipher(key32)
	if err != nil {
		return nil, tag, newErr(ErrCrypto, err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, tag, newErr(ErrCrypto, err)
	}
	sealed := gcm.Seal(nil, iv, plaintext, aad)
	ciphertext = sealed[:len(sealed)-gcm.Overhead()]
	copy(tag[:], sealed[len(sealed)-gcm.Overhead():])
	return ciphertext, tag, nil
}

func aesGCMDecrypt(key32, iv, aad, ciphertext []byte, tag [16]byte) ([]byte, error) {
	block, err := aes.NewCipher(key32)
	if err != nil {
		return nil, newErr(ErrCrypto, err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, newErr(ErrCrypto, err)
	}
	sealed := append(append([]byte(nil), ciphertext...), tag[:]...)
	plaintext, err := gcm.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, newErr(ErrDecryptFail, err)
	}
	return plaintext, nil
}

// X25519 ECDH, sized to the spec's asymmetric wire layout: the client's
// public value is 36 bytes (32-byte curve point + 4-byte protocol tag,
// grounded on the teacher's one-byte HEADER_* wire tags in krypto.go,
// widened here to let a peer reject a foreign/stale pairing attempt
// before doing any curve math); the server's is 33 bytes (1-byte
// key-type prefix + 32-byte point, grounded on the teacher's
// sodiumBoxSeal ephemeral-key-prefix convention).
const (
	protocolTag  = uint32(0x4B525054) // "KRPT"
	serverKeyTag = byte(0x01)
)

type x25519ClientCtx struct {
	secret [32]byte
	public [32]byte
}

type x25519ServerCtx struct {
	shared [32]byte
	public [33]byte
}

func x25519ClientContext() (*x25519ClientCtx, []byte, error) {
	ctx := &x25519ClientCtx{}
	if _, err := rand.Read(ctx.secret[:]); err != nil {
		return nil, nil, newErr(ErrCrypto, err)
	}
	pub, err := curve25519.X25519(ctx.secret[:], curve25519.Basepoint)
	if err != nil {
		return nil, nil, newErr(ErrCrypto, err)
	}
	copy(ctx.public[:], pub)

	wire := make([]byte, 36)
	copy(wire[:32], ctx.public[:])
	putUint32BE(wire[32:36], protocolTag)
	return ctx, wire, nil
}

func x25519ServerContext(clientPublicWire []byte) (*x25519ServerCtx, []byte, error) {
	if len(clientPublicWire) != 36 {
		return nil, nil, newErrf(ErrInvalidArg, "client public key must be 36 bytes, got %d", len(clientPublicWire))
	}
	if getUint32BE(clientPublicWire[32:36]) != protocolTag {
		return nil, nil, newErrf(ErrInvalidArg, "unrecognized pairing protocol tag")
	}
	clientPub := clientPublicWire[:32]

	var serverSecret [32]byte
	if _, err := rand.Read(serverSecret[:]); err != nil {
		return nil, nil, newErr(ErrCrypto, err)
	}
	serverPub, err := curve25519.X25519(serverSecret[:], curve25519.Basepoint)
	if err != nil {
		return nil, nil, newErr(ErrCrypto, err)
	}
	shared, err := curve25519.X25519(serverSecret[:], clientPub)
	if err != nil {
		return nil, nil, newErr(ErrCrypto, err)
	}

	ctx := &x25519ServerCtx{}
	copy(ctx.shared[:], shared)
	ctx.public[0] = serverKeyTag
	copy(ctx.public[1:], serverPub)

	return ctx, ctx.public[:], nil
}

func x25519ClientSecret(ctx *x25519ClientCtx, serverPublicWire []byte) ([32]byte, error) {
	var shared [32]byte
	if len(serverPublicWire) != 33 {
		return shared, newErrf(ErrInvalidArg, "server public key must be 33 bytes, got %d", len(serverPublicWire))
	}
	if serverPublicWire[0] != serverKeyTag {
		return shared, newErrf(ErrInvalidArg, "unrecognized server public key tag")
	}
	s, err := curve25519.X25519(ctx.secret[:], serverPublicWire[1:])
	if err != nil {
		return shared, newErr(ErrCrypto, err)
	}
	copy(shared[:], s)
	return shared, nil
}

func putUint32BE(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getUint32BE(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
