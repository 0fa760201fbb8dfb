// Package crypto provides credential management and HMAC authentication for
// the exchange clients.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"

	"github.com/quollview/spreadscraper/internal/domain"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// saltLen is the random salt length in bytes.
	saltLen = 16
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
	// currentVersion is the credentials-file JSON schema version.
	currentVersion = 1
)

// encryptedCredentialsJSON is the on-disk format for an encrypted credentials
// file.
type encryptedCredentialsJSON struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`       // base64 standard encoding
	Nonce      string `json:"nonce"`      // base64 standard encoding
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
}

// Credentials holds the exchange API credentials of a deployment. The zero
// value means public API access only.
type Credentials struct {
	BTCMarketsKey    string `json:"btcmarkets_key"`
	BTCMarketsSecret string `json:"btcmarkets_secret"`
	BinanceKey       string `json:"binance_key"`
	BinanceSecret    string `json:"binance_secret"`
}

// HasBTCMarkets reports whether BTC Markets credentials are present.
func (c Credentials) HasBTCMarkets() bool {
	return c.BTCMarketsKey != "" && c.BTCMarketsSecret != ""
}

// IsZero reports whether no credentials are present at all.
func (c Credentials) IsZero() bool {
	return c == Credentials{}
}

// EncryptCredentials encrypts the credentials with a passphrase using
// PBKDF2-HMAC-SHA256 key derivation and AES-256-GCM authenticated encryption.
// It returns the JSON blob suitable for writing to disk.
func EncryptCredentials(creds Credentials, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("crypto: passphrase must not be empty")
	}

	plaintext, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("crypto: encoding credentials: %w", err)
	}

	// Generate random salt and derive AES key.
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}

	derivedKey := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	// AES-256-GCM encrypt.
	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := encryptedCredentialsJSON{
		Version:    currentVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}

	return json.MarshalIndent(out, "", "  ")
}

// DecryptCredentials decrypts a JSON blob produced by EncryptCredentials.
func DecryptCredentials(encryptedJSON []byte, passphrase string) (Credentials, error) {
	if passphrase == "" {
		return Credentials{}, errors.New("crypto: passphrase must not be empty")
	}

	var stored encryptedCredentialsJSON
	if err := json.Unmarshal(encryptedJSON, &stored); err != nil {
		return Credentials{}, fmt.Errorf("crypto: parsing credentials file: %w", err)
	}
	if stored.Version != currentVersion {
		return Credentials{}, fmt.Errorf("crypto: unsupported version %d", stored.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return Credentials{}, fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return Credentials{}, fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return Credentials{}, fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	derivedKey := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return Credentials{}, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Credentials{}, fmt.Errorf("crypto: creating GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Credentials{}, fmt.Errorf("crypto: decryption failed (wrong passphrase?): %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return Credentials{}, fmt.Errorf("crypto: decoding credentials: %w", err)
	}
	return creds, nil
}

// CredentialSource carries the information LoadCredentials needs to resolve
// the exchange credentials. Populate the fields from the config file or
// environment.
type CredentialSource struct {
	// Key and Secret are plaintext BTC Markets credentials. When both are set
	// they take precedence over the encrypted file.
	Key    string
	Secret string

	// Path is the path to a JSON file produced by EncryptCredentials.
	Path string

	// Passphrase decrypts the file at Path.
	Passphrase string
}

// LoadCredentials resolves exchange credentials from the provided source.
//
// Resolution order:
//  1. If Key and Secret are set, return them directly.
//  2. If Path is set, read the file and decrypt with Passphrase. A missing
//     file is not an error: the scraper then runs against public endpoints
//     only.
//  3. Otherwise, return zero Credentials (public access).
func LoadCredentials(src CredentialSource) (Credentials, error) {
	if src.Key != "" && src.Secret != "" {
		return Credentials{BTCMarketsKey: src.Key, BTCMarketsSecret: src.Secret}, nil
	}

	if src.Path != "" {
		data, err := os.ReadFile(src.Path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Credentials{}, nil
			}
			return Credentials{}, fmt.Errorf("crypto: reading credentials file: %w", err)
		}
		if src.Passphrase == "" {
			return Credentials{}, fmt.Errorf("crypto: credentials file %s has no passphrase: %w", src.Path, domain.ErrNoCredentials)
		}
		return DecryptCredentials(data, src.Passphrase)
	}

	return Credentials{}, nil
}
