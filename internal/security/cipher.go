/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package security

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// PayloadCipher guards text held in process memory between pipeline stages.
// It is not a storage or transport protection; ciphertext never leaves the
// process.
type PayloadCipher interface {
	Encrypt(plaintext string) (string, error)
	// Decrypt reports ok=false for any input it cannot open
	Decrypt(ciphertext string) (string, bool)
}

// Cipher implements PayloadCipher with ChaCha20-Poly1305
type Cipher struct {
	aead      cipher.AEAD
	ephemeral bool
}

// NewCipher creates a cipher keyed by the given passphrase. The passphrase is
// hashed with SHA-256 to produce the 32-byte key. An empty passphrase yields a
// random per-process key; see Ephemeral.
func NewCipher(passphrase string) (*Cipher, error) {
	var key []byte
	ephemeral := passphrase == ""

	if ephemeral {
		key = make([]byte, chacha20poly1305.KeySize)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("generate key: %w", err)
		}
	} else {
		sum := sha256.Sum256([]byte(passphrase))
		key = sum[:]
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("create chacha20: %w", err)
	}

	return &Cipher{aead: aead, ephemeral: ephemeral}, nil
}

// Ephemeral reports whether the key was generated for this process only.
// Ciphertext produced by an ephemeral cipher cannot be opened after restart.
func (c *Cipher) Ephemeral() bool {
	return c.ephemeral
}

// Encrypt seals plaintext and returns nonce||ciphertext, base64url-encoded
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens ciphertext produced by Encrypt
func (c *Cipher) Decrypt(ciphertext string) (string, bool) {
	data, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", false
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize+c.aead.Overhead() {
		return "", false
	}

	plaintext, err := c.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", false
	}

	return string(plaintext), true
}
