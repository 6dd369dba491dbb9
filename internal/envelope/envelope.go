// Custodia - Multi-Database Backup Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/custodia

// Package envelope implements streaming password-based encryption for backup
// artifacts. Scheduled backups can be encrypted before upload and decrypted
// again before a restore applies them.
//
// The encrypted file format is:
//
//	[MAGIC(8)][VERSION(1)][SALT(16)][IV(16)][ITERATIONS(4)][CIPHERTEXT...][HMAC(32)]
//
// AES-256-CTR provides streaming encryption, HMAC-SHA256 over the ciphertext
// provides integrity, and PBKDF2-HMAC-SHA256 derives both keys from the
// password. Files are processed in fixed-size chunks so multi-gigabyte
// artifacts never load into memory.
package envelope

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"hash"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/tomtom215/custodia/internal/models"
)

// magic identifies files produced by this package.
var magic = []byte("BRBKENC1")

const (
	// version is the only format version this package reads or writes.
	version = 0x01

	saltLen = 16
	ivLen   = 16
	hmacLen = sha256.Size

	// headerLen is magic + version + salt + iv + iteration count.
	headerLen = len("BRBKENC1") + 1 + saltLen + ivLen + 4

	// DefaultIterations is the PBKDF2 iteration count written into new
	// envelopes. Decryption always honors the count stored in the header.
	DefaultIterations = 200_000

	// chunkSize bounds memory use while streaming.
	chunkSize = 1 << 20
)

// header carries the parameters needed to decrypt an envelope.
type header struct {
	salt       []byte
	iv         []byte
	iterations int
}

// deriveKeys stretches the password into an AES key and an HMAC key.
// The password must contain at least one non-whitespace character.
func deriveKeys(password string, salt []byte, iterations int) (encKey, macKey []byte, err error) {
	if strings.TrimSpace(password) == "" {
		return nil, nil, models.ErrCrypto.New("encryption password is required")
	}
	material := pbkdf2.Key([]byte(password), salt, iterations, 64, sha256.New)
	return material[:32], material[32:], nil
}

// IsEncryptedFile reports whether the file at path starts with the envelope
// magic bytes. Unreadable files report false.
func IsEncryptedFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, len(magic))
	if _, err := io.ReadFull(f, head); err != nil {
		return false
	}
	return bytes.Equal(head, magic)
}

// readHeader parses and validates the fixed-size envelope header.
func readHeader(r io.Reader) (*header, error) {
	buf := make([]byte, headerLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, models.ErrCrypto.New("encrypted backup is truncated (header)")
	}

	if !bytes.Equal(buf[:len(magic)], magic) {
		return nil, models.ErrCrypto.New("backup does not appear to be encrypted")
	}

	if buf[len(magic)] != version {
		return nil, models.ErrCrypto.New("unsupported encrypted backup version: %d", buf[len(magic)])
	}

	offset := len(magic) + 1
	h := &header{
		salt: buf[offset : offset+saltLen],
		iv:   buf[offset+saltLen : offset+saltLen+ivLen],
	}
	h.iterations = int(binary.BigEndian.Uint32(buf[offset+saltLen+ivLen:]))
	return h, nil
}

// EncryptFile encrypts the artifact at inputPath into outputPath using the
// given password. A partial output file is removed on any failure.
func EncryptFile(ctx context.Context, inputPath, outputPath, password string) error {
	return encryptFile(ctx, inputPath, outputPath, password, DefaultIterations)
}

func encryptFile(ctx context.Context, inputPath, outputPath, password string, iterations int) error {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return models.ErrCrypto.New("failed to generate salt: %v", err)
	}
	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return models.ErrCrypto.New("failed to generate IV: %v", err)
	}

	encKey, macKey, err := deriveKeys(password, salt, iterations)
	if err != nil {
		return err
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return models.ErrCrypto.New("failed to initialize cipher: %v", err)
	}
	stream := cipher.NewCTR(block, iv)
	mac := hmac.New(sha256.New, macKey)

	fin, err := os.Open(inputPath)
	if err != nil {
		return models.ErrCrypto.New("failed to open backup artifact: %v", err)
	}
	defer fin.Close()

	fout, err := os.Create(outputPath)
	if err != nil {
		return models.ErrCrypto.New("failed to create encrypted output: %v", err)
	}

	if err := writeEnvelope(ctx, fin, fout, stream, mac, salt, iv, iterations); err != nil {
		fout.Close()
		os.Remove(outputPath)
		return err
	}

	if err := fout.Close(); err != nil {
		os.Remove(outputPath)
		return models.ErrCrypto.New("failed to finalize encrypted output: %v", err)
	}
	return nil
}

// writeEnvelope streams header, ciphertext, and trailing HMAC to fout.
func writeEnvelope(ctx context.Context, fin io.Reader, fout io.Writer, stream cipher.Stream, mac hash.Hash, salt, iv []byte, iterations int) error {
	head := make([]byte, 0, headerLen)
	head = append(head, magic...)
	head = append(head, version)
	head = append(head, salt...)
	head = append(head, iv...)
	head = binary.BigEndian.AppendUint32(head, uint32(iterations))

	if _, err := fout.Write(head); err != nil {
		return models.ErrCrypto.New("failed to write envelope header: %v", err)
	}

	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := fin.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			stream.XORKeyStream(chunk, chunk)
			mac.Write(chunk)
			if _, err := fout.Write(chunk); err != nil {
				return models.ErrCrypto.New("failed to write ciphertext: %v", err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return models.ErrCrypto.New("failed to read backup artifact: %v", readErr)
		}
	}

	if _, err := fout.Write(mac.Sum(nil)); err != nil {
		return models.ErrCrypto.New("failed to write integrity tag: %v", err)
	}
	return nil
}

// DecryptFile decrypts the envelope at inputPath into outputPath. The
// plaintext is staged in a sibling .tmp file and renamed into place only
// after the integrity tag verifies, so outputPath never holds a partial or
// unauthenticated artifact.
func DecryptFile(ctx context.Context, inputPath, outputPath, password string) error {
	if strings.TrimSpace(password) == "" {
		return models.ErrCrypto.New("encryption password is required")
	}

	fin, err := os.Open(inputPath)
	if err != nil {
		return models.ErrCrypto.New("failed to open encrypted backup: %v", err)
	}
	defer fin.Close()

	h, err := readHeader(fin)
	if err != nil {
		return err
	}

	info, err := fin.Stat()
	if err != nil {
		return models.ErrCrypto.New("failed to stat encrypted backup: %v", err)
	}
	if info.Size() < int64(headerLen+hmacLen) {
		return models.ErrCrypto.New("encrypted backup is truncated")
	}
	ciphertextSize := info.Size() - int64(headerLen) - int64(hmacLen)

	encKey, macKey, err := deriveKeys(password, h.salt, h.iterations)
	if err != nil {
		return err
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return models.ErrCrypto.New("failed to initialize cipher: %v", err)
	}
	stream := cipher.NewCTR(block, h.iv)
	mac := hmac.New(sha256.New, macKey)

	tmpPath := outputPath + ".tmp"
	fout, err := os.Create(tmpPath)
	if err != nil {
		return models.ErrCrypto.New("failed to create decrypted output: %v", err)
	}

	if err := readEnvelope(ctx, fin, fout, stream, mac, ciphertextSize); err != nil {
		fout.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := fout.Close(); err != nil {
		os.Remove(tmpPath)
		return models.ErrCrypto.New("failed to finalize decrypted output: %v", err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(tmpPath)
		return models.ErrCrypto.New("failed to move decrypted output into place: %v", err)
	}
	return nil
}

// readEnvelope streams exactly ciphertextSize bytes of plaintext to fout and
// verifies the trailing tag. The tag covers the ciphertext, so verification
// happens after the full stream has been consumed.
func readEnvelope(ctx context.Context, fin io.Reader, fout io.Writer, stream cipher.Stream, mac hash.Hash, ciphertextSize int64) error {
	buf := make([]byte, chunkSize)
	remaining := ciphertextSize

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		toRead := int64(len(buf))
		if remaining < toRead {
			toRead = remaining
		}
		n, err := io.ReadFull(fin, buf[:toRead])
		if err != nil {
			return models.ErrCrypto.New("encrypted backup is truncated (ciphertext)")
		}
		remaining -= int64(n)

		chunk := buf[:n]
		mac.Write(chunk)
		stream.XORKeyStream(chunk, chunk)
		if _, err := fout.Write(chunk); err != nil {
			return models.ErrCrypto.New("failed to write decrypted output: %v", err)
		}
	}

	tag := make([]byte, hmacLen)
	if _, err := io.ReadFull(fin, tag); err != nil {
		return models.ErrCrypto.New("encrypted backup is truncated (HMAC)")
	}
	if !hmac.Equal(mac.Sum(nil), tag) {
		return models.ErrCrypto.New("invalid encryption password or corrupted backup")
	}
	return nil
}

// DecryptToTemp decrypts an envelope into a fresh temporary file and returns
// its path. The caller owns the file and must remove it. suffix defaults to
// ".decrypted".
func DecryptToTemp(ctx context.Context, encryptedPath, password, suffix string) (string, error) {
	if suffix == "" {
		suffix = ".decrypted"
	}

	tmp, err := os.CreateTemp("", "custodia-restore-*"+suffix)
	if err != nil {
		return "", models.ErrCrypto.New("failed to create temporary file: %v", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := DecryptFile(ctx, encryptedPath, tmpPath, password); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	return tmpPath, nil
}
