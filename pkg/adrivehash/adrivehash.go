// Package adrivehash computes the digests the open API uses to decide whether
// a file can be rapid-uploaded: a pre-hash over the first kilobyte, a full
// content hash, and a short proof code bound to the caller's access token.
//
// Both hashes are SHA-1 rendered as uppercase hex, which is the form the
// create endpoint compares against. The proof code is base64 of at most
// eight bytes of the file read at an offset derived from md5(access token).
package adrivehash

import (
	"crypto/md5" //nolint:gosec // the protocol defines the proof offset via md5
	"crypto/sha1" //nolint:gosec // the protocol's content hash is sha1
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"
)

const (
	// PreHashSize is the number of leading bytes covered by the pre-hash.
	PreHashSize = 1024

	// BlockSize is the read buffer used while streaming the content hash.
	BlockSize = 10 * 1024

	// ProofSize is the maximum number of raw bytes in a proof code.
	ProofSize = 8

	// Name is the content_hash_name value sent alongside a content hash.
	Name = "sha1"

	// ProofVersion is the proof_version value sent alongside a proof code.
	ProofVersion = "v1"
)

// New returns the hash.Hash used for both pre-hash and content hash.
func New() hash.Hash {
	return sha1.New() //nolint:gosec // protocol-mandated
}

// Hex renders a digest the way the open API expects it: uppercase hex.
func Hex(sum []byte) string {
	return strings.ToUpper(hex.EncodeToString(sum))
}

// PreHash digests at most the first PreHashSize bytes of r. The cursor is
// rewound to the start first and is left after the bytes read, so callers
// must rewind again before further sequential reads.
func PreHash(r io.ReadSeeker) (string, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("adrivehash: rewinding for pre-hash: %w", err)
	}

	buf := make([]byte, PreHashSize)

	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("adrivehash: reading pre-hash prefix: %w", err)
	}

	h := New()
	h.Write(buf[:n])

	return Hex(h.Sum(nil)), nil
}

// ContentHash digests all of r in BlockSize reads. The cursor is rewound to
// the start first because a preceding PreHash leaves it mid-file.
func ContentHash(r io.ReadSeeker) (string, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("adrivehash: rewinding for content hash: %w", err)
	}

	h := New()
	buf := make([]byte, BlockSize)

	if _, err := io.CopyBuffer(h, struct{ io.Reader }{r}, buf); err != nil {
		return "", fmt.Errorf("adrivehash: reading content: %w", err)
	}

	return Hex(h.Sum(nil)), nil
}

// ProofOffset returns the byte offset a proof code is read from for a file
// of the given size: the first eight bytes of md5(accessToken) as a
// big-endian integer, modulo size. size must be positive.
func ProofOffset(size int64, accessToken string) int64 {
	sum := md5.Sum([]byte(accessToken)) //nolint:gosec // protocol-mandated
	v := binary.BigEndian.Uint64(sum[:8])

	return int64(v % uint64(size))
}

// ProofCode reads min(ProofSize, size-offset) bytes at ProofOffset and returns
// them base64-encoded. A zero-length file has an empty proof code.
func ProofCode(r io.ReaderAt, size int64, accessToken string) (string, error) {
	if size <= 0 {
		return "", nil
	}

	offset := ProofOffset(size, accessToken)
	buf := make([]byte, min(ProofSize, size-offset))

	n, err := r.ReadAt(buf, offset)
	if n < len(buf) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}

		return "", fmt.Errorf("adrivehash: reading proof bytes at offset %d: %w", offset, err)
	}

	return base64.StdEncoding.EncodeToString(buf), nil
}
