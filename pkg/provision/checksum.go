package provision

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// Supported digest algorithms.
const (
	AlgorithmMD5    = "md5"
	AlgorithmSHA256 = "sha256"
	AlgorithmSHA512 = "sha512"
)

// Checksum is an expected digest of an archive.
type Checksum struct {
	Algorithm string
	Hex       string
}

// ParseChecksum parses "algo:hex". A bare hex string is accepted and its algorithm is
// inferred from the length. An empty string yields the zero Checksum.
func ParseChecksum(s string) (Checksum, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Checksum{}, nil
	}

	algo, value, found := strings.Cut(s, ":")
	if !found {
		value = s
		switch len(s) {
		case md5.Size * 2:
			algo = AlgorithmMD5
		case sha256.Size * 2:
			algo = AlgorithmSHA256
		case sha512.Size * 2:
			algo = AlgorithmSHA512
		default:
			return Checksum{}, fmt.Errorf("cannot infer digest algorithm from %d hex characters", len(s))
		}
	}

	algo = strings.ToLower(algo)
	value = strings.ToLower(value)

	size, err := digestSize(algo)
	if err != nil {
		return Checksum{}, err
	}
	if len(value) != size*2 {
		return Checksum{}, fmt.Errorf("%s digest must be %d hex characters, got %d", algo, size*2, len(value))
	}
	if _, err := hex.DecodeString(value); err != nil {
		return Checksum{}, fmt.Errorf("invalid %s digest: %w", algo, err)
	}

	return Checksum{Algorithm: algo, Hex: value}, nil
}

// IsZero reports whether no digest was configured.
func (c Checksum) IsZero() bool {
	return c.Hex == ""
}

// String renders the checksum as "algo:hex".
func (c Checksum) String() string {
	if c.IsZero() {
		return ""
	}
	return c.Algorithm + ":" + c.Hex
}

// Compute returns the hex digest of data using the checksum's algorithm.
func (c Checksum) Compute(data []byte) (string, error) {
	h, err := newHash(c.Algorithm)
	if err != nil {
		return "", err
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify compares the digest of data with the expected value. A mismatch returns an
// integrity error naming both values.
func (c Checksum) Verify(data []byte) error {
	actual, err := c.Compute(data)
	if err != nil {
		return NewConfigError("unusable checksum", err)
	}
	if actual != c.Hex {
		return NewIntegrityError(c.Algorithm, c.Hex, actual)
	}
	return nil
}

// SHA256Hex returns the hex SHA-256 of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newHash(algo string) (hash.Hash, error) {
	switch algo {
	case AlgorithmMD5:
		return md5.New(), nil
	case AlgorithmSHA256:
		return sha256.New(), nil
	case AlgorithmSHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported digest algorithm: %s", algo)
	}
}

func digestSize(algo string) (int, error) {
	h, err := newHash(algo)
	if err != nil {
		return 0, err
	}
	return h.Size(), nil
}
