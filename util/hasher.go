package util

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"github.com/taigrr/colorhash"
)

// Hashes a file and returns the hash as a hex string
func GetFileHash(path string) (hash string, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", ErrExpectedFile
	}
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	return GetHash(file)
}

// GetHash calculates the SHA-256 hash of data from an io.Reader.
// It returns the hash as a hexadecimal string.
func GetHash(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// BucketIndex maps a string onto one of n buckets using its color hash. The
// same input always lands in the same bucket.
func BucketIndex(s string, n int) (int, error) {
	if n <= 0 {
		return 0, ErrNoBuckets
	}
	return int(uint(colorhash.HashString(s)) % uint(n)), nil
}

// BucketName returns the directory name for the bucket of s, e.g. "b042".
func BucketName(s string, n int) (string, error) {
	i, err := BucketIndex(s, n)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("b%03d", i), nil
}
