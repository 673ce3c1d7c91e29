package checksum

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
)

const bufferSize = 64 * 1024 // 64KB buffer

// CalculateFileSHA256 calculates SHA-256 checksum of a file and returns base64 encoded string
func CalculateFileSHA256(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	return CalculateSHA256(file)
}

// CalculateSHA256 calculates SHA-256 checksum from reader and returns base64 encoded string
func CalculateSHA256(r io.Reader) (string, error) {
	hash := sha256.New()
	buffer := make([]byte, bufferSize)

	if _, err := io.CopyBuffer(hash, r, buffer); err != nil {
		return "", fmt.Errorf("read: %w", err)
	}

	return base64.StdEncoding.EncodeToString(hash.Sum(nil)), nil
}

// SameContent reports whether the two files hold identical bytes.
// Files of different size are rejected without reading them.
func SameContent(pathA, pathB string) (bool, error) {
	infoA, err := os.Stat(pathA)
	if err != nil {
		return false, err
	}
	infoB, err := os.Stat(pathB)
	if err != nil {
		return false, err
	}
	if infoA.Size() != infoB.Size() {
		return false, nil
	}

	sumA, err := CalculateFileSHA256(pathA)
	if err != nil {
		return false, err
	}
	sumB, err := CalculateFileSHA256(pathB)
	if err != nil {
		return false, err
	}
	return CompareChecksums(sumA, sumB), nil
}

// CompareChecksums compares two base64 encoded checksums
func CompareChecksums(checksum1, checksum2 string) bool {
	return checksum1 == checksum2
}
