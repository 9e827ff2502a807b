package gitfoil

import "fmt"

// Input validation helpers shared by the cipher engines and key handling.

// validateKey checks that a key is non-nil and has the expected size.
func validateKey(key []byte, expectedSize int) error {
	if key == nil {
		return fmt.Errorf("key cannot be nil")
	}
	if len(key) != expectedSize {
		return fmt.Errorf("invalid key size: got %d bytes, expected %d bytes", len(key), expectedSize)
	}
	return nil
}

// validateNonce checks that a nonce is non-nil and has the expected size.
func validateNonce(nonce []byte, expectedSize int) error {
	if nonce == nil {
		return fmt.Errorf("nonce cannot be nil")
	}
	if len(nonce) != expectedSize {
		return fmt.Errorf("invalid nonce size: got %d bytes, expected %d bytes", len(nonce), expectedSize)
	}
	return nil
}

// validateFilePath checks that a file path is not empty. The path is bound
// into every layer's associated data, so an empty path would weaken the
// cross-file substitution guarantee.
func validateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if len(path) > 65535 {
		return fmt.Errorf("file path too long: %d bytes", len(path))
	}
	return nil
}

// zeroBytes overwrites b with zeros. Best effort: the runtime may have
// copied the data elsewhere.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
