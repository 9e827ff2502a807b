// Package gitfoil makes Git-tracked files unreadable at rest while keeping
// them plaintext in the working tree, via Git's clean/smudge filter
// protocol.
//
// # Overview
//
// The package provides three tightly coupled subsystems:
//
//   - A layered authenticated-encryption pipeline that composes six
//     independent AEAD ciphers into one onion, so a single broken
//     primitive does not expose file content.
//   - Hybrid (classical + post-quantum) key material: 32-byte classical
//     random keys alongside a Kyber1024 key pair, reduced to one 32-byte
//     master key by SHA-512.
//   - At-rest protection and lifecycle management of that keypair:
//     PBKDF2-based password wrapping, atomic permission-restricted
//     persistence, and safe migration between plaintext and
//     password-protected storage.
//
// # Cipher Pipeline
//
// Files are encrypted through six layers in fixed order, innermost first:
//
//  1. AES-256-GCM
//  2. AES-SIV (RFC 5297)
//  3. ChaCha20-Poly1305
//  4. XChaCha20-Poly1305
//  5. Ascon-128a
//  6. AES-256-CTR + HMAC-SHA-256
//
// Each layer uses a subkey derived from the master key with
// HKDF-SHA-256, domain separated by layer index and cipher name, a fresh
// random nonce, and associated data binding the file path and layer
// index. Ciphertext from one file can never be substituted for
// another's, and no two layers ever share key material.
//
// # Basic Usage
//
//	fs := osfs.New() // any absfs.FileSystem
//	store, err := gitfoil.NewKeyStore(fs, "/repo/.git/git_foil")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	manager, err := gitfoil.NewManager(store, &gitfoil.Options{
//	    Passwords: &gitfoil.StaticPasswordProvider{Password: password},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	filter, err := gitfoil.NewFilter(manager, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Git clean: plaintext in, encrypted blob out.
//	blob, err := filter.Clean(content, "secrets/api.env")
//
//	// Git smudge: encrypted blob in, plaintext out. Content that was
//	// never encrypted passes through unchanged.
//	content, err = filter.Smudge(blob, "secrets/api.env")
//
// # Key Storage
//
// Exactly one of two files under the repository's private metadata
// directory is authoritative at any time:
//
//   - master.key - the plaintext keypair (mode 0600)
//   - master.key.enc - the keypair wrapped under a password-derived KEK
//     (PBKDF2-HMAC-SHA512, default 600,000 iterations, stored in-band;
//     AES-256-GCM)
//
// Writes are atomic: content lands in an exclusively-created temp file,
// is flushed and restricted to mode 0600, then renamed into place.
// Migration between modes always creates a timestamped backup first, and
// backups are never deleted by gitfoil.
//
// # Security Considerations
//
// Protected against:
//   - Disclosure of tracked file content at rest
//   - Tampering and corruption of encrypted content (every layer
//     authenticates)
//   - Ciphertext substitution across files or layers (path and layer
//     index bound into the AAD)
//   - Offline password guessing on wrapped key files (tunable PBKDF2)
//
// Not protected against:
//   - Memory disclosure while key material is unlocked in-process
//   - Compromised systems with keyloggers or malware
//   - Metadata leakage (file names, sizes, change frequency)
//
// Zeroization of key material is best effort; the Go runtime may retain
// copies.
package gitfoil
