package securepack

import "errors"

// Format errors: the archive cannot be understood as a secure package.
var (
	ErrInvalidArchive     = errors.New("securepack: not a valid package archive")
	ErrManifestNotFound   = errors.New("securepack: manifest.json not found")
	ErrInvalidManifest    = errors.New("securepack: malformed manifest")
	ErrInvalidRecipients  = errors.New("securepack: malformed recipients block")
	ErrUnsupportedVersion = errors.New("securepack: unsupported format version")
)

// Integrity errors: the archive parses but its contents do not match what
// the manifest committed to.
var (
	ErrInventoryMismatch      = errors.New("securepack: file inventory hash mismatch")
	ErrUnregisteredEntry      = errors.New("securepack: archive entry not in file inventory")
	ErrMissingEntry           = errors.New("securepack: inventoried entry missing from archive")
	ErrCiphertextHashMismatch = errors.New("securepack: payload ciphertext hash mismatch")
	ErrPlaintextHashMismatch  = errors.New("securepack: decrypted plaintext hash mismatch")
)

// Authentication errors.
var (
	ErrSignatureInvalid = errors.New("securepack: manifest signature verification failed")
)

// Recipient errors.
var (
	ErrRecipientNotFound = errors.New("securepack: recipient not present in package")
	ErrNoWrappedKey      = errors.New("securepack: no wrapped key for payload")
	ErrNoRecipients      = errors.New("securepack: package must have at least one recipient")
)
