package save

// Sealer protects backend secrets stored inside Space records. Sealing only
// needs the public key; opening a sealed value requires unlocking the private
// key with the user's passphrase.
type Sealer interface {
	// Setup performs one-time key generation. Called during `save config init`.
	Setup(passphrase string) error

	// Seal encrypts plaintext for storage.
	Seal(plaintext []byte) ([]byte, error)

	// Unlock decrypts the private key and returns an Opener for the session.
	Unlock(passphrase string) (Opener, error)

	// IsConfigured returns true if the key material exists.
	IsConfigured() bool
}

// Opener decrypts sealed values. The unlocked key is held in memory only.
type Opener interface {
	Open(sealed []byte) ([]byte, error)
}
