package encryption

import (
	"bytes"
	"errors"
	"slices"

	"save-go/internal/save"
)

// testPrefix marks values sealed by TestSealer.
var testPrefix = []byte("SAVESEAL:")

// TestSealer is a reversible, deterministic sealer for tests. It prefixes
// the plaintext with a marker and reverses its bytes, so sealed values never
// equal the plaintext while needing no key material.
type TestSealer struct {
	setupCalled bool
}

var _ save.Sealer = (*TestSealer)(nil)

func NewTestSealer() *TestSealer {
	return &TestSealer{}
}

func (s *TestSealer) Setup(string) error {
	s.setupCalled = true
	return nil
}

func (s *TestSealer) Seal(plaintext []byte) ([]byte, error) {
	body := slices.Clone(plaintext)
	slices.Reverse(body)
	return append(slices.Clone(testPrefix), body...), nil
}

func (s *TestSealer) Unlock(string) (save.Opener, error) {
	return TestOpener{}, nil
}

func (s *TestSealer) IsConfigured() bool { return true }

// TestOpener opens values sealed by TestSealer.
type TestOpener struct{}

func (TestOpener) Open(sealed []byte) ([]byte, error) {
	if !bytes.HasPrefix(sealed, testPrefix) {
		return nil, errors.New("invalid test seal prefix")
	}
	body := slices.Clone(sealed[len(testPrefix):])
	slices.Reverse(body)
	return body, nil
}
