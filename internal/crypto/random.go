package crypto

import (
	"crypto/rand"
	"fmt"
	"io"
)

// randReader is the random source for salts, nonces and signatures.
// It can be overridden for testing.
var randReader io.Reader = rand.Reader

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return nil, fmt.Errorf("%w: read random: %v", ErrCryptoProvider, err)
	}
	return b, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
