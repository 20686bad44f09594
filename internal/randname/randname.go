// Package randname draws short random suffixes for auto-named cluster
// objects (namespaces, generateName-style resources).
package randname

import (
	"crypto/rand"
	"math/big"
)

// alphabet intentionally contains consonants and digits only: no vowels, so
// a generated string can't accidentally spell a word, and no characters
// invalid in a Kubernetes name.
const alphabet = "bcdfghjklmnpqrstvwxyz0123456789"

// Length is the number of characters drawn by Generate.
const Length = 5

// Generate returns Length characters drawn uniformly at random from
// alphabet. It is a pure function with respect to its caller: every call
// draws fresh randomness and never fails except on an exhausted entropy
// source, which crypto/rand treats as unrecoverable.
func Generate() string {
	out := make([]byte, Length)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out)
}

// WithPrefix returns prefix concatenated with a freshly generated suffix, the
// shape used for generateName-style namespace and resource creation.
func WithPrefix(prefix string) string {
	return prefix + Generate()
}
