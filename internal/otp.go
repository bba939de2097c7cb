package internal

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// The base alphabet excludes characters that are easily confused when read
// from an email: 0/O/o, 1/l/I.
const (
	otpAlphabet = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	otpSpecials = "!@#$%&*+?"

	otpBaseLength = 10
)

// OneTimePasswordLength is the length of every generated secret: the base
// alphabet portion plus one special character.
const OneTimePasswordLength = otpBaseLength + 1

// NewOneTimePassword generates an 11-character secret: 10 characters from
// the unambiguous alphabet with one special character inserted at a
// uniformly random position. All randomness comes from crypto/rand.
func NewOneTimePassword() (string, error) {
	var b strings.Builder
	b.Grow(OneTimePasswordLength)

	for i := 0; i < otpBaseLength; i++ {
		idx, err := randomIndex(len(otpAlphabet))
		if err != nil {
			return "", err
		}
		b.WriteByte(otpAlphabet[idx])
	}
	base := b.String()

	specialIdx, err := randomIndex(len(otpSpecials))
	if err != nil {
		return "", err
	}
	pos, err := randomIndex(otpBaseLength + 1)
	if err != nil {
		return "", err
	}

	return base[:pos] + string(otpSpecials[specialIdx]) + base[pos:], nil
}

func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
