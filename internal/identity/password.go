// internal/identity/password.go
package identity

import (
	"crypto/rand"
	"math/big"
)

const (
	passwordLength = 12

	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars  = "0123456789"
	symbolChars = "!@#$%^&*()_+-=[]{}|;:,.<>?"
)

// GeneratePassword returns a 12-character password containing at least one
// uppercase letter, one lowercase letter, one digit and one symbol, with the
// remaining characters drawn uniformly from the union of those classes and
// the whole string shuffled.
func GeneratePassword() string {
	all := lowerChars + upperChars + digitChars + symbolChars

	pw := make([]byte, 0, passwordLength)
	pw = append(pw,
		upperChars[randomIndex(len(upperChars))],
		lowerChars[randomIndex(len(lowerChars))],
		digitChars[randomIndex(len(digitChars))],
		symbolChars[randomIndex(len(symbolChars))],
	)
	for len(pw) < passwordLength {
		pw = append(pw, all[randomIndex(len(all))])
	}

	// Fisher-Yates so the mandatory classes are not positionally predictable.
	for i := len(pw) - 1; i > 0; i-- {
		j := randomIndex(i + 1)
		pw[i], pw[j] = pw[j], pw[i]
	}
	return string(pw)
}

// randomIndex draws a uniform index in [0, n) from crypto/rand. Passwords
// are secrets, so the math/rand generators are not good enough here.
func randomIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand only fails when the platform source is broken.
		panic(err)
	}
	return int(v.Int64())
}
