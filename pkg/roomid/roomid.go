// Package roomid generates short room ids from the random part of a ULID.
package roomid

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// entropyChars is the length of the random part of an encoded ULID.
const entropyChars = 16

type Generator struct{}

func New() *Generator {
	return &Generator{}
}

// GenerateRandomString returns length lowercase Crockford base32 characters.
// Up to 16 characters come from the ULID entropy only; longer ids include the
// timestamp prefix and are capped at the full 26 character ULID.
func (g Generator) GenerateRandomString(length int) string {
	id := strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String())

	if length <= 0 {
		return ""
	}
	if length > len(id) {
		length = len(id)
	}

	return id[len(id)-length:]
}
