package cryptox

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
)

// ComputePublicCode derives the short numeric code people read aloud to
// confirm an account key, e.g. "1234.5678.9012.3456".
func ComputePublicCode(publicKey string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(publicKey)
	if err != nil {
		return "", common.ErrInvalidPublicKey
	}
	sum := sha1.Sum(raw)
	n := binary.BigEndian.Uint64(sum[:8]) % 10_000_000_000_000_000
	return FormatPublicCode(fmt.Sprintf("%016d", n)), nil
}

// FormatPublicCode groups digits in fours separated by dots.
func FormatPublicCode(code string) string {
	var b strings.Builder
	for i, r := range code {
		if i > 0 && i%4 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return b.String()
}
