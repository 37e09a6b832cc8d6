package common

// WipeByteArray zeroes b in place. Used for passphrases and key material.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
