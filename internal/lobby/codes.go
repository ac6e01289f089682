package lobby

import "crypto/rand"

const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// newRoomCode returns a short join code. Ambiguous glyphs (I, L, O, 0, 1)
// are excluded from the alphabet.
func newRoomCode() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return "RM-" + string(buf)
}
