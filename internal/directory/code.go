package directory

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/dustfall/arcade-backend/pkg/protocol"
)

// codeAlphabet drops 0/O and 1/I so codes survive being read aloud. At 32
// symbols a random byte maps onto it without modulo bias.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 6

// newCode draws a room code from crypto/rand.
func newCode() (string, error) {
	var buf [codeLength]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("room code entropy: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf[:]), nil
}

// NormalizeCode upper-cases and validates user input before any lookup.
func NormalizeCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != codeLength {
		return "", protocol.NewError(protocol.CodeInvalidRoomCode,
			fmt.Sprintf("room codes are %d characters", codeLength))
	}
	for _, r := range code {
		if !strings.ContainsRune(codeAlphabet, r) {
			return "", protocol.NewError(protocol.CodeInvalidRoomCode, "room code contains invalid characters")
		}
	}
	return code, nil
}
