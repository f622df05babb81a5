package app

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	inviteAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// InviteCodeLength is the number of characters in an invite code.
	InviteCodeLength = 6
)

// NewInviteCode returns a random code over [A-Z0-9].
func NewInviteCode() (string, error) {
	var b strings.Builder
	b.Grow(InviteCodeLength)
	base := big.NewInt(int64(len(inviteAlphabet)))
	for i := 0; i < InviteCodeLength; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		b.WriteByte(inviteAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeInviteCode makes code lookups case-insensitive.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
