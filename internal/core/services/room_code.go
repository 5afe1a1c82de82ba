package services

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/MeNameek/camerasystem/internal/core/domain"
)

const (
	DefaultRoomCodeLength = 6
	// Ambiguous characters (0/O, 1/I) are left out.
	DefaultRoomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

type RoomCodeGenerator struct {
	length   int
	alphabet string
}

func NewRoomCodeGenerator(length int, alphabet string) *RoomCodeGenerator {
	if length <= 0 {
		length = DefaultRoomCodeLength
	}
	if alphabet == "" {
		alphabet = DefaultRoomCodeAlphabet
	}
	return &RoomCodeGenerator{length: length, alphabet: alphabet}
}

// Generate returns a random, already normalized room code.
func (g *RoomCodeGenerator) Generate() (domain.RoomCode, error) {
	code := make([]byte, g.length)
	max := big.NewInt(int64(len(g.alphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate room code: %w", err)
		}
		code[i] = g.alphabet[n.Int64()]
	}
	return domain.NormalizeRoomCode(string(code)), nil
}
