/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package yellowcar

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

const (
	gameIDLength  = 8
	gameIDLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// NewGameID returns a random 8-character alphanumeric game id.
func NewGameID() (string, error) {
	buf := make([]byte, gameIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("game id: %w", err)
	}
	out := make([]byte, gameIDLength)
	for i := range out {
		out[i] = gameIDLetters[int(buf[i])%len(gameIDLetters)]
	}
	return string(out), nil
}

func newID() string {
	return uuid.NewString()
}
