/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package yellowcar

import "errors"

var (
	// ErrNotFound means a game, player, event or challenge id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrTooFast means the player scored again inside the cooldown.
	ErrTooFast = errors.New("too fast")
	// ErrConflict means the operation collides with current game state,
	// such as a second concurrent challenge.
	ErrConflict = errors.New("conflict")
	// ErrInvalid means the request itself is malformed.
	ErrInvalid = errors.New("invalid request")
)
