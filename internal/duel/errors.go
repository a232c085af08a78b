package duel

import "errors"

var (
	ErrNotPrivileged = errors.New("player is not privileged")
	ErrBadDieValue   = errors.New("die value must be 1..6")
)
