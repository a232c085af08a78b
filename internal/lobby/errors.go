package lobby

import "errors"

var (
	ErrStakeTooLow         = errors.New("stake below table minimum")
	ErrInsufficientBalance = errors.New("stake exceeds available balance")
	ErrEmptyRoomCode       = errors.New("room code required")
	ErrBusy                = errors.New("matchmaking already in progress")
)
