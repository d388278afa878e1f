package errors

import "errors"

var (
	ErrInvalidCallID      = errors.New("call id is required")
	ErrInvalidVotePayload = errors.New("invalid vote payload")
	ErrRegisterClosed     = errors.New("vote register is closed")
	ErrSnapshotCorrupt    = errors.New("register snapshot is corrupt")
	ErrConflict           = errors.New("register conflict")
)
