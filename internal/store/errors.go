package store

import "errors"

var (
	ErrIndexOutOfRange    = errors.New("index out of range")
	ErrLastPlaylist       = errors.New("cannot remove the last default playlist")
	ErrLastActivePlaylist = errors.New("cannot deactivate the last active playlist")
	ErrInvalidKey         = errors.New("unknown config key")
	ErrInvalidValue       = errors.New("invalid config value")
	ErrDuplicateToken     = errors.New("token already exists")
	ErrDuplicateUsername  = errors.New("username already has a token")
)
