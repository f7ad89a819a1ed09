package model

import "errors"

var (
	ErrInvalidInput      = errors.New("no surface has both an image and positive dimensions")
	ErrClassifierFailure = errors.New("color analysis failed")
	ErrIndexOutOfRange   = errors.New("result index out of range")
	ErrLastSurface       = errors.New("at least one surface is required")
	ErrSurfaceNotFound   = errors.New("surface not found")
	ErrInvalidSurface    = errors.New("surface dimensions must be finite and non-negative")
	ErrSessionNotFound   = errors.New("session not found")
	ErrRunInProgress     = errors.New("an aggregation run is already in progress")
	ErrUnknownSelection  = errors.New("unknown vendor or product line")
	ErrColorNotInCatalog = errors.New("color not in the selected catalog")
	ErrSnapshotNotFound  = errors.New("snapshot not found")
)
