package perm

import "errors"

var (
	ErrInvalidInput     = errors.New("perm: invalid input")
	ErrNotFound         = errors.New("perm: not found")
	ErrConflict         = errors.New("perm: resource conflict")
	ErrPermissionDenied = errors.New("perm: permission denied")
	ErrUnauthorized     = errors.New("perm: unauthorized")
)
