package docs

import "errors"

var (
	ErrInvalidInput = errors.New("docs: invalid input")
	ErrNotFound     = errors.New("docs: not found")
	ErrConflict     = errors.New("docs: resource conflict")
	ErrAccessDenied = errors.New("docs: access denied")
)
