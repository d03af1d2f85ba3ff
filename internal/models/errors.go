package models

import "errors"

var (
	ErrAccessDenied = errors.New("access denied")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrTransient    = errors.New("store unavailable")
	ErrConflict     = errors.New("already exists")
)
