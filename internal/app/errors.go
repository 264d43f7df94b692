package app

import "errors"

// ErrNotFound and related errors describe lookup and import failures.
var (
	ErrNotFound      = errors.New("not found")
	ErrNoActiveScan  = errors.New("no active scan")
	ErrImportInvalid = errors.New("invalid snapshot")
)
