package domain

import "errors"

var (
	ErrInvalidID         = errors.New("invalid id")
	ErrEmptyText         = errors.New("empty task text")
	ErrEmptySplit        = errors.New("empty split input")
	ErrInvalidLevel      = errors.New("invalid level")
	ErrInvalidResistance = errors.New("invalid resistance")
	ErrInvalidDirection  = errors.New("invalid scan direction")
	ErrInvalidSplitMode  = errors.New("invalid split mode")
	ErrEmptyScan         = errors.New("no tasks to scan")
)
