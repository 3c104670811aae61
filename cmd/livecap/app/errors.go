package app

import "errors"

var (
	errNotFound       = errors.New("not found")
	errUnknownMessage = errors.New("unknown provider message")
)
