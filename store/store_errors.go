package store

import "errors"

var (
	HandleNotFoundErr = errors.New("no session handle stored")
)
