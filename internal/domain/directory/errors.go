package directory

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEmail = errors.New("email already in use")
	ErrDuplicateCode  = errors.New("employee code already in use")
	ErrSelfArchive    = errors.New("you cannot archive yourself")
)
