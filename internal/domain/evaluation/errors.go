package evaluation

import "errors"

var (
	ErrGateClosed = errors.New("evaluations are currently disabled by the manager")
	ErrNotFound   = errors.New("evaluation resource not found")
)
