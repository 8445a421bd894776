package signal

import "errors"

var (
	ErrMissingType  = errors.New("signal message without type")
	ErrEmptyPayload = errors.New("signal message has no payload")
)
