package webhook

import "errors"

var (
	ErrInvalidConfiguration = errors.New("webhook: invalid configuration")
	ErrInvalidPayload       = errors.New("webhook: invalid payload")
	ErrInvalidSignature     = errors.New("webhook: signature verification failed")
	ErrSignatureExpired     = errors.New("webhook: signature timestamp outside accepted window")
)
