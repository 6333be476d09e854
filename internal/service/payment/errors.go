package payment

import "errors"

var (
	ErrUnknownMethod  = errors.New("payment: unknown payment method")
	ErrProviderFailed = errors.New("payment: provider request failed")
	ErrNotCompleted   = errors.New("payment: payment not completed")
)
