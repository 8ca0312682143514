package apperrors

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrSecretNotFound         = errors.New("secret not found")
	ErrUnsafeTableName        = errors.New("table name contains a quote character")
	ErrReadOnlyViolation      = errors.New("statement is not read-only")
	ErrMultipleStatements     = errors.New("multiple SQL statements not allowed; only single statements are permitted")
	ErrCredentialsKeyMismatch = errors.New("secret password was encrypted with a different key")
)
