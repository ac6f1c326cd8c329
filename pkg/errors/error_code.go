package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidCandle        ErrorCode = 100
	ErrCodeInvalidSpec          ErrorCode = 101
	ErrCodeInvalidPeriod        ErrorCode = 102
	ErrCodeMissingParameter     ErrorCode = 103
	ErrCodeInvalidTimeframe     ErrorCode = 104
	ErrCodeInvalidConfiguration ErrorCode = 105
	ErrCodeInvalidParameter     ErrorCode = 106

	// Registry/graph errors (200-299)
	ErrCodeMissingAdapter     ErrorCode = 200
	ErrCodeCircularDependency ErrorCode = 201
	ErrCodeMissingDependency  ErrorCode = 202

	// Compute errors (300-399)
	ErrCodeInsufficientData ErrorCode = 300
	ErrCodeComputeFailed    ErrorCode = 301
	ErrCodeStateMismatch    ErrorCode = 302

	// Lifecycle errors (400-499)
	ErrCodeDuplicateFinalization ErrorCode = 400
	ErrCodeStaleBar              ErrorCode = 401

	// Market data errors (500-599)
	ErrCodeHistoryFetchFailed    ErrorCode = 500
	ErrCodeStreamFailed          ErrorCode = 501
	ErrCodeReconnectExhausted    ErrorCode = 502
	ErrCodeMarketDataParseFailed ErrorCode = 503
)
