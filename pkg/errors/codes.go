package errors

// ErrorCodeInfo contains metadata about an enhancement error code.
type ErrorCodeInfo struct {
	Code        ErrorCode
	Retryable   bool
	Description string
}

// ErrorCodeRegistry maps error codes to their metadata. Retryable only marks
// failures worth offering a manual retry for; nothing retries automatically.
var ErrorCodeRegistry = map[ErrorCode]ErrorCodeInfo{
	ErrTimeout: {
		Code:        ErrTimeout,
		Retryable:   true,
		Description: "Enhancement request exceeded its time limit",
	},
	ErrRateLimit: {
		Code:        ErrRateLimit,
		Retryable:   true,
		Description: "Enhancement provider rate limit exceeded",
	},
	ErrUnavailable: {
		Code:        ErrUnavailable,
		Retryable:   true,
		Description: "Enhancement provider unreachable or unavailable",
	},
	ErrBadStatus: {
		Code:        ErrBadStatus,
		Retryable:   false,
		Description: "Enhancement provider returned a non-success status",
	},
	ErrParseError: {
		Code:        ErrParseError,
		Retryable:   false,
		Description: "Enhancement response was malformed",
	},
	ErrCanceled: {
		Code:        ErrCanceled,
		Retryable:   false,
		Description: "Enhancement cancelled because the session closed",
	},
	ErrInternal: {
		Code:        ErrInternal,
		Retryable:   false,
		Description: "Unclassified enhancement error",
	},
}

// IsRetryable returns true if the given code represents a transient failure.
func IsRetryable(code ErrorCode) bool {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Retryable
	}
	return false
}

// GetDescription returns the human-readable description for the given error code.
func GetDescription(code ErrorCode) string {
	if info, ok := ErrorCodeRegistry[code]; ok {
		return info.Description
	}
	return "Unknown error"
}
