package errors

import "fmt"

// API error codes returned to callers in the {error, code} envelope.
const (
	CodeMissingField    = "MISSING_FIELD"
	CodeUnknownToken    = "UNKNOWN_TOKEN"
	CodeInvalidAmount   = "INVALID_AMOUNT"
	CodeInvalidDeadline = "INVALID_DEADLINE"
	CodeInvalidReward   = "INVALID_REWARD"
	CodeInvalidStatus   = "INVALID_STATUS"
	CodeForbidden       = "FORBIDDEN"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeNotFound        = "NOT_FOUND"
	CodeInternal        = "INTERNAL_ERROR"
)

type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code, message string, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: defaultStatus(code),
		Err:        err,
	}
}

func Newf(code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

func defaultStatus(code string) int {
	switch code {
	case CodeUnauthorized:
		return 401
	case CodeForbidden:
		return 403
	case CodeNotFound:
		return 404
	case CodeInternal:
		return 500
	default:
		return 400
	}
}

// 内部流程错误码（不会直接返回给API调用方）
var (
	ErrConfigLoad      = "CONFIG_LOAD_ERROR"
	ErrDatabaseConnect = "DATABASE_CONNECT_ERROR"
	ErrRPConnect       = "RPC_CONNECT_ERROR"
	ErrBlockFetch      = "BLOCK_FETCH_ERROR"
	ErrEventParse      = "EVENT_PARSE_ERROR"
	ErrMetadataUpload  = "METADATA_UPLOAD_ERROR"
	ErrStatsUpdate     = "STATS_UPDATE_ERROR"
)
