package protocol

import "strings"

// ErrorCode is the suffix of an "ERROR:<code>" response.
type ErrorCode string

const (
	CodeInvalidMode                ErrorCode = "INVALID_MODE"
	CodeInvalidFilePath            ErrorCode = "INVALID_FILE_PATH"
	CodeInvalidCommand             ErrorCode = "INVALID_COMMAND"
	CodeFileAlreadyLocked          ErrorCode = "FILE_ALREADY_LOCKED"
	CodeAlreadyOpenInDifferentMode ErrorCode = "ALREADY_OPEN_IN_DIFFERENT_MODE"
	CodeFileNotOpen                ErrorCode = "FILE_NOT_OPEN"
	CodeIncorrectModeForRead       ErrorCode = "INCORRECT_MODE_FOR_READ"
	CodeIncorrectModeForWrite      ErrorCode = "INCORRECT_MODE_FOR_WRITE"
	CodeModeMismatchOnClose        ErrorCode = "MODE_MISMATCH_ON_CLOSE"
	CodeFailedToReadFile           ErrorCode = "FAILED_TO_READ_FILE"
	CodeFailedToWriteFile          ErrorCode = "FAILED_TO_WRITE_FILE"
)

const (
	StatusOK    = "OK"
	errorPrefix = "ERROR:"
)

// Frame renders the code the way it travels on the wire.
func (c ErrorCode) Frame() string {
	return errorPrefix + string(c)
}

// ParseErrorFrame extracts the code from an "ERROR:<code>" frame.
func ParseErrorFrame(frame string) (ErrorCode, bool) {
	if !strings.HasPrefix(frame, errorPrefix) {
		return "", false
	}
	return ErrorCode(strings.TrimPrefix(frame, errorPrefix)), true
}
