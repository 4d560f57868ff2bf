package excel

import "errors"

var (
	// ErrMissingFilePath is returned when no workbook path is configured.
	ErrMissingFilePath = errors.New("file path is required")
)
