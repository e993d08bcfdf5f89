package usecase

import "errors"

var (
	ErrJobNotFound       = errors.New("bulk job not found or expired")
	ErrJobBusy           = errors.New("bulk job chunk already in progress")
	ErrLogEntryNotFound  = errors.New("change log entry not found")
	ErrRevertUnsupported = errors.New("change log entry has no image or previous value to restore")
	ErrDocumentNotFound  = errors.New("document not found")
)
