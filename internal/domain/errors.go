package domain

import "errors"

var (
	ErrPermissionDenied     = errors.New("permission denied")
	ErrConfigurationMissing = errors.New("recordings folder is not configured")
	ErrRecordingNotFound    = errors.New("recording not found")
	ErrUpload               = errors.New("upload failed")
	ErrAuthExpired          = errors.New("authentication expired")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAlreadyUploaded      = errors.New("recording already uploaded")
	ErrNoActiveCall         = errors.New("no active call")
	ErrNotAuthenticated     = errors.New("not authenticated")
)
