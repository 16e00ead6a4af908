package errors

import "errors"

var (
	ErrInvalidURL           = errors.New("invalid download URL")
	ErrInsufficientDisk     = errors.New("insufficient free disk space")
	ErrQueueFull            = errors.New("download queue is full")
	ErrTaskNotFound         = errors.New("task not found")
	ErrNotPaused            = errors.New("task is not paused")
	ErrAlreadyTerminal      = errors.New("task already in a terminal state")
	ErrManagerClosed        = errors.New("download manager is shut down")
	ErrStateFileCorrupt     = errors.New("state file is corrupt")
	ErrTransportUnavailable = errors.New("transport unavailable")
)
