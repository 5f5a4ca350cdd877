package util

import "errors"

var (
	ErrPermissionDenied     = errors.New("permission denied")
	ErrAreaNotFound         = errors.New("grading area not found")
	ErrDefinitionNotFound   = errors.New("grading definition not found")
	ErrInstanceNotFound     = errors.New("grading instance not found")
	ErrSessionNotFound      = errors.New("editor session not found or expired")
	ErrUnresolvedParent     = errors.New("parent node has no resolved id")
	ErrDefinitionNotReady   = errors.New("definition is not ready for grading")
	ErrInstanceNotEditable  = errors.New("instance is archived and cannot be filled")
	ErrLevelScoreOutOfRange = errors.New("level score outside the level range")
	ErrMissingFilling       = errors.New("every criterion needs a selected level")
	ErrInvalidBackup        = errors.New("invalid backup archive")
)
