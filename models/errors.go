package models

import "errors"

var (
	ErrInvalidFieldValue     = errors.New("invalid field value")
	ErrUnscopedQuery         = errors.New("query must be scoped by chatId or msgId")
	ErrInvalidCursor         = errors.New("invalid cursor")
	ErrIndexCreationFailed   = errors.New("index creation failed")
	ErrInsufficientPrivilege = errors.New("insufficient privilege")
	ErrTransientConnectivity = errors.New("transient connectivity failure")
	ErrMessageNotFound       = errors.New("message not found")
	ErrStatusRegression      = errors.New("message status can only move forward")
	ErrDuplicateMessage      = errors.New("message already exists")
)
