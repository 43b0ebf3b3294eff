package services

import "errors"

var (
	ErrConfigNotFound   = errors.New("bot configuration not found")
	ErrQRUnavailable    = errors.New("failed to generate QR code, please try again")
	ErrInstanceRequired = errors.New("instanceName is required")
	ErrBotIDRequired    = errors.New("botId is required")
	ErrInstanceNotFound = errors.New("instance not found")
)
