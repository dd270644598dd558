package domain

import "errors"

var (
	ErrAuthCodeNotFound    = errors.New("authorization code not found")
	ErrAuthCodeAlreadyUsed = errors.New("authorization code already used")
	ErrCorruptAuthCode     = errors.New("stored authorization code is corrupt")
	ErrSessionNotFound     = errors.New("session not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrClientNotFound      = errors.New("client not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
)
