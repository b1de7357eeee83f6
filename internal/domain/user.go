// Package domain holds identifiers and value types shared by every layer.
package domain

import (
	"errors"
)

const (
	MaxUserIDLen = 64
)

var (
	ErrEmptyID   = errors.New("empty id")
	ErrIDTooLong = errors.New("id too long")
)

type UserID string

// NewUserID validates an identifier handed over by the authentication layer.
func NewUserID(raw string) (UserID, error) {
	if len(raw) == 0 {
		return "", ErrEmptyID
	}
	if len(raw) > MaxUserIDLen {
		return "", ErrIDTooLong
	}
	return UserID(raw), nil
}

// SelfRoom is the reflexive room of the user, used for user-scoped
// notifications. Only the user's own connections ever join it.
func (u UserID) SelfRoom() RoomID { return RoomID(selfPrefix + string(u)) }
