// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen   = 64
	MaxNicknameLen = 36
)

var (
	ErrUserIDEmpty     = errors.New("user id empty")
	ErrUserIDTooLong   = errors.New("user id too long")
	ErrNicknameEmpty   = errors.New("nickname empty")
	ErrNicknameTooLong = errors.New("nickname too long")
)

type UserID string

// Identity is the verified (user, nickname, avatar) triple asserted at
// connection open. The relay copies it into every payload that carries a
// sender.
type Identity struct {
	UserID   UserID `json:"userId"`
	Nickname string `json:"userNickName"`
	Profile  string `json:"userProfile,omitempty"`
}

// NewIdentity is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewIdentity(id UserID, nickname, profile string) (Identity, error) {
	if id == "" {
		return Identity{}, ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return Identity{}, ErrUserIDTooLong
	}
	if nickname == "" {
		return Identity{}, ErrNicknameEmpty
	}
	if utf8.RuneCountInString(nickname) > MaxNicknameLen {
		return Identity{}, ErrNicknameTooLong
	}
	return Identity{UserID: id, Nickname: nickname, Profile: profile}, nil
}

// NewGuest builds a throwaway identity for anonymous development clients.
func NewGuest() Identity {
	id := uuid.NewString()
	return Identity{UserID: UserID("guest-" + id), Nickname: "guest-" + id[:8]}
}
