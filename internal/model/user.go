package model

import "time"

type UserID string

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type User struct {
	ID        UserID    `json:"id"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Email     string    `json:"-"`
	Bio       string    `json:"bio"`
	Image     string    `json:"image,omitempty"`
	Role      Role      `json:"-"`
	PublicKey string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

type BannedUser struct {
	UserID    UserID    `json:"userId"`
	BannedBy  UserID    `json:"bannedBy"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"createdAt"`
}

type Session struct {
	UserID    UserID
	ExpiresAt time.Time
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
