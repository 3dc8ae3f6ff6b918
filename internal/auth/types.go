package auth

import "time"

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is the public view of an account. It has no password field, so it is
// safe to hand to any caller.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Account is the persisted record. Password holds a bcrypt hash; an empty
// value marks a passwordless record.
type Account struct {
	User
	Password string `json:"password,omitempty"`
}

func (a Account) Public() User {
	return a.User
}

type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type AuthResult struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// ProfileUpdate is a partial update; a nil field is left unchanged.
type ProfileUpdate struct {
	Name     *string `json:"name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
}
