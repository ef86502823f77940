package models

import "time"

// User type constants.
const (
	UserTypeOperator = "operator"
	UserTypeExpert   = "expert"
	UserTypeAdmin    = "admin"
)

// User is a platform account. Operators open work orders from the
// factory floor; experts are assigned to and join them.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	FullName     string     `json:"full_name"`
	UserType     string     `json:"user_type"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// IsExpert reports whether the user can be assigned to work orders.
func (u *User) IsExpert() bool {
	return u.UserType == UserTypeExpert
}

// IsAdmin reports whether the user may perform administrative
// operations such as deleting work orders.
func (u *User) IsAdmin() bool {
	return u.UserType == UserTypeAdmin
}

// ValidUserType reports whether t is a known account type.
func ValidUserType(t string) bool {
	switch t {
	case UserTypeOperator, UserTypeExpert, UserTypeAdmin:
		return true
	}
	return false
}
