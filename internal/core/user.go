package core

import "strings"

// User is an account row managed through the admin surface.
type User struct {
	ID       string `json:"_id"`
	FullName string `json:"fullname"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
}

// OwnerID derives the owner identifier for records from a login email:
// the local part before the @, matching what clients historically stored.
func OwnerID(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[:i]
	}
	return email
}

func (u User) Validate() error {
	if strings.TrimSpace(u.FullName) == "" {
		return &ValidationError{Field: "fullname", Reason: "empty"}
	}
	if strings.TrimSpace(u.Email) == "" {
		return &ValidationError{Field: "email", Reason: "empty"}
	}
	return nil
}
