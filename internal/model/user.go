package model

// User is the authenticated identity returned by the remote auth API.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// SessionSnapshot is the persisted form of an authenticated session.
// User and Token are either both present or both absent.
type SessionSnapshot struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// Complete reports whether both halves of the session are present.
func (s SessionSnapshot) Complete() bool {
	return s.User != nil && s.Token != ""
}

// AuthResponse is the remote auth endpoint response body.
type AuthResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	User    *User  `json:"user"`
	Token   string `json:"token"`
}
