package domain

// User is the profile attached to the current session. It is fetched lazily
// after login and owned exclusively by the session.
type User struct {
	ID             int64  `json:"id" toml:"id"`
	Username       string `json:"username" toml:"username"`
	Email          string `json:"email" toml:"email"`
	ProfilePicture string `json:"profile_picture,omitempty" toml:"profile_picture,omitempty"`
	Bio            string `json:"bio,omitempty" toml:"bio,omitempty"`
}
