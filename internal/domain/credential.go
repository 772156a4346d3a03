package domain

// Credential is the access/refresh pair a session holds. In cookie-mode
// deployments the refresh grant lives in an HttpOnly cookie and RefreshToken
// stays empty.
type Credential struct {
	AccessToken  string `json:"access_token" toml:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty" toml:"refresh_token,omitempty"`
}

// Empty reports whether no usable access token is present. An empty
// credential always means "not logged in"; an expired token is only
// discoverable through a rejected call.
func (c Credential) Empty() bool {
	return c.AccessToken == ""
}
