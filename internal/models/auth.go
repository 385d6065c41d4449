package models

// SameSite values as written by the cookie exporter
const (
	SameSiteLax    = "Lax"
	SameSiteStrict = "Strict"
	SameSiteNone   = "None"
)

// Cookie is one browser cookie in the exporter's JSON layout.
// Expires is seconds since the epoch; -1 marks a session cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// IsSession reports whether the cookie lives only for the browser session
func (c Cookie) IsSession() bool {
	return c.Expires <= 0
}

// SessionCredential is the stored cookie set that authenticates one account
type SessionCredential []Cookie
