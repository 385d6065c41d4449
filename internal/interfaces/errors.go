package interfaces

import "errors"

// ErrNoSession means no stored credential exists for the account
var ErrNoSession = errors.New("no session")

// ErrSessionExpired means the target page bounced to a login flow
var ErrSessionExpired = errors.New("session expired")
