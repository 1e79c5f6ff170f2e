package model

import "time"

// Credential is a cached bearer token and the local expiry assigned to it.
type Credential struct {
	Token  string
	Expiry time.Time
}

// Valid reports whether the credential may be attached to a request at now.
// A credential expiring exactly at now is already invalid.
func (c Credential) Valid(now time.Time) bool {
	return c.Token != "" && c.Expiry.After(now)
}
