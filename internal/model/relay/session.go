package relay

import "time"

// Session binds an opaque handle to the authorization blob issued for it.
type Session struct {
	Handle     string    `json:"handle"`
	Credential []byte    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}
