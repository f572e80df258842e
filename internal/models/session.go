package models

import (
	"time"
)

// Session is the record stored under an opaque session token. It carries the SFTP
// credentials needed to open a fresh connection for each request.
type Session struct {
	Token       string          `json:"-"`
	Credentials SFTPCredentials `json:"credentials"`
	ClientIP    string          `json:"client_ip,omitempty"`
	UserAgent   string          `json:"user_agent,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	LastUsedAt  time.Time       `json:"last_used_at"`
}

// Touch records activity on the session.
func (s *Session) Touch(now time.Time) {
	if s == nil {
		return
	}
	s.LastUsedAt = now
}
