package models

import (
	"net"
	"strconv"
	"strings"
)

// DefaultSFTPPort is used when credentials omit a port.
const DefaultSFTPPort = 22

// SFTPCredentials identify an account on a remote SFTP server.
type SFTPCredentials struct {
	Host     string `json:"host" validate:"required,hostname_rfc1123|ip"`
	Port     int    `json:"port" validate:"omitempty,min=1,max=65535"`
	Username string `json:"username" validate:"required,max=256"`
	Password string `json:"password" validate:"required,max=1024"`
}

// Normalize trims whitespace and fills in the default port.
func (c SFTPCredentials) Normalize() SFTPCredentials {
	c.Host = strings.TrimSpace(c.Host)
	c.Username = strings.TrimSpace(c.Username)
	if c.Port == 0 {
		c.Port = DefaultSFTPPort
	}
	return c
}

// Address returns host:port suitable for net.Dial.
func (c SFTPCredentials) Address() string {
	port := c.Port
	if port == 0 {
		port = DefaultSFTPPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}
