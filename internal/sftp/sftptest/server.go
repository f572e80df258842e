// Package sftptest provides SFTP fixtures for tests: an SSH server exposing an
// in-memory sftp subsystem, a client/server pair over net.Pipe, and a scriptable
// fake filesystem implementing sftp.Client.
package sftptest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"testing"

	pkgsftp "github.com/pkg/sftp"
	"github.com/stretchr/testify/require"
	gossh "golang.org/x/crypto/ssh"

	"github.com/charlesng35/sftpgate/internal/models"
)

// Server is an SSH server whose sftp subsystem is backed by one shared in-memory tree.
type Server struct {
	Host     string
	Port     int
	Username string
	Password string

	handlers pkgsftp.Handlers
}

// Credentials returns login credentials accepted by the server.
func (s *Server) Credentials() models.SFTPCredentials {
	return models.SFTPCredentials{
		Host:     s.Host,
		Port:     s.Port,
		Username: s.Username,
		Password: s.Password,
	}
}

// Handlers exposes the in-memory backend so tests can share it with a pipe client.
func (s *Server) Handlers() pkgsftp.Handlers {
	return s.handlers
}

// StartServer listens on a loopback port until the test finishes.
func StartServer(t *testing.T, username, password string) *Server {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer, err := gossh.NewSignerFromKey(privateKey)
	require.NoError(t, err)

	serverConfig := &gossh.ServerConfig{
		PasswordCallback: func(conn gossh.ConnMetadata, pw []byte) (*gossh.Permissions, error) {
			if conn.User() == username && string(pw) == password {
				return nil, nil
			}
			return nil, fmt.Errorf("permission denied")
		},
	}
	serverConfig.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	host, portStr, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	server := &Server{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		handlers: pkgsftp.InMemHandler(),
	}

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go server.handleConn(conn, serverConfig)
		}
	}()

	return server
}

func (s *Server) handleConn(conn net.Conn, config *gossh.ServerConfig) {
	defer conn.Close()

	sshConn, chans, reqs, err := gossh.NewServerConn(conn, config)
	if err != nil {
		return
	}
	defer sshConn.Close()

	go gossh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(gossh.UnknownChannelType, "unsupported channel type")
			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}

		go func(in <-chan *gossh.Request) {
			for req := range in {
				if req.Type == "subsystem" && subsystemName(req.Payload) == "sftp" {
					_ = req.Reply(true, nil)
					go func() {
						server := pkgsftp.NewRequestServer(channel, s.handlers)
						_ = server.Serve()
						_ = server.Close()
					}()
					continue
				}
				_ = req.Reply(false, nil)
			}
		}(requests)
	}
}

func subsystemName(payload []byte) string {
	if len(payload) < 4 {
		return ""
	}
	n := binary.BigEndian.Uint32(payload[:4])
	if int(n) > len(payload)-4 {
		return ""
	}
	return string(payload[4 : 4+n])
}

// NewPipeClient connects a pkg/sftp client to a fresh in-memory request server
// over net.Pipe.
func NewPipeClient(t *testing.T) *pkgsftp.Client {
	t.Helper()
	return NewPipeClientWith(t, pkgsftp.InMemHandler())
}

// NewPipeClientWith is NewPipeClient backed by handlers, e.g. those of a running Server.
func NewPipeClientWith(t *testing.T, handlers pkgsftp.Handlers) *pkgsftp.Client {
	t.Helper()

	serverConn, clientConn := net.Pipe()
	server := pkgsftp.NewRequestServer(serverConn, handlers)
	go func() { _ = server.Serve() }()

	client, err := pkgsftp.NewClientPipe(clientConn, clientConn)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client
}
