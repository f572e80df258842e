package cache

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeRedis answers the handful of commands RedisClient issues from an in-memory map.
type fakeRedis struct {
	mu       sync.Mutex
	values   map[string]string
	ttl      map[string]time.Duration
	commands []string
	password string
	listener net.Listener
}

func startFakeRedis(t *testing.T, password string) *fakeRedis {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &fakeRedis{
		values:   map[string]string{},
		ttl:      map[string]time.Duration{},
		password: password,
		listener: listener,
	}
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go srv.serve(conn)
		}
	}()
	return srv
}

func (s *fakeRedis) addr() string { return s.listener.Addr().String() }

func (s *fakeRedis) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *fakeRedis) serve(conn net.Conn) {
	defer conn.Close()
	rd := bufio.NewReader(conn)
	wr := bufio.NewWriter(conn)
	for {
		reply, err := readReply(rd)
		if err != nil {
			return
		}
		items, _ := reply.([]any)
		args := make([]string, len(items))
		for i, item := range items {
			b, _ := item.([]byte)
			args[i] = string(b)
		}
		_, _ = wr.WriteString(s.handle(args))
		if err := wr.Flush(); err != nil {
			return
		}
	}
}

func (s *fakeRedis) handle(args []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(args) == 0 {
		return "-ERR empty command\r\n"
	}
	cmd := strings.ToUpper(args[0])
	s.commands = append(s.commands, cmd)

	bulk := func(v string) string { return "$" + strconv.Itoa(len(v)) + "\r\n" + v + "\r\n" }
	integer := func(n int) string { return ":" + strconv.Itoa(n) + "\r\n" }

	switch cmd {
	case "AUTH":
		if args[len(args)-1] != s.password {
			return "-WRONGPASS invalid password\r\n"
		}
		return "+OK\r\n"
	case "SELECT":
		return "+OK\r\n"
	case "PING":
		return "+PONG\r\n"
	case "SET":
		s.values[args[1]] = args[2]
		delete(s.ttl, args[1])
		if len(args) == 5 && strings.EqualFold(args[3], "PX") {
			ms, _ := strconv.Atoi(args[4])
			s.ttl[args[1]] = time.Duration(ms) * time.Millisecond
		}
		return "+OK\r\n"
	case "GET":
		v, ok := s.values[args[1]]
		if !ok {
			return "$-1\r\n"
		}
		return bulk(v)
	case "DEL":
		removed := 0
		for _, key := range args[1:] {
			if _, ok := s.values[key]; ok {
				removed++
			}
			delete(s.values, key)
			delete(s.ttl, key)
		}
		return integer(removed)
	case "INCR":
		n, _ := strconv.Atoi(s.values[args[1]])
		n++
		s.values[args[1]] = strconv.Itoa(n)
		return integer(n)
	case "PEXPIRE":
		ms, _ := strconv.Atoi(args[2])
		s.ttl[args[1]] = time.Duration(ms) * time.Millisecond
		return integer(1)
	case "PTTL":
		ttl, ok := s.ttl[args[1]]
		if !ok {
			return integer(-1)
		}
		return integer(int(ttl.Milliseconds()))
	default:
		return "-ERR unknown command\r\n"
	}
}

func TestRedisClientRoundTrip(t *testing.T) {
	srv := startFakeRedis(t, "hunter2")
	client, err := NewRedisClient(RedisConfig{Address: srv.addr(), Password: "hunter2", DB: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "session:tok", []byte("line1\r\nline2"), time.Hour))
	value, ok, err := client.Get(ctx, "session:tok")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "line1\r\nline2", string(value))

	srv.mu.Lock()
	require.Equal(t, time.Hour, srv.ttl["sftpgate:session:tok"])
	srv.mu.Unlock()

	require.NoError(t, client.Delete(ctx, "session:tok"))
	_, ok, err = client.Get(ctx, "session:tok")
	require.NoError(t, err)
	require.False(t, ok)

	require.Equal(t, []string{"AUTH", "SELECT"}, srv.seen()[:2])
	require.NoError(t, client.Ping(ctx))
}

func TestRedisClientIncrementWithTTL(t *testing.T) {
	srv := startFakeRedis(t, "")
	client, err := NewRedisClient(RedisConfig{Address: srv.addr(), KeyPrefix: "test:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	count, ttl, err := client.IncrementWithTTL(context.Background(), "rate:ip", 30*time.Second)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, 30*time.Second, ttl)

	count, _, err = client.IncrementWithTTL(context.Background(), "rate:ip", 30*time.Second)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	pexpires := 0
	for _, cmd := range srv.seen() {
		if cmd == "PEXPIRE" {
			pexpires++
		}
	}
	require.Equal(t, 1, pexpires, "window starts on the first hit only")
}

func TestRedisClientErrors(t *testing.T) {
	_, err := NewRedisClient(RedisConfig{})
	require.Error(t, err)

	srv := startFakeRedis(t, "right")
	_, err = NewRedisClient(RedisConfig{Address: srv.addr(), Password: "wrong"})
	require.ErrorContains(t, err, "WRONGPASS")
}
