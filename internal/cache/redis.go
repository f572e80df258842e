package cache

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RedisConfig holds connection settings for RedisClient.
type RedisConfig struct {
	Address   string
	Username  string
	Password  string
	DB        int
	TLS       bool
	Timeout   time.Duration
	KeyPrefix string
}

const (
	defaultRedisTimeout   = 5 * time.Second
	defaultRedisKeyPrefix = "sftpgate:"
)

// RedisClient is a single-connection Redis client speaking just the commands the
// stores need: AUTH, SELECT, INCR, PEXPIRE, PTTL, GET, SET PX and DEL. The connection
// is redialled after any transport error.
type RedisClient struct {
	cfg RedisConfig

	mu   sync.Mutex
	conn net.Conn
	rd   *bufio.Reader
	wr   *bufio.Writer
}

// NewRedisClient dials eagerly so misconfiguration fails at startup.
func NewRedisClient(cfg RedisConfig) (*RedisClient, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, errors.New("redis: address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRedisTimeout
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultRedisKeyPrefix
	}

	client := &RedisClient{cfg: cfg}
	client.mu.Lock()
	defer client.mu.Unlock()
	if err := client.connectLocked(context.Background()); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *RedisClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn, c.rd, c.wr = nil, nil, nil
	return err
}

// IncrementWithTTL starts the expiry window on the first hit and reports the remaining TTL.
func (c *RedisClient) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	k := c.key(key)
	count, err := c.integer(ctx, "INCR", k)
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if _, err := c.integer(ctx, "PEXPIRE", k, millis(window)); err != nil {
			return 0, 0, err
		}
	}

	ttl, err := c.integer(ctx, "PTTL", k)
	if err != nil || ttl < 0 {
		return count, window, nil
	}
	return count, time.Duration(ttl) * time.Millisecond, nil
}

func (c *RedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := []string{"SET", c.key(key), string(value)}
	if ttl > 0 {
		args = append(args, "PX", millis(ttl))
	}
	reply, err := c.do(ctx, args...)
	if err != nil {
		return err
	}
	if status, ok := reply.(string); !ok || !strings.EqualFold(status, "OK") {
		return fmt.Errorf("redis: unexpected SET reply %v", reply)
	}
	return nil
}

func (c *RedisClient) Get(ctx context.Context, key string) ([]byte, bool, error) {
	reply, err := c.do(ctx, "GET", c.key(key))
	if err != nil {
		return nil, false, err
	}
	switch v := reply.(type) {
	case nil:
		return nil, false, nil
	case []byte:
		return v, true, nil
	default:
		return nil, false, fmt.Errorf("redis: unexpected GET reply %T", v)
	}
}

func (c *RedisClient) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	args := append(make([]string, 0, len(keys)+1), "DEL")
	for _, key := range keys {
		args = append(args, c.key(key))
	}
	_, err := c.do(ctx, args...)
	return err
}

// Ping round-trips a PING, redialling if needed.
func (c *RedisClient) Ping(ctx context.Context) error {
	_, err := c.do(ctx, "PING")
	return err
}

func (c *RedisClient) key(key string) string {
	if strings.HasPrefix(key, c.cfg.KeyPrefix) {
		return key
	}
	return c.cfg.KeyPrefix + key
}

func (c *RedisClient) integer(ctx context.Context, args ...string) (int64, error) {
	reply, err := c.do(ctx, args...)
	if err != nil {
		return 0, err
	}
	n, ok := reply.(int64)
	if !ok {
		return 0, fmt.Errorf("redis: unexpected %s reply %T", args[0], reply)
	}
	return n, nil
}

func (c *RedisClient) do(ctx context.Context, args ...string) (any, error) {
	if c == nil {
		return nil, errNotInitialised
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}
	reply, err := c.roundTripLocked(ctx, args...)
	var replyErr redisError
	if err != nil && !errors.As(err, &replyErr) {
		c.dropLocked()
	}
	return reply, err
}

func (c *RedisClient) roundTripLocked(ctx context.Context, args ...string) (any, error) {
	if err := c.conn.SetDeadline(deadline(ctx, c.cfg.Timeout)); err != nil {
		return nil, err
	}
	if err := writeCommand(c.wr, args...); err != nil {
		return nil, err
	}
	return readReply(c.rd)
}

func (c *RedisClient) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var (
		conn net.Conn
		err  error
	)
	if c.cfg.TLS {
		conn, err = (&tls.Dialer{NetDialer: &net.Dialer{}}).DialContext(dialCtx, "tcp", c.cfg.Address)
	} else {
		conn, err = (&net.Dialer{}).DialContext(dialCtx, "tcp", c.cfg.Address)
	}
	if err != nil {
		return fmt.Errorf("redis: dial %s: %w", c.cfg.Address, err)
	}
	c.conn, c.rd, c.wr = conn, bufio.NewReader(conn), bufio.NewWriter(conn)

	var handshake [][]string
	switch {
	case c.cfg.Username != "":
		handshake = append(handshake, []string{"AUTH", c.cfg.Username, c.cfg.Password})
	case c.cfg.Password != "":
		handshake = append(handshake, []string{"AUTH", c.cfg.Password})
	}
	if c.cfg.DB > 0 {
		handshake = append(handshake, []string{"SELECT", strconv.Itoa(c.cfg.DB)})
	}
	for _, cmd := range handshake {
		reply, err := c.roundTripLocked(dialCtx, cmd...)
		if err == nil {
			if status, ok := reply.(string); !ok || !strings.EqualFold(status, "OK") {
				err = fmt.Errorf("redis: %s rejected: %v", cmd[0], reply)
			}
		}
		if err != nil {
			c.dropLocked()
			return err
		}
	}
	return nil
}

func (c *RedisClient) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn, c.rd, c.wr = nil, nil, nil
}

func deadline(ctx context.Context, fallback time.Duration) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(fallback)
}

func millis(d time.Duration) string {
	if d <= 0 {
		return "0"
	}
	return strconv.FormatInt(d.Milliseconds(), 10)
}
