package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultSecretKey is the development signing key. It is refused unless the
// database is local.
const DefaultSecretKey = "secretKey"

var ErrInsecureSecretKey = errors.New("insecure secret key")

// CheckSecretKey refuses an empty signing key, and the default one when the
// database is not on this machine. usingDefault tells the caller to warn.
func (c *Config) CheckSecretKey() (usingDefault bool, err error) {
	switch {
	case strings.TrimSpace(c.SecretKey) == "":
		return false, fmt.Errorf("%w: secret key is empty", ErrInsecureSecretKey)
	case c.SecretKey != DefaultSecretKey:
		return false, nil
	case !isLocalDSN(c.DatabaseDSN):
		return true, fmt.Errorf("%w: default secret key with a non-local database", ErrInsecureSecretKey)
	}
	return true, nil
}

// isLocalDSN reports whether dsn points at a loopback host or a unix socket.
func isLocalDSN(dsn string) bool {
	if strings.TrimSpace(dsn) == "" {
		return false
	}
	pc, err := pgconn.ParseConfig(dsn)
	if err != nil {
		return false
	}
	switch host := pc.Host; {
	case strings.HasPrefix(host, "/"):
		return true
	case host == "localhost", host == "127.0.0.1", host == "::1":
		return true
	}
	return false
}
