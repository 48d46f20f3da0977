package library

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Recognised server types.
const (
	ServerLocal   = "local"
	ServerRemote  = "remote"
	ServerCluster = "cluster"
)

const (
	driverSQLite   = "sqlite3"
	driverPostgres = "pgx"

	defaultSchema      = "library"
	defaultRemoteHost  = "localhost:5432"
	defaultClusterHost = "localhost:5432,localhost:5433"
)

// Config selects the backing store. Server picks a connection template; the
// remaining fields fill it in.
type Config struct {
	Server   string
	Schema   string
	User     string
	Password string
	// Host is "host:port" for remote and a comma separated list for cluster.
	Host string
	// DataDir holds the SQLite file for the local server type.
	DataDir string
}

// ConfigFromEnv reads LIBRARY_* variables. Unset variables keep their defaults.
func ConfigFromEnv() Config {
	return Config{
		Server:   getEnv("LIBRARY_SERVER", ServerLocal),
		Schema:   getEnv("LIBRARY_SCHEMA", defaultSchema),
		User:     os.Getenv("LIBRARY_USER"),
		Password: os.Getenv("LIBRARY_PASSWORD"),
		Host:     os.Getenv("LIBRARY_HOST"),
		DataDir:  getEnv("LIBRARY_DATA_DIR", "."),
	}
}

// NeedsPassword reports whether the server type authenticates with a password
// that has not been supplied yet.
func (c Config) NeedsPassword() bool {
	return !c.IsLocal() && c.Password == ""
}

// IsLocal reports whether the config selects the SQLite file store. An empty
// server type means local.
func (c Config) IsLocal() bool { return c.serverType() == ServerLocal }

// LocalFile is the SQLite file used by the local server type.
func (c Config) LocalFile() string {
	dir := c.DataDir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, c.schema()+".db")
}

func (c Config) serverType() string {
	t := strings.ToLower(strings.TrimSpace(c.Server))
	if t == "" {
		return ServerLocal
	}
	return t
}

func (c Config) schema() string {
	if c.Schema == "" {
		return defaultSchema
	}
	return c.Schema
}

// dataSource returns the database/sql driver name and DSN for the config.
func (c Config) dataSource() (driver, dsn string, err error) {
	schema := c.schema()

	switch c.serverType() {
	case ServerLocal:
		return driverSQLite, fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", c.LocalFile()), nil
	case ServerRemote:
		return driverPostgres, c.postgresURL(c.hostOr(defaultRemoteHost), schema, url.Values{"sslmode": {"prefer"}}), nil
	case ServerCluster:
		return driverPostgres, c.postgresURL(c.hostOr(defaultClusterHost), schema, url.Values{"target_session_attrs": {"read-write"}}), nil
	default:
		return "", "", fmt.Errorf("%w: unknown server type %q", ErrConnection, c.Server)
	}
}

func (c Config) hostOr(def string) string {
	if c.Host != "" {
		return c.Host
	}
	return def
}

func (c Config) postgresURL(host, schema string, query url.Values) string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     host,
		Path:     "/" + schema,
		RawQuery: query.Encode(),
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	return u.String()
}

// Redacted describes the target without credentials, for log lines.
func (c Config) Redacted() string {
	_, dsn, err := c.dataSource()
	if err != nil {
		return c.Server
	}
	return redactDSN(dsn)
}

// redactDSN masks the user info of a URL-style DSN. DSNs without
// credentials come back unchanged.
func redactDSN(dsn string) string {
	const marker = "://"
	start := strings.Index(dsn, marker)
	if start < 0 {
		return dsn
	}
	start += len(marker)
	end := strings.Index(dsn[start:], "@")
	if end < 0 {
		return dsn
	}
	return dsn[:start] + "***" + dsn[start+end:]
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
