package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ApplyURL overrides d with the settings carried by a DATABASE_URL value.
// It accepts postgres:// URLs, libpq key=value lists and sqlite:// paths.
// Settings absent from raw keep their current value.
func (d *DatabaseConfig) ApplyURL(raw string) error {
	s := strings.Trim(strings.TrimSpace(raw), `"'`)
	if s == "" {
		return nil
	}
	scheme, rest, hasScheme := strings.Cut(s, "://")
	if hasScheme {
		switch strings.ToLower(scheme) {
		case "sqlite", "sqlite3", "file":
			d.Driver, d.Path = "sqlite", rest
			return nil
		case "postgres", "postgresql":
			return d.applyPostgresURL(s)
		default:
			return fmt.Errorf("DATABASE_URL: unsupported scheme %q", scheme)
		}
	}
	return d.applyKeyValues(s)
}

func (d *DatabaseConfig) applyPostgresURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("DATABASE_URL: %w", err)
	}
	d.Driver = "postgres"
	if h := u.Hostname(); h != "" {
		d.Host = h
	}
	if p := u.Port(); p != "" {
		if err := d.setPort(p); err != nil {
			return err
		}
	}
	if u.User != nil {
		d.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			d.Password = pw
		}
	}
	if name := strings.TrimPrefix(u.Path, "/"); name != "" {
		d.DBName = name
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		d.SSLMode = mode
	}
	return nil
}

func (d *DatabaseConfig) applyKeyValues(s string) error {
	known := 0
	for _, field := range strings.Fields(s) {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			return fmt.Errorf("DATABASE_URL: malformed setting %q", field)
		}
		v = strings.Trim(v, `'`)
		switch strings.ToLower(k) {
		case "host":
			d.Host = v
		case "port":
			if err := d.setPort(v); err != nil {
				return err
			}
		case "user":
			d.User = v
		case "password":
			d.Password = v
		case "dbname":
			d.DBName = v
		case "sslmode":
			d.SSLMode = v
		default:
			continue
		}
		known++
	}
	if known == 0 {
		return fmt.Errorf("DATABASE_URL: no connection settings in %q", s)
	}
	d.Driver = "postgres"
	return nil
}

func (d *DatabaseConfig) setPort(p string) error {
	n, err := strconv.Atoi(p)
	if err != nil || n <= 0 || n > 65535 {
		return fmt.Errorf("DATABASE_URL: invalid port %q", p)
	}
	d.Port = n
	return nil
}
