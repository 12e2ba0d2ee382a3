package conf

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// LegacyDSN returns the go-sql-driver DSN for the legacy database.
// If DSN is set directly, it's returned as-is.
func (l *LegacySettings) LegacyDSN() string {
	if l.DSN != "" {
		return l.DSN
	}

	// Format: user:password@tcp(host:port)/database?charset=utf8mb4&parseTime=True&loc=Local
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		l.Username,
		l.Password,
		net.JoinHostPort(l.Host, strconv.Itoa(l.Port)),
		l.Database,
	)
}

// SanitizedDSN returns the legacy DSN with the password masked for logging.
func (l *LegacySettings) SanitizedDSN() string {
	return maskMySQLPassword(l.LegacyDSN())
}

// DestinationDSN returns the DSN for the configured destination driver.
func (d *DestinationSettings) DestinationDSN() string {
	if d.DSN != "" {
		return d.DSN
	}

	switch d.Driver {
	case DriverSQLite:
		return d.Path
	case DriverMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			d.Username, d.Password, net.JoinHostPort(d.Host, strconv.Itoa(d.Port)), d.Database)
	default:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(d.Username, d.Password),
			Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
			Path:   "/" + d.Database,
		}
		if d.SSLMode != "" {
			u.RawQuery = "sslmode=" + url.QueryEscape(d.SSLMode)
		}
		return u.String()
	}
}

// SanitizedDSN returns the destination DSN with the password masked for logging.
func (d *DestinationSettings) SanitizedDSN() string {
	dsn := d.DestinationDSN()
	switch d.Driver {
	case DriverSQLite:
		return dsn
	case DriverMySQL:
		return maskMySQLPassword(dsn)
	}

	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), "****")
			return u.String()
		}
		return dsn
	}
	// libpq key=value form
	fields := strings.Fields(dsn)
	for i, f := range fields {
		if strings.HasPrefix(strings.ToLower(f), "password=") {
			fields[i] = "password=****"
		}
	}
	return strings.Join(fields, " ")
}

// maskMySQLPassword masks the password in user:password@tcp(host:port)/database
func maskMySQLPassword(dsn string) string {
	if idx := strings.Index(dsn, ":"); idx != -1 {
		if atIdx := strings.Index(dsn, "@"); atIdx != -1 && atIdx > idx {
			return dsn[:idx+1] + "****" + dsn[atIdx:]
		}
	}
	return dsn
}
