package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/bitmex-realtime/internal/config"
)

// ApplicationName is reported to the server as application_name.
const ApplicationName = "bitmex-streamer"

// BuildConnString returns a postgres:// URL for cfg. The ssl mode defaults to
// prefer.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Name,
		RawQuery: url.Values{
			"sslmode":          {sslMode},
			"application_name": {ApplicationName},
		}.Encode(),
	}
	return u.String()
}
