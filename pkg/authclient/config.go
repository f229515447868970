package authclient

import (
	"fmt"
	"strings"
)

// Config is the identity the client uses against the authentication service.
type Config struct {
	User     string
	BasePath string
	Password string
}

// ParseConnectionString splits a connection string of the form
// username#base_url#password. Only the first two '#' separate fields, so the
// password may itself contain '#'.
func ParseConnectionString(s string) (Config, error) {
	parts := strings.SplitN(s, "#", 3)
	switch len(parts) {
	case 1:
		return Config{}, errorf(ErrConfig, "missing base URL in connection string")
	case 2:
		return Config{}, errorf(ErrConfig, "missing password in connection string")
	}

	return Config{
		User:     parts[0],
		BasePath: parts[1],
		Password: parts[2],
	}, nil
}

// String never includes the password.
func (c Config) String() string {
	return fmt.Sprintf("%s@%s", c.User, c.BasePath)
}
