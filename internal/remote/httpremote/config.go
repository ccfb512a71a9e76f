package httpremote

import (
	"errors"
	"net/url"

	"github.com/openmined/forcesync/internal/manifest"
	"github.com/openmined/forcesync/internal/remote"
)

var ErrNoServerURL = errors.New("httpremote: server url missing")

type Config struct {
	// ServerURL is the gateway base URL, e.g. https://gateway.example.com
	ServerURL string
	Username  string
	Password  string
	// Token is the security token appended to the password by the gateway
	Token      string
	APIVersion string
	Poll       remote.PollOptions
}

func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return ErrNoServerURL
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("httpremote: invalid server url")
	}
	if c.Username == "" || c.Password == "" {
		return remote.ErrNoCredential
	}
	if c.APIVersion == "" {
		c.APIVersion = manifest.DefaultVersion
	}
	if c.Poll == (remote.PollOptions{}) {
		c.Poll = remote.DefaultPollOptions()
	}
	return nil
}
