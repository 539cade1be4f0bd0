package notifier

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Credentials are the four OAuth 1.0a secrets for the X API.
type Credentials struct {
	APIKey            string `env:"API_KEY"`
	APIKeySecret      string `env:"API_KEY_SECRET"`
	AccessToken       string `env:"ACCESS_TOKEN"`
	AccessTokenSecret string `env:"ACCESS_TOKEN_SECRET"`
}

// LoadCredentials reads the credentials from the environment. Unset
// variables are left empty; Validate reports them.
func LoadCredentials() (Credentials, error) {
	var c Credentials
	if err := env.Parse(&c); err != nil {
		return c, fmt.Errorf("parse credentials: %w", err)
	}
	return c, nil
}

// Missing returns the environment names of every empty credential, in a fixed order.
func (c Credentials) Missing() []string {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"API_KEY", c.APIKey},
		{"API_KEY_SECRET", c.APIKeySecret},
		{"ACCESS_TOKEN", c.AccessToken},
		{"ACCESS_TOKEN_SECRET", c.AccessTokenSecret},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Validate fails with a MissingCredentialsError when any credential is empty.
func (c Credentials) Validate() error {
	if missing := c.Missing(); len(missing) > 0 {
		return &MissingCredentialsError{Names: missing}
	}
	return nil
}
