package cds

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoCredentials is returned when no CDS credentials can be found.
var ErrNoCredentials = errors.New("cds: no credentials configured")

// Credentials identify a CDS account.
type Credentials struct {
	// URL is the API root, e.g. https://cds.climate.copernicus.eu/api/v2.
	URL string `yaml:"url"`

	// Key is "<UID>:<API key>".
	Key string `yaml:"key"`
}

// DefaultCredentialsPath returns $CDSAPI_RC, or ~/.cdsapirc.
func DefaultCredentialsPath() string {
	if p := os.Getenv("CDSAPI_RC"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cdsapirc"
	}
	return filepath.Join(home, ".cdsapirc")
}

// LoadCredentials resolves credentials the way the cdsapi tooling does:
// CDSAPI_URL and CDSAPI_KEY take precedence, then the rc file at path
// (DefaultCredentialsPath when path is empty).
func LoadCredentials(path string) (Credentials, error) {
	envURL, envKey := os.Getenv("CDSAPI_URL"), os.Getenv("CDSAPI_KEY")
	if envURL != "" && envKey != "" {
		creds := Credentials{URL: envURL, Key: envKey}
		return creds, creds.Validate()
	}

	if path == "" {
		path = DefaultCredentialsPath()
	}

	creds, err := LoadCredentialsFile(path)
	if err != nil {
		return Credentials{}, err
	}
	if envURL != "" {
		creds.URL = envURL
	}
	if envKey != "" {
		creds.Key = envKey
	}
	return creds, creds.Validate()
}

// LoadCredentialsFile reads a .cdsapirc file ("url: ..." and "key: ..." lines).
func LoadCredentialsFile(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credentials{}, fmt.Errorf("%w: %s does not exist", ErrNoCredentials, path)
		}
		return Credentials{}, fmt.Errorf("read credentials file: %w", err)
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("parse credentials file %s: %w", path, err)
	}
	return creds, nil
}

// Validate checks that both fields are present and the key has a UID.
func (c Credentials) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: url is missing", ErrNoCredentials)
	}
	if c.Key == "" {
		return fmt.Errorf("%w: key is missing", ErrNoCredentials)
	}
	if uid, secret, ok := strings.Cut(c.Key, ":"); !ok || uid == "" || secret == "" {
		return errors.New("cds: key must have the form <UID>:<API key>")
	}
	return nil
}

func (c Credentials) basicAuth() (user, password string) {
	user, password, _ = strings.Cut(c.Key, ":")
	return user, password
}
