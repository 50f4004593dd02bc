// Package edgerc loads and validates Akamai EdgeGrid credentials.
//
// Credentials are either built from explicit values or read from an INI
// style .edgerc file:
//
//	[default]
//	host = akab-xxxx.luna.akamaiapis.net
//	client_token = akab-...
//	client_secret = ...
//	access_token = akab-...
package edgerc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// DefaultSection is the .edgerc section read when none is given.
const DefaultSection = "default"

// DefaultMaxBody is the number of body bytes hashed when signing a request.
const DefaultMaxBody = 131072

// ErrMissingConfig is returned when the .edgerc file does not exist.
var ErrMissingConfig = errors.New("missing configuration file")

// Credentials is the set of values used to sign Fast Purge requests.
type Credentials struct {
	Host         string
	ClientToken  string
	ClientSecret string
	AccessToken  string

	// MaxBody limits how much of a request body is hashed for signing.
	// Zero means DefaultMaxBody.
	MaxBody int
}

// New creates credentials from explicit values.
func New(host, clientToken, clientSecret, accessToken string) Credentials {
	return Credentials{
		Host:         host,
		ClientToken:  clientToken,
		ClientSecret: clientSecret,
		AccessToken:  accessToken,
	}
}

// FromMap copies credentials out of a map keyed like an .edgerc section.
// The map is only read.
func FromMap(m map[string]string) Credentials {
	return Credentials{
		Host:         m["host"],
		ClientToken:  m["client_token"],
		ClientSecret: m["client_secret"],
		AccessToken:  m["access_token"],
	}
}

// DefaultPath returns ~/.edgerc.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".edgerc"
	}
	return filepath.Join(home, ".edgerc")
}

// Load reads credentials from the given section of an .edgerc file.
// An empty path means DefaultPath(), an empty section means DefaultSection.
func Load(path, section string) (Credentials, error) {
	if path == "" {
		path = DefaultPath()
	}
	if section == "" {
		section = DefaultSection
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credentials{}, fmt.Errorf("%w %s", ErrMissingConfig, path)
		}
		return Credentials{}, fmt.Errorf("stat %s: %w", path, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		return Credentials{}, fmt.Errorf("read %s: %w", path, err)
	}

	get := func(key string) string {
		if s := v.GetString(section + "." + key); s != "" {
			return s
		}
		// The INI codec may fold a [default] section into the top level.
		if strings.EqualFold(section, DefaultSection) {
			return v.GetString(key)
		}
		return ""
	}

	creds := Credentials{
		Host:         get("host"),
		ClientToken:  get("client_token"),
		ClientSecret: get("client_secret"),
		AccessToken:  get("access_token"),
	}
	if mb := get("max_body"); mb != "" {
		n, err := strconv.Atoi(mb)
		if err != nil {
			return Credentials{}, fmt.Errorf("parse max_body %q: %w", mb, err)
		}
		creds.MaxBody = n
	}

	return creds, nil
}

// IsZero reports whether no field has been set.
func (c Credentials) IsZero() bool {
	return c == Credentials{}
}

// Validate reports every missing required field.
func (c Credentials) Validate() error {
	var missing []string
	if c.Host == "" {
		missing = append(missing, "host")
	}
	if c.ClientToken == "" {
		missing = append(missing, "client_token")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if c.AccessToken == "" {
		missing = append(missing, "access_token")
	}
	if len(missing) > 0 {
		return fmt.Errorf("credentials missing %s", strings.Join(missing, ", "))
	}
	if c.MaxBody < 0 {
		return fmt.Errorf("max_body must be >= 0 (got %d)", c.MaxBody)
	}
	return nil
}

// BodyLimit returns MaxBody, or DefaultMaxBody when unset.
func (c Credentials) BodyLimit() int {
	if c.MaxBody > 0 {
		return c.MaxBody
	}
	return DefaultMaxBody
}
