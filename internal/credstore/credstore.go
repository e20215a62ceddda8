// Package credstore caches mailbox credentials per environment name in an
// encrypted file-backed keyring. The storage directory is always passed in
// explicitly; there is no package-level default that commands mutate.
package credstore

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/99designs/keyring"
	"github.com/pkg/errors"
)

// KeyEnvVar names the environment variable consulted for the keyring file
// password before falling back to an interactive prompt.
const KeyEnvVar = "MAILEXPORT_CRED_KEY"

// Credentials is one cached login, keyed by environment name.
type Credentials struct {
	Host     string `json:"host"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type Store struct {
	ring keyring.Keyring
}

// Open opens the encrypted credential store rooted at dir, creating the
// directory on first use.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("requires credential directory")
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName: "mailexport",
		AllowedBackends: []keyring.BackendType{
			keyring.FileBackend,
		},
		FileDir:          dir,
		FilePasswordFunc: filePassword,
	})
	if err != nil {
		return nil, errors.Wrap(err, "opening credential store")
	}
	return &Store{ring: ring}, nil
}

func filePassword(prompt string) (string, error) {
	if key := os.Getenv(KeyEnvVar); key != "" {
		return key, nil
	}
	return keyring.TerminalPrompt(prompt)
}

// Save stores or replaces the credentials for an environment.
func (s *Store) Save(env string, creds Credentials) error {
	if env == "" {
		return errors.New("requires environment name")
	}

	data, err := json.Marshal(creds)
	if err != nil {
		return errors.Wrap(err, "encoding credentials")
	}

	if err := s.ring.Set(keyring.Item{Key: env, Data: data}); err != nil {
		return errors.Wrapf(err, "saving credentials for %q", env)
	}
	return nil
}

// Lookup returns the credentials cached for an environment.
func (s *Store) Lookup(env string) (Credentials, error) {
	item, err := s.ring.Get(env)
	if err != nil {
		return Credentials{}, errors.Wrapf(err, "no credentials for %q", env)
	}

	var creds Credentials
	if err := json.Unmarshal(item.Data, &creds); err != nil {
		return Credentials{}, errors.Wrapf(err, "decoding credentials for %q", env)
	}
	return creds, nil
}

// Delete removes the credentials for an environment.
func (s *Store) Delete(env string) error {
	if err := s.ring.Remove(env); err != nil {
		return errors.Wrapf(err, "deleting credentials for %q", env)
	}
	return nil
}

// List returns the cached environment names in sorted order.
func (s *Store) List() ([]string, error) {
	keys, err := s.ring.Keys()
	if err != nil {
		return nil, errors.Wrap(err, "listing credentials")
	}
	sort.Strings(keys)
	return keys, nil
}
