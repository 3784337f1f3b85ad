package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/getmockd/stompd/pkg/credentials"
)

// Users file errors.
var (
	ErrFileNotFound     = errors.New("users file not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidYAML      = errors.New("invalid YAML syntax")
	ErrEmptyFile        = errors.New("users file is empty")
	ErrInvalidUser      = errors.New("invalid user entry")
)

// UserEntry is one account in the users file.
type UserEntry struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password,omitempty"`
	PasswordHash string `yaml:"password_hash,omitempty"`
}

// UsersFile is the YAML document provisioning accounts at startup:
//
//	users:
//	  - username: alice
//	    password: secret
//	  - username: bob
//	    password_hash: $2a$10$...
type UsersFile struct {
	Users []UserEntry `yaml:"users"`
}

// LoadUsers reads and validates a users file.
func LoadUsers(path string) ([]credentials.Account, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	case errors.Is(err, os.ErrPermission):
		return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	case err != nil:
		return nil, fmt.Errorf("failed to read users file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}
	return ParseUsers(data)
}

// ParseUsers decodes a users document. Unknown keys are rejected.
func ParseUsers(data []byte) ([]credentials.Account, error) {
	var file UsersFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	var errs []error
	seen := make(map[string]bool, len(file.Users))
	accounts := make([]credentials.Account, 0, len(file.Users))
	for i, u := range file.Users {
		switch {
		case u.Username == "":
			errs = append(errs, fmt.Errorf("%w: entry %d has no username", ErrInvalidUser, i))
			continue
		case u.Password == "" && u.PasswordHash == "":
			errs = append(errs, fmt.Errorf("%w: %q has neither password nor password_hash", ErrInvalidUser, u.Username))
			continue
		case seen[u.Username]:
			errs = append(errs, fmt.Errorf("%w: %q listed twice", ErrInvalidUser, u.Username))
			continue
		}
		seen[u.Username] = true
		accounts = append(accounts, credentials.Account{
			Username:     u.Username,
			Password:     u.Password,
			PasswordHash: u.PasswordHash,
		})
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return accounts, nil
}
