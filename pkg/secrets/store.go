// Package secrets resolves named database credentials.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/mysql-insight/pkg/apperrors"
	"github.com/ekaya-inc/mysql-insight/pkg/crypto"
)

// Store looks up database credentials by secret name and region.
type Store interface {
	Get(ctx context.Context, name, region string) (*Credentials, error)
}

// Credentials mirror the secret JSON layout.
type Credentials struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	DBName   string `yaml:"dbname" json:"dbname"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// DefaultPort is used when a secret omits the port.
const DefaultPort = 3306

// Config returns the map consumed by datasource session factories.
func (c *Credentials) Config() map[string]any {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return map[string]any{
		"host":     c.Host,
		"port":     port,
		"dbname":   c.DBName,
		"username": c.Username,
		"password": c.Password,
	}
}

type secretEntry struct {
	Name        string `yaml:"name"`
	Region      string `yaml:"region"`
	Credentials `yaml:",inline"`
}

type secretsFile struct {
	Secrets []secretEntry `yaml:"secrets"`
}

// FileStore serves secrets from a YAML file of the form:
//
//	secrets:
//	  - name: prod-mysql
//	    region: us-west-2
//	    host: db.internal
//	    port: 3306
//	    dbname: shop
//	    username: app
//	    password: enc:q2V...
//
// An entry without a region matches every region.
type FileStore struct {
	path          string
	defaultRegion string
	encryptor     *crypto.CredentialEncryptor

	mu      sync.RWMutex
	entries []secretEntry
}

// NewFileStore reads and parses the secrets file. encryptor may be nil when
// no password in the file is sealed.
func NewFileStore(path, defaultRegion string, encryptor *crypto.CredentialEncryptor) (*FileStore, error) {
	s := &FileStore{path: path, defaultRegion: defaultRegion, encryptor: encryptor}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the secrets file. A missing file yields an empty store.
func (s *FileStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		s.entries = nil
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read secrets file: %w", err)
	}

	var file secretsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse secrets file %s: %w", s.path, err)
	}
	for i, e := range file.Secrets {
		if e.Name == "" {
			return fmt.Errorf("parse secrets file %s: entry %d has no name", s.path, i)
		}
	}

	s.mu.Lock()
	s.entries = file.Secrets
	s.mu.Unlock()
	return nil
}

// Get returns the credentials for name in region. An empty region means the
// store's default region. Exact region matches win over region-less entries.
func (s *FileStore) Get(ctx context.Context, name, region string) (*Credentials, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if region == "" {
		region = s.defaultRegion
	}

	s.mu.RLock()
	var match *secretEntry
	for i := range s.entries {
		e := &s.entries[i]
		if e.Name != name {
			continue
		}
		if e.Region == region {
			match = e
			break
		}
		if e.Region == "" && match == nil {
			match = e
		}
	}
	var creds Credentials
	if match != nil {
		creds = match.Credentials
	}
	s.mu.RUnlock()

	if match == nil {
		return nil, fmt.Errorf("%w: %s (region %s)", apperrors.ErrSecretNotFound, name, region)
	}

	if crypto.IsSealed(creds.Password) {
		if s.encryptor == nil {
			return nil, fmt.Errorf("secret %s has a sealed password but no secrets key is configured", name)
		}
		plain, err := s.encryptor.OpenPassword(creds.Password)
		if err != nil {
			return nil, fmt.Errorf("open password for secret %s: %w", name, err)
		}
		creds.Password = plain
	}
	if creds.Port == 0 {
		creds.Port = DefaultPort
	}
	return &creds, nil
}

var _ Store = (*FileStore)(nil)
