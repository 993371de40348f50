// Package auth holds the user registry and the stateless session authority.
//
// Users are loaded once at startup, either from a users file (JSON array),
// from inline JSON, or as a single-admin fallback derived from an admin
// password. The registry is immutable until restart.
package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"golang.org/x/crypto/scrypt"
)

// Roles, in increasing order of capability.
const (
	RoleReadOnly  = "read-only"
	RoleReadWrite = "read-write"
	RoleAdmin     = "admin"
)

// scrypt parameters for hashed secrets of the form
// "scrypt$<base64-salt>$<base64-hash>". The derived key length follows the
// stored hash, so records with any hash length verify; N, r and p are fixed.
const (
	scryptN = 16384
	scryptR = 8
	scryptP = 1
)

// User is a single account from the registry.
//
// RootPath is the declared virtual root (POSIX, absolute). RootReal is its
// host realpath, computed at load time and proven to lie within the
// configured file root. Secret is either a plaintext password or a scrypt
// tuple; both are compared in constant time.
type User struct {
	Username string `mapstructure:"username" json:"username"`
	Role     string `mapstructure:"role" json:"role"`
	RootPath string `mapstructure:"rootPath" json:"rootPath"`
	RootReal string `mapstructure:"-" json:"-"`
	Secret   string `mapstructure:"password" json:"-"`
}

// CanWrite reports whether the role permits mutating operations.
func (u *User) CanWrite() bool {
	return u.Role == RoleReadWrite || u.Role == RoleAdmin
}

// IsAdmin reports whether the role permits administrative operations.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Registry is the immutable set of users loaded at startup.
type Registry struct {
	users map[string]*User
}

// Lookup returns the user for a username, or nil.
func (r *Registry) Lookup(username string) *User {
	return r.users[username]
}

// Usernames returns every registered username.
func (r *Registry) Usernames() []string {
	names := make([]string, 0, len(r.users))
	for name := range r.users {
		names = append(names, name)
	}
	return names
}

// LoadRegistry builds the registry from raw user records.
//
// Each record is decoded, validated, and its root resolved: the declared
// rootPath is joined under fileRoot, realpath-resolved, and must stay within
// fileRoot's own realpath. Duplicate usernames are rejected.
func LoadRegistry(records []map[string]any, fileRoot string) (*Registry, error) {
	fileRootReal, err := filepath.EvalSymlinks(fileRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve file root %s: %w", fileRoot, err)
	}

	users := make(map[string]*User, len(records))
	for i, record := range records {
		var u User
		if err := mapstructure.Decode(record, &u); err != nil {
			return nil, fmt.Errorf("users[%d]: decode: %w", i, err)
		}
		if u.Username == "" {
			return nil, fmt.Errorf("users[%d]: username is required", i)
		}
		if u.Secret == "" {
			return nil, fmt.Errorf("users[%d] %s: password is required", i, u.Username)
		}
		switch u.Role {
		case RoleReadOnly, RoleReadWrite, RoleAdmin:
		case "":
			u.Role = RoleReadWrite
		default:
			return nil, fmt.Errorf("users[%d] %s: unknown role %q", i, u.Username, u.Role)
		}
		if u.RootPath == "" {
			u.RootPath = "/"
		}
		if !strings.HasPrefix(u.RootPath, "/") {
			return nil, fmt.Errorf("users[%d] %s: rootPath must start with /", i, u.Username)
		}
		if _, dup := users[u.Username]; dup {
			return nil, fmt.Errorf("users[%d]: duplicate username %q", i, u.Username)
		}

		joined := filepath.Join(fileRootReal, filepath.FromSlash(u.RootPath))
		if err := os.MkdirAll(joined, 0o755); err != nil {
			return nil, fmt.Errorf("users[%d] %s: create root: %w", i, u.Username, err)
		}
		real, err := filepath.EvalSymlinks(joined)
		if err != nil {
			return nil, fmt.Errorf("users[%d] %s: resolve root: %w", i, u.Username, err)
		}
		if real != fileRootReal && !strings.HasPrefix(real, fileRootReal+string(filepath.Separator)) {
			return nil, fmt.Errorf("users[%d] %s: root %s escapes file root", i, u.Username, u.RootPath)
		}
		u.RootReal = real

		users[u.Username] = &u
	}

	if len(users) == 0 {
		return nil, fmt.Errorf("no users configured")
	}

	return &Registry{users: users}, nil
}

// LoadRegistryJSON parses a JSON array of user records and loads it.
func LoadRegistryJSON(data []byte, fileRoot string) (*Registry, error) {
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse users: %w", err)
	}
	return LoadRegistry(records, fileRoot)
}

// SingleAdminRegistry builds the fallback registry: one admin scoped to the
// whole file root, authenticated with the given password.
func SingleAdminRegistry(password, fileRoot string) (*Registry, error) {
	return LoadRegistry([]map[string]any{{
		"username": "admin",
		"role":     RoleAdmin,
		"rootPath": "/",
		"password": password,
	}}, fileRoot)
}

// VerifyPassword checks a presented password against the user's secret in
// constant time. Secrets of the form "scrypt$<salt>$<hash>" are re-derived
// with the stored salt; anything else is treated as plaintext.
func VerifyPassword(u *User, presented string) bool {
	if strings.HasPrefix(u.Secret, "scrypt$") {
		ok, err := verifyScrypt(u.Secret, presented)
		if err != nil {
			return false
		}
		return ok
	}
	return subtle.ConstantTimeCompare([]byte(u.Secret), []byte(presented)) == 1
}

func verifyScrypt(encoded, presented string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != "scrypt" {
		return false, fmt.Errorf("invalid scrypt secret format")
	}
	salt, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false, fmt.Errorf("decode salt: %w", err)
	}
	hash, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return false, fmt.Errorf("decode hash: %w", err)
	}
	if len(hash) == 0 {
		return false, fmt.Errorf("empty hash")
	}

	candidate, err := scrypt.Key([]byte(presented), salt, scryptN, scryptR, scryptP, len(hash))
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(candidate, hash) == 1, nil
}

// HashPassword derives an scrypt secret suitable for a users file.
func HashPassword(password string, salt []byte) (string, error) {
	hash, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("scrypt$%s$%s",
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(hash)), nil
}
