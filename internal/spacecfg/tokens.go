package spacecfg

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// tokenByteLength is the amount of cryptographically random data backing a
// freshly generated token.
const tokenByteLength = 32

const gitignoreBody = "*\n!.gitignore\n"

// ResolveToken resolves a participant's token in priority order: env var
// MEW_TOKEN_<UPPER_SNAKE_ID>, else the token file, else the first configured
// token, else freshly generated and persisted.
func (c *Config) ResolveToken(participantID string) (string, error) {
	envKey := "MEW_TOKEN_" + upperSnake(participantID)
	if v := os.Getenv(envKey); v != "" {
		return v, nil
	}

	tokenPath := c.tokenPath(participantID)
	if data, err := os.ReadFile(tokenPath); err == nil {
		return strings.TrimSpace(string(data)), nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("spacecfg: read token file for %s: %w", participantID, err)
	}

	if p, ok := c.Participants[participantID]; ok && len(p.Tokens) > 0 {
		return p.Tokens[0], nil
	}

	generated, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("spacecfg: generate token for %s: %w", participantID, err)
	}
	if err := c.persistToken(participantID, generated); err != nil {
		return "", err
	}
	return generated, nil
}

func (c *Config) tokenDir() string {
	return filepath.Join(c.SpaceDir(), ".mew", "tokens")
}

func (c *Config) tokenPath(participantID string) string {
	return filepath.Join(c.tokenDir(), participantID+".token")
}

// persistToken writes a freshly generated token to disk with owner-only
// permissions, creating the token directory and its .gitignore as needed.
func (c *Config) persistToken(participantID, token string) error {
	dir := c.tokenDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("spacecfg: create token dir: %w", err)
	}

	gitignorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(gitignorePath); os.IsNotExist(err) {
		if err := os.WriteFile(gitignorePath, []byte(gitignoreBody), 0o600); err != nil {
			return fmt.Errorf("spacecfg: write token dir .gitignore: %w", err)
		}
	}

	path := c.tokenPath(participantID)
	if err := os.WriteFile(path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("spacecfg: write token file for %s: %w", participantID, err)
	}
	return nil
}

func generateToken() (string, error) {
	buf := make([]byte, tokenByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func upperSnake(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r == '-' || r == '.' || r == ' ':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return strings.ToUpper(b.String())
}
