package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// GetAPIToken returns the bearer token the local HTTP API requires. A
// token is generated and stored in the platform secret store on first use,
// so the CLI and the server agree without any manual setup.
func GetAPIToken() (string, error) {
	if out, err := keychainGet(serviceName, "api_token"); err == nil {
		if token := strings.TrimSpace(string(out)); token != "" {
			return token, nil
		}
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api token: %w", err)
	}
	token := hex.EncodeToString(buf)

	if err := keychainSet(serviceName, "api_token", token); err != nil {
		return "", fmt.Errorf("storing api token: %w", err)
	}
	return token, nil
}
