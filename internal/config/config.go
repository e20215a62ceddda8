// Package config loads the exporter's environment surface. Everything is
// environment variables under the MAILEXPORT_ prefix; secrets never live in
// files except through the credential store.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/harbormail/mailexport/pkg/base"
)

const (
	envIMAPHost   = "MAILEXPORT_IMAP_HOST"
	envIMAPPort   = "MAILEXPORT_IMAP_PORT"
	envIMAPUser   = "MAILEXPORT_IMAP_USER"
	envIMAPPass   = "MAILEXPORT_IMAP_PASS"
	envS3Endpoint = "MAILEXPORT_S3_ENDPOINT"
	envS3Region   = "MAILEXPORT_S3_REGION"
	envS3Bucket   = "MAILEXPORT_S3_BUCKET"
	envS3Key      = "MAILEXPORT_S3_KEY"
	envS3Secret   = "MAILEXPORT_S3_SECRET"
	envCredDir    = "MAILEXPORT_CRED_DIR"
	envMaxPath    = "MAILEXPORT_MAX_PATH"
)

// IMAPEnv holds the IMAP connection details from environment variables.
type IMAPEnv struct {
	Host string
	Port int
	User string
	Pass string
}

// Addr returns the dial address in host:port form.
func (e IMAPEnv) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// S3Env holds the archive target details from environment variables.
type S3Env struct {
	Endpoint string
	Region   string
	Bucket   string
	Key      string
	Secret   string
}

// IMAPEnvFromEnv loads IMAP connection details and validates required entries.
func IMAPEnvFromEnv() (IMAPEnv, error) {
	missing := []string{}

	host := strings.TrimSpace(os.Getenv(envIMAPHost))
	if host == "" {
		missing = append(missing, envIMAPHost)
	}

	portRaw := strings.TrimSpace(os.Getenv(envIMAPPort))
	if portRaw == "" {
		missing = append(missing, envIMAPPort)
	}

	user := strings.TrimSpace(os.Getenv(envIMAPUser))
	if user == "" {
		missing = append(missing, envIMAPUser)
	}

	pass := strings.TrimSpace(os.Getenv(envIMAPPass))
	if pass == "" {
		missing = append(missing, envIMAPPass)
	}

	if len(missing) > 0 {
		return IMAPEnv{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	port, err := strconv.Atoi(portRaw)
	if err != nil {
		return IMAPEnv{}, fmt.Errorf("invalid %s: %w", envIMAPPort, err)
	}

	return IMAPEnv{
		Host: host,
		Port: port,
		User: user,
		Pass: pass,
	}, nil
}

// S3EnvFromEnv loads the archive target and validates required entries.
func S3EnvFromEnv() (S3Env, error) {
	missing := []string{}

	region := strings.TrimSpace(os.Getenv(envS3Region))
	if region == "" {
		missing = append(missing, envS3Region)
	}

	bucket := strings.TrimSpace(os.Getenv(envS3Bucket))
	if bucket == "" {
		missing = append(missing, envS3Bucket)
	}

	key := strings.TrimSpace(os.Getenv(envS3Key))
	if key == "" {
		missing = append(missing, envS3Key)
	}

	secret := strings.TrimSpace(os.Getenv(envS3Secret))
	if secret == "" {
		missing = append(missing, envS3Secret)
	}

	if len(missing) > 0 {
		return S3Env{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return S3Env{
		// Endpoint is optional; empty means the SDK's default AWS endpoint.
		Endpoint: strings.TrimSpace(os.Getenv(envS3Endpoint)),
		Region:   region,
		Bucket:   bucket,
		Key:      key,
		Secret:   secret,
	}, nil
}

// CredentialDir returns the credential store root, defaulting to
// ~/.config/mailexport/credentials.
func CredentialDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(envCredDir)); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "mailexport", "credentials"), nil
}

// MaxPath returns the configured path-length ceiling, or the platform
// convention default when unset.
func MaxPath() (int, error) {
	raw := strings.TrimSpace(os.Getenv(envMaxPath))
	if raw == "" {
		return base.DefaultMaxPath, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", envMaxPath, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", envMaxPath)
	}
	return n, nil
}
