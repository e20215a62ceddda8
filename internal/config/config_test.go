package config

import (
	"strings"
	"testing"

	"github.com/harbormail/mailexport/pkg/base"
)

func setIMAPEnv(t *testing.T) {
	t.Setenv(envIMAPHost, "imap.example.com")
	t.Setenv(envIMAPPort, "993")
	t.Setenv(envIMAPUser, "exporter")
	t.Setenv(envIMAPPass, "secret")
}

func TestIMAPEnvFromEnv(t *testing.T) {
	setIMAPEnv(t)

	env, err := IMAPEnvFromEnv()
	if err != nil {
		t.Fatalf("expected IMAP env to load, got error: %v", err)
	}
	if env.Host != "imap.example.com" || env.Port != 993 || env.User != "exporter" || env.Pass != "secret" {
		t.Fatalf("unexpected IMAP env: %+v", env)
	}
	if got := env.Addr(); got != "imap.example.com:993" {
		t.Fatalf("unexpected addr: %q", got)
	}
}

func TestIMAPEnvFromEnvMissing(t *testing.T) {
	setIMAPEnv(t)
	t.Setenv(envIMAPHost, "")
	t.Setenv(envIMAPPass, "")

	_, err := IMAPEnvFromEnv()
	if err == nil {
		t.Fatalf("expected error for missing environment variables")
	}
	if !strings.Contains(err.Error(), envIMAPHost) || !strings.Contains(err.Error(), envIMAPPass) {
		t.Fatalf("expected both missing variables to be named, got: %v", err)
	}
}

func TestIMAPEnvFromEnvBadPort(t *testing.T) {
	setIMAPEnv(t)
	t.Setenv(envIMAPPort, "not-a-port")

	if _, err := IMAPEnvFromEnv(); err == nil {
		t.Fatalf("expected error for invalid port")
	}
}

func TestS3EnvFromEnv(t *testing.T) {
	t.Setenv(envS3Endpoint, "")
	t.Setenv(envS3Region, "us-east-1")
	t.Setenv(envS3Bucket, "exports")
	t.Setenv(envS3Key, "AKIA")
	t.Setenv(envS3Secret, "shh")

	env, err := S3EnvFromEnv()
	if err != nil {
		t.Fatalf("expected S3 env to load, got error: %v", err)
	}
	if env.Endpoint != "" {
		t.Fatalf("expected empty endpoint, got %q", env.Endpoint)
	}
	if env.Bucket != "exports" {
		t.Fatalf("unexpected bucket: %q", env.Bucket)
	}
}

func TestS3EnvFromEnvMissing(t *testing.T) {
	t.Setenv(envS3Region, "")
	t.Setenv(envS3Bucket, "")
	t.Setenv(envS3Key, "")
	t.Setenv(envS3Secret, "")

	if _, err := S3EnvFromEnv(); err == nil {
		t.Fatalf("expected error for missing environment variables")
	}
}

func TestCredentialDirOverride(t *testing.T) {
	t.Setenv(envCredDir, "/var/lib/mailexport/creds")

	dir, err := CredentialDir()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir != "/var/lib/mailexport/creds" {
		t.Fatalf("unexpected dir: %q", dir)
	}
}

func TestCredentialDirDefault(t *testing.T) {
	t.Setenv(envCredDir, "")

	dir, err := CredentialDir()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(dir, "mailexport/credentials") && !strings.HasSuffix(dir, `mailexport\credentials`) {
		t.Fatalf("unexpected default dir: %q", dir)
	}
}

func TestMaxPathDefault(t *testing.T) {
	t.Setenv(envMaxPath, "")

	n, err := MaxPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != base.DefaultMaxPath {
		t.Fatalf("expected default ceiling %d, got %d", base.DefaultMaxPath, n)
	}
}

func TestMaxPathOverride(t *testing.T) {
	t.Setenv(envMaxPath, "4096")

	n, err := MaxPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4096 {
		t.Fatalf("expected 4096, got %d", n)
	}
}

func TestMaxPathInvalid(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-1"} {
		t.Setenv(envMaxPath, raw)
		if _, err := MaxPath(); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
