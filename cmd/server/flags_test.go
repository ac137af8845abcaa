package main

import (
	"flag"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags clears the global flag set between subtests.
func resetFlags() {
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		envServerPort, envTLSCertFile, envTLSKeyFile, envDatabaseDSN,
		envMinioEndpoint, envMinioUser, envMinioPassword, envMinioBucket,
		envMinioUseSSL, envManifestHMACKey, envJWTSecret, envAuditLogFile,
		envProcessingProvider,
	}
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			t.Cleanup(func() { os.Setenv(k, v) })
		} else {
			t.Cleanup(func() { os.Unsetenv(k) })
		}
		os.Unsetenv(k)
	}
}

// setRequiredSecrets fills the env-only values every successful parse needs.
func setRequiredSecrets() {
	os.Setenv(envManifestHMACKey, "test-signing-key")
	os.Setenv(envJWTSecret, "test-jwt-secret")
}

func TestParseFlags(t *testing.T) {
	originalArgs := os.Args
	clearConfigEnv(t)

	t.Run("everything from flags", func(t *testing.T) {
		resetFlags()
		defer func() { os.Args = originalArgs }()
		setRequiredSecrets()

		os.Args = []string{
			"cmd",
			"-port=9443",
			"-cert-file=cert.pem",
			"-key-file=key.pem",
			"-database-dsn=postgres://...",
			"-minio-endpoint=localhost:9000",
			"-audit-log-file=/var/log/audit.jsonl",
		}
		cfg, err := parseFlags()
		require.NoError(t, err)
		assert.Equal(t, "9443", cfg.Port)
		assert.Equal(t, "cert.pem", cfg.CertFile)
		assert.Equal(t, "key.pem", cfg.KeyFile)
		assert.Equal(t, "postgres://...", cfg.DatabaseDSN)
		assert.Equal(t, "localhost:9000", cfg.MinioEndpoint)
		assert.Equal(t, "/var/log/audit.jsonl", cfg.AuditLogFile)
	})

	t.Run("everything from environment", func(t *testing.T) {
		resetFlags()
		defer func() { os.Args = originalArgs }()
		os.Args = []string{"cmd"}

		setRequiredSecrets()
		os.Setenv(envServerPort, "9090")
		os.Setenv(envTLSCertFile, "env_cert.pem")
		os.Setenv(envTLSKeyFile, "env_key.pem")
		os.Setenv(envDatabaseDSN, "env_postgres://...")
		os.Setenv(envMinioEndpoint, "minio.internal:9000")
		os.Setenv(envMinioUseSSL, "true")
		defer func() {
			os.Unsetenv(envServerPort)
			os.Unsetenv(envTLSCertFile)
			os.Unsetenv(envTLSKeyFile)
			os.Unsetenv(envDatabaseDSN)
			os.Unsetenv(envMinioEndpoint)
			os.Unsetenv(envMinioUseSSL)
		}()

		cfg, err := parseFlags()
		require.NoError(t, err)
		assert.Equal(t, "9090", cfg.Port)
		assert.Equal(t, "env_cert.pem", cfg.CertFile)
		assert.Equal(t, "env_key.pem", cfg.KeyFile)
		assert.Equal(t, "env_postgres://...", cfg.DatabaseDSN)
		assert.Equal(t, "minio.internal:9000", cfg.MinioEndpoint)
		assert.True(t, cfg.MinioUseSSL)
	})

	t.Run("defaults apply", func(t *testing.T) {
		resetFlags()
		defer func() { os.Args = originalArgs }()
		setRequiredSecrets()
		os.Args = []string{
			"cmd",
			"-cert-file=cert.pem", "-key-file=key.pem",
			"-database-dsn=postgres://...", "-minio-endpoint=localhost:9000",
		}

		cfg, err := parseFlags()
		require.NoError(t, err)
		assert.Equal(t, defaultServerPort, cfg.Port)
		assert.Equal(t, defaultMinioBucket, cfg.MinioBucket)
		assert.Equal(t, defaultAuditLogFile, cfg.AuditLogFile)
	})

	t.Run("missing cert-file", func(t *testing.T) {
		resetFlags()
		defer func() { os.Args = originalArgs }()
		setRequiredSecrets()
		os.Args = []string{
			"cmd",
			"-key-file=key.pem",
			"-database-dsn=postgres://...", "-minio-endpoint=localhost:9000",
		}

		_, err := parseFlags()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "certificate")
	})

	t.Run("missing database DSN", func(t *testing.T) {
		resetFlags()
		defer func() { os.Args = originalArgs }()
		setRequiredSecrets()
		os.Args = []string{
			"cmd",
			"-cert-file=cert.pem", "-key-file=key.pem",
			"-minio-endpoint=localhost:9000",
		}

		_, err := parseFlags()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DSN")
	})

	t.Run("missing signing key", func(t *testing.T) {
		resetFlags()
		defer func() { os.Args = originalArgs }()
		os.Setenv(envJWTSecret, "test-jwt-secret")
		os.Unsetenv(envManifestHMACKey)
		os.Args = []string{
			"cmd",
			"-cert-file=cert.pem", "-key-file=key.pem",
			"-database-dsn=postgres://...", "-minio-endpoint=localhost:9000",
		}

		_, err := parseFlags()
		require.Error(t, err)
		assert.Contains(t, err.Error(), envManifestHMACKey)
	})

	t.Run("flags override environment", func(t *testing.T) {
		resetFlags()
		defer func() { os.Args = originalArgs }()

		setRequiredSecrets()
		os.Setenv(envServerPort, "9090")
		os.Setenv(envAuditLogFile, "env_audit.log")
		defer func() {
			os.Unsetenv(envServerPort)
			os.Unsetenv(envAuditLogFile)
		}()

		os.Args = []string{
			"cmd",
			"-port=8080",
			"-cert-file=cert.pem", "-key-file=key.pem",
			"-database-dsn=postgres://...", "-minio-endpoint=localhost:9000",
			"-audit-log-file=flag_audit.log",
		}
		cfg, err := parseFlags()
		require.NoError(t, err)
		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, "flag_audit.log", cfg.AuditLogFile)
	})
}
