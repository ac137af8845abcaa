package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

const (
	defaultServerPort   = "8443"
	defaultMinioBucket  = "custodia-evidence"
	defaultAuditLogFile = "custodia_audit.log"

	envServerPort         = "SERVER_PORT"
	envTLSCertFile        = "TLS_CERT_FILE"
	envTLSKeyFile         = "TLS_KEY_FILE"
	envDatabaseDSN        = "DATABASE_DSN"
	envMinioEndpoint      = "MINIO_ENDPOINT"
	envMinioUser          = "MINIO_USER"
	envMinioPassword      = "MINIO_PASSWORD"
	envMinioBucket        = "MINIO_BUCKET"
	envMinioUseSSL        = "MINIO_USE_SSL"
	envManifestHMACKey    = "MANIFEST_HMAC_KEY"
	envJWTSecret          = "JWT_SECRET"
	envAuditLogFile       = "AUDIT_LOG_FILE"
	envProcessingProvider = "PROCESSING_PROVIDER"
)

// config holds everything the server needs at startup. Secrets come from
// the environment, never from source.
type config struct {
	Port               string
	CertFile           string
	KeyFile            string
	DatabaseDSN        string
	MinioEndpoint      string
	MinioUser          string
	MinioPassword      string
	MinioBucket        string
	MinioUseSSL        bool
	ManifestHMACKey    string
	JWTSecret          string
	AuditLogFile       string
	ProcessingProvider string
}

// parseFlags reads flags with environment fallback and validates the
// required values.
func parseFlags() (*config, error) {
	cfg := &config{}

	flag.StringVar(&cfg.Port, "port", "",
		fmt.Sprintf("HTTPS listen port (env: %s, default: %s)", envServerPort, defaultServerPort))
	flag.StringVar(&cfg.CertFile, "cert-file", "",
		fmt.Sprintf("TLS certificate path (env: %s)", envTLSCertFile))
	flag.StringVar(&cfg.KeyFile, "key-file", "",
		fmt.Sprintf("TLS key path (env: %s)", envTLSKeyFile))
	flag.StringVar(&cfg.DatabaseDSN, "database-dsn", "",
		fmt.Sprintf("PostgreSQL DSN (env: %s)", envDatabaseDSN))
	flag.StringVar(&cfg.MinioEndpoint, "minio-endpoint", "",
		fmt.Sprintf("Object store endpoint (env: %s)", envMinioEndpoint))
	flag.StringVar(&cfg.MinioBucket, "minio-bucket", "",
		fmt.Sprintf("Evidence bucket (env: %s, default: %s)", envMinioBucket, defaultMinioBucket))
	flag.StringVar(&cfg.AuditLogFile, "audit-log-file", "",
		fmt.Sprintf("Append-only audit log path (env: %s, default: %s)", envAuditLogFile, defaultAuditLogFile))
	flag.StringVar(&cfg.ProcessingProvider, "processing-provider", "",
		fmt.Sprintf("Downstream processing provider (env: %s, default: noop)", envProcessingProvider))
	flag.Parse()

	applyEnvFallback(&cfg.Port, envServerPort, defaultServerPort)
	applyEnvFallback(&cfg.CertFile, envTLSCertFile, "")
	applyEnvFallback(&cfg.KeyFile, envTLSKeyFile, "")
	applyEnvFallback(&cfg.DatabaseDSN, envDatabaseDSN, "")
	applyEnvFallback(&cfg.MinioEndpoint, envMinioEndpoint, "")
	applyEnvFallback(&cfg.MinioBucket, envMinioBucket, defaultMinioBucket)
	applyEnvFallback(&cfg.AuditLogFile, envAuditLogFile, defaultAuditLogFile)
	applyEnvFallback(&cfg.ProcessingProvider, envProcessingProvider, "")

	cfg.MinioUser = os.Getenv(envMinioUser)
	cfg.MinioPassword = os.Getenv(envMinioPassword)
	cfg.MinioUseSSL = os.Getenv(envMinioUseSSL) == "true"
	cfg.ManifestHMACKey = os.Getenv(envManifestHMACKey)
	cfg.JWTSecret = os.Getenv(envJWTSecret)

	if cfg.CertFile == "" {
		return nil, errors.New("TLS certificate path is required (--cert-file or " + envTLSCertFile + ")")
	}
	if cfg.KeyFile == "" {
		return nil, errors.New("TLS key path is required (--key-file or " + envTLSKeyFile + ")")
	}
	if cfg.DatabaseDSN == "" {
		return nil, errors.New("database DSN is required (--database-dsn or " + envDatabaseDSN + ")")
	}
	if cfg.MinioEndpoint == "" {
		return nil, errors.New("object store endpoint is required (--minio-endpoint or " + envMinioEndpoint + ")")
	}
	if cfg.ManifestHMACKey == "" {
		return nil, errors.New("manifest signing key is required (" + envManifestHMACKey + ")")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT secret is required (" + envJWTSecret + ")")
	}

	return cfg, nil
}

func applyEnvFallback(target *string, envKey, fallback string) {
	if *target != "" {
		return
	}
	if value, ok := os.LookupEnv(envKey); ok {
		*target = value
		return
	}
	*target = fallback
}
