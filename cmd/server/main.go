package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/evidentium/custodia/internal/audit"
	"github.com/evidentium/custodia/internal/authz"
	"github.com/evidentium/custodia/internal/handlers"
	"github.com/evidentium/custodia/internal/jobs"
	appmiddleware "github.com/evidentium/custodia/internal/middleware"
	"github.com/evidentium/custodia/internal/processing"
	"github.com/evidentium/custodia/internal/repository"
	"github.com/evidentium/custodia/internal/services"
	"github.com/evidentium/custodia/internal/storage"
)

const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 5 * time.Minute // package export streams large archives
	defaultIdleTimeout  = 60 * time.Second
)

type dependencies struct {
	db              *sqlx.DB
	auditSink       *audit.FileSink
	authHandler     *handlers.AuthHandler
	caseHandler     *handlers.CaseHandler
	evidenceHandler *handlers.EvidenceHandler
	manifestHandler *handlers.ManifestHandler
	tokenHandler    *handlers.TokenHandler
	portalHandler   *handlers.PortalHandler
	exportHandler   *handlers.ExportHandler
	jobHandler      *handlers.JobHandler
	trail           *audit.Trail
	matrix          *authz.Matrix
	jwtSecret       []byte
}

func main() {
	if err := run(); err != nil {
		log.Printf("Server exited with error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	log.Println("Starting Custodia evidence server...")

	cfg, err := parseFlags()
	if err != nil {
		return err
	}

	deps, err := setupDependencies(cfg)
	if err != nil {
		return fmt.Errorf("initializing dependencies: %w", err)
	}
	defer func() {
		if deps.db != nil {
			if closeErr := deps.db.Close(); closeErr != nil {
				log.Printf("Closing database connection: %v", closeErr)
			}
		}
		if deps.auditSink != nil {
			if closeErr := deps.auditSink.Close(); closeErr != nil {
				log.Printf("Closing audit log file: %v", closeErr)
			}
		}
	}()

	r := setupRouter(deps)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	log.Printf("Listening for HTTPS on port %s...", cfg.Port)
	if err = server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("running HTTPS server: %w", err)
	}
	return nil
}

func setupDependencies(cfg *config) (*dependencies, error) {
	deps := &dependencies{jwtSecret: []byte(cfg.JWTSecret)}
	var err error

	deps.db, err = repository.NewPostgresDB(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("initializing database: %w", err)
	}

	blobStore, err := storage.NewMinioClient(storage.MinioConfig{
		Endpoint:        cfg.MinioEndpoint,
		AccessKeyID:     cfg.MinioUser,
		SecretAccessKey: cfg.MinioPassword,
		UseSSL:          cfg.MinioUseSSL,
		BucketName:      cfg.MinioBucket,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing object store: %w", err)
	}

	deps.auditSink, err = audit.NewFileSink(cfg.AuditLogFile)
	if err != nil {
		return nil, fmt.Errorf("opening audit log file: %w", err)
	}

	provider, err := processing.FromConfig(cfg.ProcessingProvider)
	if err != nil {
		return nil, err
	}

	deps.matrix = authz.Default()
	if err := deps.matrix.Validate(); err != nil {
		return nil, fmt.Errorf("validating permission matrix: %w", err)
	}

	caseRepo := repository.NewPostgresCaseRepository(deps.db)
	evidenceRepo := repository.NewPostgresEvidenceRepository(deps.db)
	auditRepo := repository.NewPostgresAuditRepository(deps.db)
	tokenRepo := repository.NewPostgresTokenRepository(deps.db)
	userRepo := repository.NewPostgresUserRepository(deps.db)
	jobRepo := repository.NewPostgresJobRepository(deps.db)

	deps.trail = audit.NewTrail(deps.db, auditRepo, deps.auditSink)
	queue := jobs.NewPostgresQueue(deps.db, jobRepo)
	runner := jobs.NewRunner(deps.db, jobRepo, evidenceRepo, blobStore, provider, deps.trail)

	signingKey := []byte(cfg.ManifestHMACKey)

	authService := services.NewAuthService(userRepo, deps.jwtSecret)
	caseService := services.NewCaseService(deps.db, caseRepo, deps.trail)
	evidenceService := services.NewEvidenceService(deps.db, caseRepo, evidenceRepo, blobStore, queue, deps.trail)
	manifestService := services.NewManifestService(caseRepo, evidenceRepo, deps.trail, signingKey)
	replayService := services.NewReplayService(evidenceRepo, deps.trail, blobStore, signingKey)
	tokenService := services.NewTokenService(deps.db, tokenRepo, deps.trail)
	exportService := services.NewExportService(caseRepo, evidenceRepo, jobRepo, blobStore)

	deps.authHandler = handlers.NewAuthHandler(authService)
	deps.caseHandler = handlers.NewCaseHandler(caseService)
	deps.evidenceHandler = handlers.NewEvidenceHandler(evidenceService)
	deps.manifestHandler = handlers.NewManifestHandler(manifestService, replayService, deps.trail)
	deps.tokenHandler = handlers.NewTokenHandler(tokenService)
	deps.portalHandler = handlers.NewPortalHandler(tokenService, evidenceService)
	deps.exportHandler = handlers.NewExportHandler(exportService)
	deps.jobHandler = handlers.NewJobHandler(runner)

	return deps, nil
}

func setupRouter(deps *dependencies) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(appmiddleware.NewRequestLogger())
	r.Use(chimiddleware.Recoverer)

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong\n"))
	})

	authn := appmiddleware.NewAuthenticator(deps.jwtSecret)
	action := func(a string) func(http.Handler) http.Handler {
		return appmiddleware.RequireAction(deps.matrix, a)
	}
	purpose := func(a string) func(http.Handler) http.Handler {
		return appmiddleware.RequirePurpose(deps.trail, a)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", deps.authHandler.Register)
		r.Post("/login", deps.authHandler.Login)

		// Stateless manifest verification. Anyone holding a manifest copy
		// may check its digest and signature.
		r.Post("/manifest/verify", deps.manifestHandler.Verify)

		// External recipients authenticate with a capability token only.
		r.Route("/portal", func(r chi.Router) {
			r.Get("/evidence", deps.portalHandler.ListEvidence)
			r.Get("/evidence/{evidenceID}", deps.portalHandler.Download)
		})

		// Staff endpoints.
		r.Group(func(r chi.Router) {
			r.Use(authn)

			r.Route("/cases", func(r chi.Router) {
				r.With(action(authz.ActionCaseCreate)).Post("/", deps.caseHandler.Create)
				r.With(action(authz.ActionCaseRead)).Get("/", deps.caseHandler.List)
				r.With(action(authz.ActionCaseRead)).Get("/{caseID}", deps.caseHandler.Get)

				r.With(action(authz.ActionEvidenceInit)).Post("/{caseID}/evidence", deps.evidenceHandler.Init)
				r.With(action(authz.ActionCaseRead)).Get("/{caseID}/evidence", deps.evidenceHandler.ListByCase)

				r.With(action(authz.ActionManifestExport), purpose(authz.ActionManifestExport)).
					Get("/{caseID}/manifest", deps.manifestHandler.Export)
				r.With(action(authz.ActionAuditReplay)).Get("/{caseID}/replay", deps.manifestHandler.Replay)
				r.With(action(authz.ActionAuditQuery), purpose(authz.ActionAuditQuery)).
					Get("/{caseID}/audit", deps.manifestHandler.AuditQuery)

				r.With(action(authz.ActionTokenCreate)).Post("/{caseID}/tokens", deps.tokenHandler.Create)
				r.With(action(authz.ActionTokenList)).Get("/{caseID}/tokens", deps.tokenHandler.ListForCase)

				r.With(action(authz.ActionPackageExport), purpose(authz.ActionPackageExport)).
					Post("/{caseID}/package", deps.exportHandler.Build)
			})

			r.Route("/evidence", func(r chi.Router) {
				r.With(action(authz.ActionEvidenceFinalize)).Post("/{evidenceID}/finalize", deps.evidenceHandler.Finalize)
				r.With(action(authz.ActionEvidenceDownload), purpose(authz.ActionEvidenceDownload)).
					Get("/{evidenceID}/download", deps.evidenceHandler.Download)
			})

			r.With(action(authz.ActionTokenRevoke)).Post("/tokens/{tokenID}/revoke", deps.tokenHandler.Revoke)
			r.With(action(authz.ActionJobRun)).Post("/jobs/run", deps.jobHandler.RunOnce)
		})
	})
	return r
}
