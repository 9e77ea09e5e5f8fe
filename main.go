package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"devices-api/internal/audit"
	"devices-api/internal/auth"
	"devices-api/internal/config"
	"devices-api/internal/database"
	"devices-api/internal/devices/application"
	"devices-api/internal/devices/infrastructure/sqlstore"
	deviceevents "devices-api/internal/devices/interfaces/events"
	devicehttp "devices-api/internal/devices/interfaces/http"
	"devices-api/internal/logging"
	"devices-api/internal/observability/metrics"
)

const headerRequestID = "X-Request-ID"

func main() {
	flags := pflag.NewFlagSet("devices-api", pflag.ExitOnError)
	configPath := flags.String("config", "", "path to a YAML config file (default $"+config.EnvConfigPath+")")
	addr := flags.String("addr", "", "HTTP listen address, overrides HTTP_ADDR")
	migrate := flags.Bool("migrate", false, "apply the embedded schema before serving")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("config error")
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}

	logger, err := logging.Init(cfg.Log)
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("logger init error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.Config{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("db open error")
	}
	defer db.Close()

	if *migrate {
		if err := database.Migrate(ctx, db, cfg.Database.Driver); err != nil {
			logger.Fatal().Err(err).Msg("db migrate error")
		}
		logger.Info().Str("driver", cfg.Database.Driver).Msg("schema applied")
	}

	metrics.Init(db, logging.WithComponent(logger, "metrics"))

	publishers := deviceevents.MultiPublisher{deviceevents.NewLoggingPublisher(logging.WithComponent(logger, "events"))}
	if cfg.NATS.URL != "" {
		nc, err := deviceevents.Connect(cfg.NATS.URL)
		if err != nil {
			logger.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("nats connect error")
		}
		defer func() { _ = nc.Drain() }()
		natsPublisher, err := deviceevents.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix)
		if err != nil {
			logger.Fatal().Err(err).Msg("nats publisher error")
		}
		publishers = append(publishers, natsPublisher)
		logger.Info().Str("url", cfg.NATS.URL).Str("prefix", cfg.NATS.SubjectPrefix).Msg("publishing device events to nats")
	}

	service, err := application.NewService(
		sqlstore.NewStore(db),
		application.WithPublisher(publishers),
		application.WithLogger(logging.WithComponent(logger, "devices")),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("device service error")
	}

	var auditLogger audit.Logger
	if cfg.Audit.Enabled {
		auditLogger = audit.NewRepository(db)
	}

	handler, err := newRouter(routerDeps{
		db:          db,
		service:     service,
		auditLogger: auditLogger,
		jwtSecret:   []byte(cfg.Auth.JWTSecret),
		logger:      logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("router error")
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Warn().Msg("AUTH_JWT_SECRET not set, API is unauthenticated")
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	case <-ctx.Done():
		logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("http shutdown error")
		}
	}
}

type routerDeps struct {
	db          *sql.DB
	service     devicehttp.DeviceService
	auditLogger audit.Logger
	jwtSecret   []byte
	logger      zerolog.Logger
}

func newRouter(deps routerDeps) (http.Handler, error) {
	deviceHandler, err := devicehttp.NewHandler(deps.service, deps.auditLogger, logging.WithComponent(deps.logger, "http"))
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	deviceHandler.Register(mux)
	devicehttp.NewExportHandler(deps.service, logging.WithComponent(deps.logger, "export")).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if deps.db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.db.PingContext(ctx); err != nil {
				http.Error(w, "db unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware(deps.jwtSecret, policy, auth.WithLogger(logging.WithComponent(deps.logger, "auth")))
	return loggingMiddleware(authMiddleware.Wrap(mux), deps.logger), nil
}

func loggingMiddleware(next http.Handler, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(headerRequestID, requestID)

		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)

		metrics.IncHTTPRequest(r.Method, strconv.Itoa(resp.status))
		logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", resp.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
