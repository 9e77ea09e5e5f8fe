package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"devices-api/internal/database"
	"devices-api/internal/devices/application"
	devices "devices-api/internal/devices/domain"
	"devices-api/internal/devices/infrastructure/sqlstore"
	"devices-api/internal/logging"
)

type config struct {
	driver      string
	dsn         string
	baseURL     string
	token       string
	namePrefix  string
	brands      []string
	deviceCount int
	migrate     bool
}

type deviceSpec struct {
	Name  string `json:"name"`
	Brand string `json:"brand"`
	State string `json:"state"`
}

func main() {
	cfg := parseConfig(os.Args[1:])
	logger, err := logging.Init(logging.Config{Output: "console"})
	if err != nil {
		os.Exit(1)
	}
	if cfg.deviceCount <= 0 {
		logger.Fatal().Msg("device-count must be > 0")
	}
	if len(cfg.brands) == 0 {
		logger.Fatal().Msg("at least one brand is required")
	}

	specs := buildDeviceSpecs(cfg.namePrefix, cfg.brands, cfg.deviceCount)
	ctx := context.Background()

	var created, skipped int
	if cfg.baseURL != "" {
		logger.Info().Str("base_url", cfg.baseURL).Int("devices", len(specs)).Msg("seeding through the api")
		created, skipped, err = seedViaAPI(ctx, http.DefaultClient, cfg.baseURL, cfg.token, specs)
	} else {
		if cfg.dsn == "" {
			logger.Fatal().Msg("PG_DSN or DATABASE_URL is required when base-url is empty")
		}
		logger.Info().Str("driver", cfg.driver).Int("devices", len(specs)).Msg("seeding through the database")
		created, skipped, err = seedViaDB(ctx, cfg, specs, logger)
	}
	if err != nil {
		logger.Fatal().Err(err).Int("created", created).Msg("seed failed")
	}
	logger.Info().Int("created", created).Int("skipped", skipped).Msg("device seed completed")
}

func parseConfig(args []string) config {
	cfg := config{}
	var brands string
	flags := pflag.NewFlagSet("seed_devices", pflag.ExitOnError)
	flags.StringVar(&cfg.driver, "driver", envOrDefault("DATABASE_DRIVER", database.DriverPostgres), "database driver (pgx or sqlite3)")
	flags.StringVar(&cfg.dsn, "dsn", envOrDefault("DATABASE_URL", envOrDefault("PG_DSN", "")), "database DSN")
	flags.StringVar(&cfg.baseURL, "base-url", envOrDefault("BASE_URL", ""), "API base URL; seeds over HTTP when set")
	flags.StringVar(&cfg.token, "token", envOrDefault("API_TOKEN", ""), "bearer token for the API")
	flags.StringVar(&cfg.namePrefix, "name-prefix", envOrDefault("NAME_PREFIX", "device-perf-"), "device name prefix")
	flags.StringVar(&brands, "brands", envOrDefault("BRANDS", "Dell,HP,Lenovo,Apple"), "comma separated brand names")
	flags.IntVar(&cfg.deviceCount, "device-count", envOrInt("DEVICE_COUNT", 100), "number of devices to seed")
	flags.BoolVar(&cfg.migrate, "migrate", false, "apply the schema before seeding")
	_ = flags.Parse(args)
	cfg.brands = splitCSV(brands)
	return cfg
}

// buildDeviceSpecs spreads count devices round-robin over brands and states.
func buildDeviceSpecs(prefix string, brands []string, count int) []deviceSpec {
	states := devices.States()
	list := make([]deviceSpec, 0, count)
	for i := 1; i <= count; i++ {
		list = append(list, deviceSpec{
			Name:  fmt.Sprintf("%s%05d", prefix, i),
			Brand: brands[(i-1)%len(brands)],
			State: string(states[(i-1)%len(states)]),
		})
	}
	return list
}

func seedViaDB(ctx context.Context, cfg config, specs []deviceSpec, logger zerolog.Logger) (int, int, error) {
	db, err := database.Open(ctx, database.Config{Driver: cfg.driver, DSN: cfg.dsn})
	if err != nil {
		return 0, 0, err
	}
	defer db.Close()
	if cfg.migrate {
		if err := database.Migrate(ctx, db, cfg.driver); err != nil {
			return 0, 0, err
		}
	}
	service, err := application.NewService(sqlstore.NewStore(db), application.WithLogger(logger))
	if err != nil {
		return 0, 0, err
	}
	return seedService(ctx, service, specs)
}

type creator interface {
	Create(ctx context.Context, input application.CreateInput) (*devices.Device, error)
}

func seedService(ctx context.Context, service creator, specs []deviceSpec) (created, skipped int, err error) {
	for _, spec := range specs {
		state, err := devices.ParseState(spec.State)
		if err != nil {
			return created, skipped, err
		}
		_, err = service.Create(ctx, application.CreateInput{Name: spec.Name, BrandName: spec.Brand, State: state})
		switch {
		case errors.Is(err, devices.ErrAlreadyExists):
			skipped++
		case err != nil:
			return created, skipped, fmt.Errorf("create %s: %w", spec.Name, err)
		default:
			created++
		}
	}
	return created, skipped, nil
}

func seedViaAPI(ctx context.Context, client *http.Client, baseURL, token string, specs []deviceSpec) (created, skipped int, err error) {
	endpoint := strings.TrimRight(baseURL, "/") + "/api/v1/devices"
	for _, spec := range specs {
		body, err := json.Marshal(spec)
		if err != nil {
			return created, skipped, err
		}
		reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			cancel()
			return created, skipped, err
		}
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := client.Do(req)
		if err != nil {
			cancel()
			return created, skipped, err
		}
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		cancel()

		switch resp.StatusCode {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			skipped++
		default:
			return created, skipped, fmt.Errorf("create %s: status %d: %s", spec.Name, resp.StatusCode, strings.TrimSpace(string(payload)))
		}
	}
	return created, skipped, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
