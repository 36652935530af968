package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"orbitstudio/internal/adapter/repo"
	"orbitstudio/internal/enrich"
	"orbitstudio/internal/generation"
	"orbitstudio/internal/http/handlers"
	"orbitstudio/internal/http/httpapi"
	"orbitstudio/internal/infra"
	"orbitstudio/internal/infra/gcpauth"
	"orbitstudio/internal/infra/geoip"
	"orbitstudio/internal/lro"
	"orbitstudio/internal/metrics"
	"orbitstudio/internal/providers/veo"
	"orbitstudio/internal/studio"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	generations := repo.NewGenerationRepository(infra.NewSQLRunner(dbpool, &logger))
	if err := generations.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare schema")
	}

	var source veo.ClientSource = gcpauth.NewSource(cfg.Veo.RequestTimeout)
	if cfg.Veo.Auth == "none" {
		source = veo.StaticSource{Client: &http.Client{Timeout: cfg.Veo.RequestTimeout}}
	}
	veoClient, err := veo.NewClient(veo.Options{
		BaseURL:   cfg.Veo.BaseURL,
		ProjectID: cfg.Veo.ProjectID,
		Location:  cfg.Veo.Location,
		Model:     cfg.Veo.Model,
		Source:    source,
		Logger:    &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build veo client")
	}

	collector := metrics.New()
	enricher := enrich.New(generation.DurationSeconds)
	st, err := studio.New(studio.Options{
		Initiator:  generation.NewInitiator(veoClient, &logger),
		Fetcher:    veoClient,
		Enrich:     enricher.Videos,
		Repository: generations,
		Polling: lro.Config{
			InitialInterval:   cfg.Polling.InitialInterval,
			MaxInterval:       cfg.Polling.MaxInterval,
			Multiplier:        cfg.Polling.Multiplier,
			JitterFactor:      cfg.Polling.JitterFactor,
			MaxAttempts:       cfg.Polling.MaxAttempts,
			SurfaceExhaustion: cfg.Polling.SurfaceExhaustion,
		},
		Metrics: collector,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build studio")
	}

	if n, err := st.Resume(ctx, cfg.Polling.ResumeLimit); err != nil {
		logger.Warn().Err(err).Msg("failed to resume pending generations")
	} else if n > 0 {
		logger.Info().Int("count", n).Msg("resumed pending generations")
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
		resolver = nil
	}
	defer resolver.Close()

	app := &handlers.App{
		Generations: st,
		GCSURI:      cfg.GCSURI,
		Ready:       dbpool.Ping,
		Logger:      &logger,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		DefaultLocale:   cfg.DefaultLocale,
		CountryLookup:   geoip.LookupFunc(resolver),
		RateLimitPerMin: cfg.RateLimitPerMin,
		TrustProxy:      cfg.TrustProxyHeaders,
		JWTSecret:       cfg.JWTSecret,
		CORSOrigins:     cfg.CORSOrigins,
		Metrics:         collector,
		Logger:          &logger,
	})

	server := infra.NewHTTPServer(cfg.Port, router, infra.ServerTimeouts{
		Read:  cfg.HTTPReadTimeout,
		Write: cfg.HTTPWriteTimeout,
		Idle:  cfg.HTTPIdleTimeout,
	}, &logger)

	if err := server.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("http server failed")
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := st.Close(closeCtx); err != nil {
		logger.Warn().Err(err).Msg("studio did not drain in time")
	}
	logger.Info().Msg("server stopped")
}
