// Package main is the entry point for the DNS broker API server.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/wafv2"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banhbaoring/dns-broker/internal/adapters"
	"github.com/banhbaoring/dns-broker/internal/broker"
	"github.com/banhbaoring/dns-broker/internal/config"
	"github.com/banhbaoring/dns-broker/internal/database"
	"github.com/banhbaoring/dns-broker/internal/middleware"
	"github.com/banhbaoring/dns-broker/internal/pipeline"
	"github.com/banhbaoring/dns-broker/internal/reconciler"
	"github.com/banhbaoring/dns-broker/internal/repository"
	"github.com/banhbaoring/dns-broker/internal/transport/osb"
	"github.com/banhbaoring/dns-broker/internal/validators"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.Info("starting dns broker", slog.String("environment", cfg.Server.Environment), slog.Int("port", cfg.Server.Port))

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(cfg.Database); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	logger.Info("migrations applied")

	redisClient, err := database.NewRedis(cfg.Redis)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	instances := repository.NewServiceInstanceRepository(db.Pool())
	operations := repository.NewOperationRepository(db.Pool())
	certificates := repository.NewCertificateRepository(db.Pool())

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		log.Fatalf("failed to load aws config: %v", err)
	}

	route53Client := route53.NewFromConfig(awsCfg)
	dnsAdapter := adapters.NewRoute53DNS(route53Client, cfg.Broker.HostedZoneID)
	caAdapter := adapters.NewCertificateAuthority(cfg.Broker.ACMEDirectoryURL, cfg.Broker.ACMEContactEmail, dnsAdapter)
	identityStore := adapters.NewACMIdentityStore(acm.NewFromConfig(awsCfg))
	loadBalancer := adapters.NewALBListener(elasticloadbalancingv2.NewFromConfig(awsCfg))
	cdnAdapter := adapters.NewCloudFrontCDN(cloudfront.NewFromConfig(awsCfg))
	firewallAdapter := adapters.NewWebACL(wafv2.NewFromConfig(awsCfg))

	deps := &pipeline.Deps{
		Instances:     instances,
		Operations:    operations,
		Certificates:  certificates,
		DNS:           dnsAdapter,
		CA:            caAdapter,
		IdentityStore: identityStore,
		LoadBalancer:  loadBalancer,
		CDN:           cdnAdapter,
		Firewall:      firewallAdapter,
		Config:        cfg.Broker,
		Logger:        logger,
	}
	runtime := pipeline.NewRuntime(deps, redisClient)

	if err := runtime.ResumePending(ctx); err != nil {
		logger.Error("resuming in-progress operations failed", "error", err)
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	const workerCount = 4
	for i := 0; i < workerCount; i++ {
		go runtime.RunWorker(workerCtx)
	}
	go runtime.RunPromoter(workerCtx)

	rec := &reconciler.Reconciler{
		Instances:     instances,
		Certificates:  certificates,
		IdentityStore: identityStore,
		LoadBalancer:  loadBalancer,
		Logger:        logger,
	}
	go rec.Run(workerCtx, cfg.Broker.ReconcilerInterval)

	cnameResolver := validators.NewDNSResolver(cfg.Broker.DNSResolverAddr)
	handler := &broker.Handler{
		Instances:     instances,
		Operations:    operations,
		CNAMEResolver: cnameResolver,
		Runtime:       runtime,
		Config:        cfg.Broker,
		Logger:        logger,
	}
	transport := osb.New(handler)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics())
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/health", healthHandler())
	r.Get("/ready", readyHandler(db, redisClient))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v2", func(r chi.Router) {
		r.Use(middleware.BasicAuth(cfg.Auth.Username, cfg.Auth.Password))
		r.Use(middleware.RateLimit(redisClient, middleware.DefaultRateLimitConfig()))
		r.Mount("/", transport.Routes())
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  time.Minute,
	}

	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutting down server", slog.String("signal", sig.String()))

	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server shutdown error: %v", err)
	}
	logger.Info("server stopped gracefully")
}

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}
}

func readyHandler(db *database.Postgres, redisClient *database.Redis) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"error","component":"database"}`))
			return
		}
		if err := redisClient.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"error","component":"redis"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","database":"connected","redis":"connected"}`))
	}
}
