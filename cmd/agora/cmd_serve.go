package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/layer-3/agora/adapters/events"
	"github.com/layer-3/agora/adapters/sqlite"
	"github.com/layer-3/agora/adapters/store"
	"github.com/layer-3/agora/adapters/tokenizer"
	"github.com/layer-3/agora/adapters/uploads"
	"github.com/layer-3/agora/internal/logger"
	"github.com/layer-3/agora/internal/metrics"
	"github.com/layer-3/agora/ports"
	"github.com/layer-3/agora/service"
	httptransport "github.com/layer-3/agora/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// serveCmd runs the marketplace backend
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the marketplace HTTP backend",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	signKey, err := signingKey()
	if err != nil {
		return err
	}

	tokenStore, publisher, closeBackends, err := backends()
	if err != nil {
		return err
	}
	defer closeBackends()
	eventPub := events.NewWatermillPublisher(publisher)

	repo, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	images, err := uploads.NewDiskStore(cfg.UploadDir)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewPrometheusRecorder(reg)

	authService := service.NewAuthService(tokenizer.NewJWTTokenizer(signKey), tokenStore, eventPub,
		service.WithAuthLogger(log))
	marketService := service.NewMarketService(repo, images,
		service.WithMarketEvents(eventPub),
		service.WithMarketMetrics(rec),
		service.WithMarketLogger(log))

	router := httptransport.SetupRouter(httptransport.RouterConfig{
		Auth:           authService,
		Market:         marketService,
		UploadDir:      images.Dir(),
		DeploymentFile: cfg.DeploymentFile,
		Metrics:        rec,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Log:            log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("marketplace listening", zap.String("addr", cfg.HTTPAddr), zap.String("db", repo.Path()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func signingKey() (*ecdsa.PrivateKey, error) {
	if cfg.JWTKey != "" {
		return tokenizer.ParseSigningKey(cfg.JWTKey)
	}
	log.Warn("AGORA_JWT_KEY not set, tokens will not survive a restart")
	return tokenizer.GenerateSigningKey()
}

// backends returns the token store and event transport: Redis when
// REDIS_URL is set, in-process otherwise.
func backends() (ports.Store, message.Publisher, func(), error) {
	if cfg.RedisURL == "" {
		pubSub := gochannel.NewGoChannel(gochannel.Config{}, logger.Watermill(log))
		return store.NewMemoryStore(), pubSub, func() { _ = pubSub.Close() }, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisClient := redis.NewClient(opts)

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		logger.Watermill(log),
	)
	if err != nil {
		_ = redisClient.Close()
		return nil, nil, nil, fmt.Errorf("failed to create Redis publisher: %w", err)
	}

	closeFn := func() {
		_ = publisher.Close()
		_ = redisClient.Close()
	}
	return store.NewRedisStore(redisClient), publisher, closeFn, nil
}
