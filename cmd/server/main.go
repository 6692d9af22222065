package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"

	"github.com/vedran77/sprout/internal/auth"
	"github.com/vedran77/sprout/internal/config"
	"github.com/vedran77/sprout/internal/database"
	"github.com/vedran77/sprout/internal/envelope"
	"github.com/vedran77/sprout/internal/keyservice"
	"github.com/vedran77/sprout/internal/logger"
	"github.com/vedran77/sprout/internal/pubsub"
	"github.com/vedran77/sprout/internal/repository"
	"github.com/vedran77/sprout/internal/repository/memory"
	postgresrepo "github.com/vedran77/sprout/internal/repository/postgres"
	"github.com/vedran77/sprout/internal/service"
	"github.com/vedran77/sprout/internal/transport/http/handlers"
	"github.com/vedran77/sprout/internal/transport/http/middleware"
	"github.com/vedran77/sprout/internal/transport/ws"
)

type repositories struct {
	users    repository.UserRepository
	follows  repository.FollowRepository
	chats    repository.ChatRepository
	messages repository.MessageRepository
	stories  repository.StoryRepository
	close    func()
}

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server stopped", "error", err)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	// Storage
	repos, err := openRepositories(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer repos.close()

	// Envelope encryption
	keys, err := openKeyService(ctx, cfg, log)
	if err != nil {
		return err
	}
	cipher, err := envelope.New(keys, cfg.MasterKeyID,
		envelope.WithScheme(cfg.EnvelopeScheme),
		envelope.WithTimeout(cfg.KeyServiceTimeout),
		envelope.WithLogger(log),
	)
	if err != nil {
		return err
	}

	// Realtime
	registry := ws.NewRegistry(cfg.MaxConnsPerUser)
	router := ws.NewRouter(registry, log)
	monitor := ws.NewMonitor(registry, ws.MonitorConfig{
		ProbeInterval:     cfg.ProbeInterval,
		ProbeTimeout:      cfg.ProbeTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		IdleCheckInterval: cfg.IdleCheckInterval,
	}, log)

	var relay *pubsub.Relay
	if cfg.RedisURL != "" {
		rdb, err := pubsub.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		relay = pubsub.NewRelay(rdb, cfg.RedisChannel, log)
		defer relay.Close()
		router.SetRelay(relay)
		log.Info("cross-instance relay enabled", "channel", cfg.RedisChannel)
	}

	// Services
	chatService := service.NewChatService(repos.chats, repos.messages, repos.users, repos.follows, cipher, log)
	chatService.SetNotifier(ws.NewNotifier(router, log))
	storyService := service.NewStoryService(repos.stories, cipher, log)

	// HTTP
	tokens := auth.NewTokens(cfg.JWTSecret)
	mux := handlers.Routes(
		handlers.NewChatHandler(chatService, log),
		handlers.NewStoryHandler(storyService, log),
		ws.NewHandler(registry, router, tokens, cfg.AllowedOrigins, log),
		middleware.Auth(tokens),
	)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           middleware.RequestLogger(log)(middleware.CORS(cfg.AllowedOrigins)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return monitor.Run(gctx)
	})

	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx, func(recipientID int64, payload []byte) {
				router.DeliverLocal(recipientID, payload)
			})
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		registry.CloseAll(websocket.StatusGoingAway, "server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openRepositories(ctx context.Context, cfg *config.Config, log *logger.Logger) (*repositories, error) {
	switch cfg.StoreDriver {
	case "memory":
		log.Warn("using in-memory store; data is lost on restart")
		store := memory.New()
		return &repositories{
			users:    store.Users(),
			follows:  store.Follows(),
			chats:    store.Chats(),
			messages: store.Messages(),
			stories:  store.Stories(),
			close:    func() {},
		}, nil

	case "postgres":
		pool, err := database.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		log.Info("connected to database", "host", cfg.DBHost, "name", cfg.DBName)

		if cfg.DBMigrate {
			if err := database.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		return &repositories{
			users:    postgresrepo.NewUserRepo(pool),
			follows:  postgresrepo.NewFollowRepo(pool),
			chats:    postgresrepo.NewChatRepo(pool),
			messages: postgresrepo.NewMessageRepo(pool),
			stories:  postgresrepo.NewStoryRepo(pool),
			close:    pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func openKeyService(ctx context.Context, cfg *config.Config, log *logger.Logger) (keyservice.Client, error) {
	switch cfg.KeyService {
	case "kms":
		return keyservice.NewKMS(ctx, cfg.AWSRegion)

	case "local":
		keys := keyservice.NewLocal()
		if cfg.LocalMasterKey != "" {
			if err := keys.AddEncodedKey(cfg.MasterKeyID, cfg.LocalMasterKey); err != nil {
				return nil, err
			}
			return keys, nil
		}
		log.Warn("LOCAL_MASTER_KEY not set; generated a master key, stored content will be unreadable after restart")
		if err := keys.GenerateKey(cfg.MasterKeyID); err != nil {
			return nil, err
		}
		return keys, nil

	default:
		return nil, fmt.Errorf("unknown KEY_SERVICE %q", cfg.KeyService)
	}
}
