package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusmarket/internal/config"
	"github.com/campusmarket/internal/email"
	"github.com/campusmarket/internal/handler"
	"github.com/campusmarket/internal/logger"
	"github.com/campusmarket/internal/middleware"
	"github.com/campusmarket/internal/model"
	"github.com/campusmarket/internal/push"
	"github.com/campusmarket/internal/repository"
	"github.com/campusmarket/internal/service"
	"github.com/campusmarket/internal/startup"
	"github.com/campusmarket/internal/storage"
	"github.com/campusmarket/internal/storage/memory"
	"github.com/campusmarket/internal/ws"
	"github.com/campusmarket/migrations"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL and in-memory sessions (no external services required)")
	flag.Parse()

	logger.Info("starting API service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second)
	defer pool.Close()

	runMigrations(pool)
	if *migrate && !*dev {
		return
	}
	logger.Info("database connected, migrations applied")

	var store storage.SessionStore
	if *dev {
		store = memory.New()
	} else {
		redisClient := startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second)
		store = redisClient
	}
	defer store.Close()

	userRepo := repository.NewUserRepository(pool)
	productRepo := repository.NewProductRepository(pool)
	chatRepo := repository.NewChatRepository(pool)
	msgRepo := repository.NewMessageRepository(pool)
	supportRepo := repository.NewSupportRepository(pool)
	pushSubRepo := repository.NewPushSubscriptionRepository(pool)

	if *dev {
		seedDev(pool, store, userRepo, productRepo)
	}

	vapidKeys, err := push.EnsureVAPIDKeys(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, "")
	if err != nil {
		logger.Errorf("vapid keys: %v (push sending disabled)", err)
		vapidKeys = nil
	}
	pushSender := push.NewSender(pushSubRepo, vapidKeys, "mailto:support@campusmarket.app")

	hub := ws.NewHub(chatRepo, msgRepo, supportRepo, pushSender, cfg.IsAdmin, cfg.MaxWSConnections)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	dealSvc := service.NewDealService(chatRepo, msgRepo, hub)
	sweeper := service.NewSweeper(chatRepo, cfg.SweepWindow, cfg.SweepInterval)
	var sweepWg sync.WaitGroup
	sweepWg.Add(1)
	go func() {
		defer sweepWg.Done()
		sweeper.Run(hubCtx)
	}()

	var mailer *email.Sender
	if cfg.SMTP.Host != "" {
		mailer = email.NewSender(&cfg.SMTP)
	}

	chatH := handler.NewChatHandler(chatRepo, msgRepo, userRepo, productRepo, dealSvc, hub, pushSender, mailer)
	supportH := handler.NewSupportHandler(supportRepo, hub)
	pushH := handler.NewPushHandler(pushSubRepo, vapidKeys)
	wsH := handler.NewWSHandler(hub, cfg.CORSAllowedOrigins, cfg.IsAdmin)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(middleware.RecoverJSON)
	// Never compress WebSocket upgrades: the wrapped ResponseWriter loses
	// http.Hijacker and the upgrade fails with a 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/api/push/vapid-public-key", pushH.VAPIDPublicKey)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(store))
		// After Auth so the limiter keys on the user id, not the client IP.
		r.Use(middleware.RateLimit(store))

		r.Post("/api/chats", chatH.Create)
		r.Get("/api/chats", chatH.List)
		r.Get("/api/chats/unread-summary", chatH.UnreadSummary)
		r.Get("/api/chats/{chatID}", chatH.Get)
		r.Delete("/api/chats/{chatID}", chatH.Delete)
		r.Get("/api/chats/{chatID}/messages", chatH.ListMessages)
		r.Post("/api/chats/{chatID}/messages", chatH.SendMessage)
		r.Post("/api/chats/{chatID}/read", chatH.MarkRead)
		r.Post("/api/chats/{chatID}/complete-payment", chatH.CompletePayment)

		r.Post("/api/help-messages", supportH.Send)
		r.Get("/api/help-messages", supportH.Thread)

		r.Post("/api/push/subscribe", pushH.Subscribe)
		r.Delete("/api/push/subscribe", pushH.Unsubscribe)

		r.Get("/ws", wsH.ServeWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminOnly(cfg.IsAdmin))
			r.Get("/api/admin/help-threads", supportH.Threads)
			r.Post("/api/admin/respond-help", supportH.Respond)
			r.Delete("/api/admin/chats", chatH.ClearAll)
		})
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	sweepWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		logger.Errorf("read migrations: %v", err)
		os.Exit(1)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := migrations.Files.ReadFile(name)
		if err != nil {
			logger.Errorf("read migration %s: %v", name, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", name, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

// seedDev creates two users, a listing and ready-made session tokens so the
// dev instance is usable without the account service.
func seedDev(pool *pgxpool.Pool, store storage.SessionStore, users *repository.UserRepository, products *repository.ProductRepository) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC()
	buyer := &model.User{ID: "dev-buyer", Email: "buyer@campus.test", Username: "devbuyer", CreatedAt: now}
	seller := &model.User{ID: "dev-seller", Email: "seller@campus.test", Username: "devseller", CreatedAt: now}
	for _, u := range []*model.User{buyer, seller} {
		if err := users.Create(ctx, u); err != nil {
			logger.Errorf("dev seed user %s: %v", u.ID, err)
			return
		}
	}
	if _, err := pool.Exec(ctx,
		`INSERT INTO products (id, seller_id, title) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
		"dev-product", seller.ID, "Used calculus textbook",
	); err != nil {
		logger.Errorf("dev seed product: %v", err)
		return
	}
	if _, err := products.GetByID(ctx, "dev-product"); err != nil {
		logger.Errorf("dev seed verify product: %v", err)
		return
	}
	if err := store.SetSession(ctx, "dev-buyer-token", model.Identity{UserID: buyer.ID, Email: buyer.Email}); err != nil {
		logger.Errorf("dev seed session: %v", err)
		return
	}
	if err := store.SetSession(ctx, "dev-seller-token", model.Identity{UserID: seller.ID, Email: seller.Email}); err != nil {
		logger.Errorf("dev seed session: %v", err)
		return
	}
	logger.Info("dev seed ready: tokens dev-buyer-token / dev-seller-token")
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "campusmarket"
		password = "campusmarket_secret"
		database = "campusmarket"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
