package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"quickping/internal/api"
	"quickping/internal/config"
	"quickping/internal/database"
	"quickping/internal/dispatch"
	"quickping/internal/identity"
	"quickping/internal/lifecycle"
	"quickping/internal/reconcile"
	"quickping/internal/roster"
	"quickping/internal/store"
	"quickping/internal/webhook"
	"quickping/internal/whatsapp"
	"quickping/internal/ws"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.LoadConfig()
	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	db, err := database.Open(cfg, logger)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	phones := whatsapp.NewClient(cfg)
	s := store.New(db, store.Options{
		Phones:         phones,
		SystemListName: cfg.SystemListName,
		Logger:         logger,
	})
	defer s.Close()

	session := identity.NewSession("")
	monitor := lifecycle.NewMonitor()
	hub := ws.NewHub(monitor, logger)

	contacts := roster.NewContactStore(s, session, logger)
	lists := roster.NewListStore(s, session, logger)
	engine := reconcile.New(s, session, hub, logger, contacts, lists)
	controller := dispatch.New(dispatch.Config{
		Lists:     lists,
		Contacts:  contacts,
		Links:     phones,
		Opener:    hub,
		Lifecycle: monitor,
		Observer:  hub,
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The engine subscribes before the mirrors deliver their first snapshot.
	engine.Start(ctx)
	defer engine.Stop()
	contacts.Start()
	defer contacts.Stop()
	lists.Start()
	defer lists.Stop()
	controller.Start(ctx)
	defer controller.Stop()

	r := gin.Default()

	// CORS Middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, X-Verify-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	webhookHandler := webhook.NewHandler(cfg, monitor, logger)

	// Device Routes
	r.GET("/ws", func(c *gin.Context) { hub.ServeWs(c.Writer, c.Request) })
	r.GET("/webhook", webhookHandler.VerifyWebhook)
	r.POST("/webhook/lifecycle", webhookHandler.HandleLifecycle)

	api.Routes{
		Identity: session,
		Session:  api.NewSessionHandler(session),
		Contacts: api.NewContactHandler(s, contacts),
		Lists:    api.NewListHandler(s, lists),
		Messages: api.NewMessageHandler(s),
		Dispatch: api.NewDispatchHandler(controller, s),
	}.Register(r.Group("/api"))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("server starting", zap.String("port", cfg.Port), zap.String("db_driver", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
