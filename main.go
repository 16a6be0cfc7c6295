package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gowa-dispatch/config"
	"gowa-dispatch/database"
	"gowa-dispatch/internal/handler"
	customMiddleware "gowa-dispatch/internal/middleware"
	"gowa-dispatch/internal/model"
	"gowa-dispatch/internal/registry"
	"gowa-dispatch/internal/service"
	"gowa-dispatch/internal/store"
	"gowa-dispatch/internal/transport"
	"gowa-dispatch/internal/ws"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

func main() {

	// Load .env (ignore the error when the file is absent, e.g. production)
	_ = godotenv.Load()

	cfg := config.Load()

	if cfg.CredentialDBURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}
	database.InitCredentialStore(cfg.CredentialDBURL)

	// Session metadata store: Postgres when configured, JSON file otherwise.
	var sessionStore store.Store
	if cfg.SessionsDBURL != "" {
		database.InitSessionsDB(cfg.SessionsDBURL)
		pgStore, err := store.NewPostgresStore(database.SessionsDB)
		if err != nil {
			log.Fatal("Failed to init session store:", err)
		}
		sessionStore = pgStore
	} else {
		log.Println("SESSIONS_DATABASE_URL not set, snapshotting sessions to", cfg.SessionsFile)
		sessionStore = store.NewFileStore(cfg.SessionsFile)
	}

	if cfg.JWTSecret == "" {
		log.Println("JWT_SECRET is not set")
	}
	service.InitAuthConfig(cfg.JWTSecret, cfg.AdminUsername, cfg.AdminPasswordHash)

	wsEnv := strings.ToLower(os.Getenv("ENABLE_WEBSOCKET_EVENTS"))
	config.EnableWebsocketEvents = wsEnv == "" || wsEnv == "true"

	// Realtime hub. Run always drains register/unregister so the /ws
	// endpoint stays safe; the flag only gates event publishing.
	var realtime ws.RealtimePublisher
	hub := ws.NewHub()
	go hub.Run()
	if config.EnableWebsocketEvents {
		realtime = hub
	}

	reg := registry.New(sessionStore)

	// Transport factory: fresh device for new sessions, stored device for
	// restored ones.
	factory := func(sess *model.Session) (transport.Client, error) {
		label := sess.Key
		if len(label) > 8 {
			label = label[:8]
		}

		if sess.JID != "" {
			device := database.DeviceForJID(context.Background(), sess.JID)
			if device == nil || device.ID == nil {
				return nil, fmt.Errorf("no stored credentials for jid %s", sess.JID)
			}
			return transport.NewWhatsmeowClient(device, label), nil
		}
		return transport.NewWhatsmeowClient(database.Container.NewDevice(), label), nil
	}

	orch := service.NewOrchestrator(reg, factory, cfg.ReconnectBase, cfg.ReconnectMax, realtime)

	// Reconnect everything that survived the last run before serving.
	log.Println("Restoring saved sessions...")
	orch.RestoreSessions()

	// Setup Echo
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	originsEnv := os.Getenv("CORS_ALLOW_ORIGINS")
	if originsEnv == "" {
		log.Println("CORS_ALLOW_ORIGINS is not set")
	}
	allowOrigins := strings.Split(originsEnv, ",")
	for i, o := range allowOrigins {
		allowOrigins[i] = strings.TrimSpace(o)
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowOrigins,
		AllowMethods: []string{
			echo.GET,
			echo.POST,
			echo.PUT,
			echo.PATCH,
			echo.DELETE,
			echo.OPTIONS,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
		},
		AllowCredentials: true,
	}))

	rateLimit := config.GetEnvAsInt("RATE_LIMIT_PER_SECOND", 10)
	rateBurst := config.GetEnvAsInt("RATE_LIMIT_BURST", 10)
	rateWindow := config.GetEnvAsInt("RATE_LIMIT_WINDOW_MINUTES", 3)

	e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(rateLimit),
				Burst:     rateBurst,
				ExpiresIn: time.Duration(rateWindow) * time.Minute,
			},
		),
	}))

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		message := "Internal Server Error"

		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			message = fmt.Sprintf("%v", he.Message)
		}
		response := map[string]interface{}{
			"success": false,
			"error":   message,
		}
		switch code {
		case http.StatusUnauthorized:
			response["message"] = "Authentication required. Please login first."
		case http.StatusMethodNotAllowed:
			response["message"] = "Method not allowed for this endpoint"
		case http.StatusNotFound:
			response["message"] = "Endpoint not found"
		}

		_ = c.JSON(code, response)
	}

	sessionHandler := &handler.SessionHandler{
		Orch:           orch,
		Realtime:       realtime,
		PairingTimeout: cfg.PairingTimeout,
	}

	// Public routes
	e.POST("/login", handler.Login)
	e.GET("/ws", handler.WebSocketHandler(hub))
	e.GET("/", func(c echo.Context) error { // Health check
		return c.JSON(200, map[string]interface{}{
			"success":  true,
			"message":  "Dispatch orchestrator is running",
			"sessions": reg.Len(),
		})
	})

	// Session routes (JWT required)
	api := e.Group("/api", customMiddleware.JWTAuthMiddleware())
	api.POST("/sessions", sessionHandler.StartSession)
	api.GET("/sessions", sessionHandler.ListSessions)
	api.GET("/sessions/:key", sessionHandler.GetStatus)
	api.POST("/sessions/:key/dispatch", sessionHandler.AttachDispatch)
	api.DELETE("/sessions/:key", sessionHandler.StopSession)
	api.GET("/sessions/:key/groups", sessionHandler.GetGroups)

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// Wait for termination signal, then disconnect every session without
	// logging out so the credentials survive for the next boot.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	orch.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Println("⚠ Server shutdown:", err)
	}
	log.Println("Shutdown complete.")
}
