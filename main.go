package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gameplace/booking"
	"gameplace/db"
	"gameplace/globals"
	"gameplace/memstore"
	"gameplace/models"
	"gameplace/mq"
	"gameplace/ratelim"
	"gameplace/rdx"
	"gameplace/reservation"
	"gameplace/routes"

	"github.com/joho/godotenv"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
)

// store is what the server needs from a persistence backend.
type store interface {
	reservation.Store
	booking.DeviceRegistry
}

// securityHeaders applies a set of recommended HTTP security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs each request method, path, remote address, and duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s from %s – %v", r.Method, r.RequestURI, r.RemoteAddr, time.Since(start))
	})
}

// Index is a simple health check handler.
func Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	fmt.Fprint(w, "200")
}

func setupRouter(h *booking.Handler, hub *booking.Hub, rateLimiter *ratelim.RateLimiter) *httprouter.Router {
	router := httprouter.New()
	router.GET("/health", Index)

	routes.AddReservationRoutes(router, h, rateLimiter)
	routes.AddDeviceRoutes(router, h)
	routes.AddRealtimeRoutes(router, hub)

	return router
}

func openStore(ctx context.Context, cfg globals.Config) (store, func(), error) {
	if cfg.MongoURI == "" {
		log.Println("MONGO_URI not set; using in-memory store")
		return memstore.New(), func() {}, nil
	}
	s, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return nil, nil, err
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, nil, fmt.Errorf("ensure indexes: %w", err)
	}
	closeFn := func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Close(cctx); err != nil {
			log.Printf("mongo disconnect: %v", err)
		}
	}
	return s, closeFn, nil
}

func main() {
	// load .env if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found; using system environment")
	}
	cfg := globals.Load()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	loc, err := time.LoadLocation(cfg.VenueTZ)
	if err != nil {
		log.Fatalf("❌ VENUE_TZ %q: %v", cfg.VenueTZ, err)
	}

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ store: %v", err)
	}

	hub := booking.NewHub()

	// Without Redis: in-process locks and direct websocket fan-out.
	var (
		locker   reservation.Locker   = reservation.NewKeyedMutex()
		notifier reservation.Notifier = hub
	)
	if cfg.RedisURL != "" {
		client, err := rdx.NewClient(ctx, cfg.RedisURL, cfg.RedisPassword)
		if err != nil {
			log.Fatalf("❌ redis: %v", err)
		}
		defer client.Close()
		locker = rdx.NewLocker(client, cfg.LockTTL, cfg.LockWait)
		notifier = mq.NewPublisher(client)
		go mq.StartReservationWorker(ctx, client, func(ev models.ReservationEvent) {
			hub.Broadcast(ev)
		})
	}

	svc := reservation.NewService(st, notifier, locker,
		reservation.WithLocation(loc),
		reservation.WithPolicy(reservation.Policy{
			CancelCutoff:  cfg.CancelCutoff,
			CheckInBefore: cfg.CheckInBefore,
			CheckInAfter:  cfg.CheckInAfter,
		}),
	)
	h := booking.NewHandler(svc, st, cfg.SlipSecret)

	rateLimiter := ratelim.NewRateLimiter(cfg.RateLimitPerMin)
	router := setupRouter(h, hub, rateLimiter)

	// apply middleware: CORS → security headers → logging → router
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(router)

	handler := loggingMiddleware(securityHeaders(corsHandler))

	server := &http.Server{
		Addr:              cfg.Port,
		Handler:           handler,
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	server.RegisterOnShutdown(func() {
		log.Println("🛑 Stopping reservation worker...")
		stop()
		closeStore()
	})

	go func() {
		log.Printf("🚀 Server listening on %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ ListenAndServe error: %v", err)
		}
	}()

	// wait for interrupt or SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("🛑 Shutdown signal received; shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("❌ Graceful shutdown failed: %v", err)
	}

	log.Println("✅ Server stopped cleanly")
}
