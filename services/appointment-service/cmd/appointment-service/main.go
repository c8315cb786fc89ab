package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trami25/FisioNet/libs/auth"
	"github.com/trami25/FisioNet/libs/config"
	"github.com/trami25/FisioNet/libs/db"
	"github.com/trami25/FisioNet/libs/httpx"
	"github.com/trami25/FisioNet/libs/kafkax"
	otelx "github.com/trami25/FisioNet/libs/otel"
	"github.com/trami25/FisioNet/libs/runtime"
	"github.com/trami25/FisioNet/services/appointment-service/internal/handlers"
	"github.com/trami25/FisioNet/services/appointment-service/internal/model"
	"github.com/trami25/FisioNet/services/appointment-service/internal/outbox"
	"github.com/trami25/FisioNet/services/appointment-service/internal/schedule"
	"github.com/trami25/FisioNet/services/appointment-service/internal/service"
	"github.com/trami25/FisioNet/services/appointment-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// workdayFromEnv reads the clinic hours. Invalid values fall back to the
// default 08:00-18:00 grid of 20-minute slots.
func workdayFromEnv(logger *slog.Logger) schedule.Workday {
	w := schedule.DefaultWorkday

	if raw := config.String("CLINIC_OPEN", ""); raw != "" {
		if open, err := model.ParseClock(raw); err == nil {
			w.Open = open
		} else {
			logger.Warn("invalid CLINIC_OPEN, using default", "value", raw)
		}
	}
	if raw := config.String("CLINIC_CLOSE", ""); raw != "" {
		if closeAt, err := model.ParseClock(raw); err == nil {
			w.Close = closeAt
		} else {
			logger.Warn("invalid CLINIC_CLOSE, using default", "value", raw)
		}
	}
	if mins := config.Int("SLOT_MINUTES", 0); mins > 0 {
		w.SlotLen = time.Duration(mins) * time.Minute
	}

	if w.Close <= w.Open || w.SlotLen <= 0 {
		logger.Warn("unusable clinic hours, using default workday")
		return schedule.DefaultWorkday
	}
	return w
}

func rateLimitMiddleware(logger *slog.Logger) httpx.Middleware {
	limit := config.Int("RATE_LIMIT_RPM", 120)
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		limiter := httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "appointment-service")
		return limiter.Middleware(logger, true)
	}
	return httpx.NewRateLimiter(limit, time.Minute).Middleware()
}

func main() {
	serviceName := config.String("SERVICE_NAME", "appointment-service")
	port, err := config.Port("PORT", "8002")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(serviceName)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.OptionsFromEnv(serviceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	outboxRepo := outbox.NewRepository(pool)
	repo := storage.NewPostgresRepository(pool, outboxRepo)

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   kafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	svc := service.New(repo, workdayFromEnv(logger), logger)
	appointmentHandler := handlers.NewAppointmentHandler(svc, logger)
	requireActor := auth.RequireActor(jwtSecret)

	mux := runtime.NewBaseMux(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)},
	)
	mux.HandleFunc("/api/v1/public/slots", appointmentHandler.Slots)
	mux.Handle("/api/v1/appointments", requireActor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			appointmentHandler.List(w, r)
			return
		}
		appointmentHandler.Create(w, r)
	})))
	mux.Handle("/api/v1/appointments/status", requireActor(http.HandlerFunc(appointmentHandler.UpdateStatus)))
	mux.Handle("/api/v1/appointments/notes", requireActor(http.HandlerFunc(appointmentHandler.UpdateNotes)))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORS{
			Origins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", ""), ","),
			Methods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			Headers: []string{"Authorization", "Content-Type", "X-Request-Id"},
			MaxAge:  10 * time.Minute,
		}),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
		rateLimitMiddleware(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "appointment")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
