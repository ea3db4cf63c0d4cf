package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"chat-sync-client/internal/archive"
	"chat-sync-client/internal/auth"
	"chat-sync-client/internal/client"
	"chat-sync-client/internal/config"
	"chat-sync-client/internal/handlers"
	"chat-sync-client/internal/history"
	"chat-sync-client/internal/observability"
	"chat-sync-client/internal/telemetry"
	"chat-sync-client/internal/transport"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := log.New(os.Stdout, "chat-monitor: ", log.LstdFlags)

	var emitter *telemetry.AuditEmitter
	if cfg.AMQPURL != "" {
		publisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Printf("amqp disabled: %v", err)
		} else {
			defer publisher.Close()
			observability.SetPublisher(publisher)
			emitter = telemetry.NewAuditEmitter(publisher, "audit.chat_monitor", "chat-monitor", getEnv("ENVIRONMENT", "dev"))
		}
	}

	creds := auth.NewExpiryCheckedProvider(auth.NewStaticProvider(cfg.Token))

	manager := transport.NewManager(cfg.WSURL, transport.Options{
		Heartbeat:      cfg.Heartbeat,
		ReconnectDelay: cfg.ReconnectDelay,
		Logger:         logger,
	})
	fetcher := history.NewClient(cfg.APIBaseURL, creds, nil)
	cl := client.New(client.WrapManager(manager), fetcher, creds, logger)

	if err := cl.Connect(); err != nil {
		logger.Fatalf("connect: %v", err)
	}
	defer cl.Close()

	var store *archive.Store
	if cfg.ArchiveDSN != "" {
		store, err = archive.Open(cfg.ArchiveDSN, logger)
		if err != nil {
			logger.Fatalf("archive: %v", err)
		}
		defer store.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		for state := range cl.Watch() {
			logger.Printf("connection %s", state)
		}
	}()

	roomIDs := cfg.RoomIDs
	if len(roomIDs) == 0 {
		summaries, err := fetcher.MyRooms(ctx)
		if err != nil {
			logger.Fatalf("discover rooms: %v", err)
		}
		for _, s := range summaries {
			roomIDs = append(roomIDs, s.RoomID)
		}
	}
	if len(roomIDs) == 0 {
		logger.Println("no rooms to monitor")
	}
	for _, id := range roomIDs {
		room, err := cl.OpenRoom(ctx, id)
		if err != nil {
			logger.Printf("open room %d: %v", id, err)
			continue
		}
		go watchRoom(ctx, logger, room, store)
	}

	router := gin.Default()
	handlers.RegisterRoutes(router, handlers.NewStatusHandler(cl), emitter, cfg.DebugRoutes)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}
	go func() {
		logger.Printf("status server listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("status server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Println("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

// watchRoom logs every timeline update for one room and mirrors the
// merged entries into the archive when one is configured.
func watchRoom(ctx context.Context, logger *log.Logger, room *client.Room, store *archive.Store) {
	updates := room.Updates()
	seen := 0
	for {
		select {
		case snapshot, ok := <-updates:
			if !ok {
				return
			}
			for _, m := range snapshot[seen:] {
				logger.Printf("[room %d] %s: %s", room.ID(), m.SenderName, m.DisplayText())
			}
			seen = len(snapshot)
			if store != nil {
				for _, m := range snapshot {
					if err := store.SaveMessage(ctx, m); err != nil {
						logger.Printf("room %d: %v", room.ID(), err)
						break
					}
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
