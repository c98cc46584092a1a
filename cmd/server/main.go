package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"lucky-draw/internal/config"
	"lucky-draw/internal/db"
	"lucky-draw/internal/draw"
	"lucky-draw/internal/server"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}
	cfg := config.Load()

	conn, err := db.Open(cfg)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	draws := draw.NewService(conn, draw.NewCryptoSampler(), logger,
		time.Duration(cfg.LockWaitSeconds)*time.Second)
	srv := server.New(conn, draws)

	addr := ":8080"
	if env := os.Getenv("PORT"); env != "" {
		addr = ":" + env
	}
	logger.Info("draw server listening", "addr", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		log.Fatal(err)
	}
}
