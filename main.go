package main

import (
	"net/http"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"pharmex/m/internal/api"
	"pharmex/m/internal/backend"
	"pharmex/m/internal/config"
	"pharmex/m/internal/exchange"
	"pharmex/m/internal/session"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	db := session.Open(cfg.SessionDSN)
	defer db.Close()
	session.Migrate(db)

	sessions := session.New(db, logger)
	client := backend.New(cfg.BackendURL, sessions, cfg.RequestTimeout, logger)
	svc := exchange.NewService(client, logger)
	searcher := exchange.NewSearcher(client, logger)

	handler := api.New(sessions, client, svc, searcher, cfg.DiagPINHash, logger)

	logger.Info("pharmex exchange gateway starting",
		zap.String("port", cfg.HTTPPort),
		zap.String("backend", cfg.BackendURL))
	if err := http.ListenAndServe(":"+cfg.HTTPPort, handler.Router()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
