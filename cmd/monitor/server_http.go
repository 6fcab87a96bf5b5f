package main

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	config "github.com/NordCoder/uptimewatch/internal/config/monitor"
	"github.com/NordCoder/uptimewatch/internal/httpapi"
)

func buildHTTPServer(cfg *config.Config, logger *zap.Logger, m httpapi.Monitor, st storeHandle, hub httpapi.Subscriber) *http.Server {
	api := httpapi.NewServer(logger, m, st, hub)
	api.Targets = st.catalog
	api.Health = st.ping
	api.CORSOrigins = cfg.Server.CORSOrigins

	return &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Router(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

func serveHTTP(srv *http.Server, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
	return srv.ListenAndServe()
}
