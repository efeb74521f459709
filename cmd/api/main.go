package main

import (
	"context"
	"net/http"
	"time"

	"clinical-doc-access/internal/platform/config"
	"clinical-doc-access/internal/platform/logger"
	"clinical-doc-access/internal/router"

	"github.com/joho/godotenv"
)

func main() {
	// .env es opcional (dev); en deploy las vars vienen del entorno.
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.NewFromEnv()

	handler, services := router.NewRouter(router.Options{
		AuthVerifier: router.NewVerifierFromEnv(),
		Cfg:          &cfg,
		Log:          log,
	})

	// Barrido periódico de expiración. Los reads ya ajustan lazy; esto solo
	// deja el status persistido sin esperar a que alguien lea.
	if cfg.SweepInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.SweepInterval)
			defer ticker.Stop()
			for range ticker.C {
				if _, err := services.Requests.ExpireSweep(context.Background()); err != nil {
					log.Warn("fallo el barrido de expiración", map[string]any{"error": err.Error()})
				}
			}
		}()
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Info("starting server", map[string]any{"addr": cfg.Addr})
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", map[string]any{"error": err.Error()})
	}
}
