package http

import (
	"fmt"
	"net/http"

	"github.com/chainsafe/mintwatch/pkg/config"
)

// NewServer builds the ops HTTP server from cfg. It does not start listening.
func NewServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
