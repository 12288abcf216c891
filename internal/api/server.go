package api

import (
	"fmt"
	"net/http"
	"time"
)

// NewServer creates and returns a configured *http.Server. writeTimeout must
// exceed the fulfillment timeout so a purchase can answer after the provider
// call; balance streams lift the deadline themselves.
func NewServer(port uint16, handler http.Handler, writeTimeout time.Duration) *http.Server {
	addr := fmt.Sprintf(":%d", port)

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
