package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPService runs an http.Server as a lifecycle Service.
type HTTPService struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	logger          *zap.Logger
	listening       chan net.Addr
}

// NewHTTPService wraps srv. Stop drains in-flight requests for at most shutdownTimeout.
//
// Precondition: srv and logger must be non-nil; srv.Addr must be set.
func NewHTTPService(srv *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) *HTTPService {
	return &HTTPService{
		srv:             srv,
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
		listening:       make(chan net.Addr, 1),
	}
}

// Listening delivers the bound address once the listener is open.
func (h *HTTPService) Listening() <-chan net.Addr {
	return h.listening
}

// Start listens on srv.Addr and serves until Stop is called.
//
// Postcondition: Returns nil after a graceful Stop, or the listen/serve error.
func (h *HTTPService) Start() error {
	lis, err := net.Listen("tcp", h.srv.Addr)
	if err != nil {
		return err
	}
	h.logger.Info("http server listening", zap.String("addr", lis.Addr().String()))
	h.listening <- lis.Addr()
	if err := h.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (h *HTTPService) Stop() {
	ctx := context.Background()
	if h.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.shutdownTimeout)
		defer cancel()
	}
	if err := h.srv.Shutdown(ctx); err != nil {
		h.logger.Warn("http shutdown incomplete", zap.Error(err))
	}
}
