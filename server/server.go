// Package server exposes the storefront's HTTP surface: order initiation and
// status polling for the buyer's client, the directed verification endpoint,
// and the secret-protected sweep trigger for the scheduler.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"botstore/engine"
	"botstore/storage"
)

const maxRequestBody = 1 << 20

// Config defines HTTP server parameters.
type Config struct {
	SweepSecret         string
	AllowedOrigins      []string
	VerifyRatePerMinute float64
	VerifyBurst         int
}

// Server routes storefront requests to the reconciliation engine.
type Server struct {
	engine  *engine.Engine
	store   *storage.Store
	logger  *slog.Logger
	secret  []byte
	router  chi.Router
	limiter *rateLimiter
}

// New constructs the HTTP server.
func New(eng *engine.Engine, store *storage.Store, logger *slog.Logger, cfg Config) (*Server, error) {
	if eng == nil {
		return nil, errors.New("engine required")
	}
	if store == nil {
		return nil, errors.New("store required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	secret := strings.TrimSpace(cfg.SweepSecret)
	if secret == "" {
		return nil, errors.New("sweep secret required")
	}
	s := &Server{
		engine:  eng,
		store:   store,
		logger:  logger,
		secret:  []byte(secret),
		limiter: newRateLimiter(cfg.VerifyRatePerMinute, cfg.VerifyBurst),
	}

	r := chi.NewRouter()
	r.Use(corsMiddleware(corsConfig{AllowedOrigins: cfg.AllowedOrigins}))
	r.Use(requestLogger(logger))
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Get("/products", s.handleProducts)
		r.Post("/orders", s.handleInitiate)
		r.Get("/orders/{orderID}", s.handleOrderStatus)
		r.Post("/orders/{orderID}/tx", s.handleAttachTx)
		r.With(s.limiter.middleware).Post("/verify", s.handleVerify)
		r.Post("/sweep", s.handleSweep)
	})
	s.router = r
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.store.ListProducts(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "catalog unavailable")
		return
	}
	type productView struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Price string `json:"price"`
	}
	out := make([]productView, 0, len(products))
	for _, p := range products {
		out = append(out, productView{ID: p.ID, Name: p.Name, Price: p.Price})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"products": out})
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"productId"`
		Buyer     string `json:"buyer"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.engine.Initiate(r.Context(), req.ProductID, req.Buyer)
	switch {
	case errors.Is(err, engine.ErrInvalidArgument):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrProductNotFound):
		s.writeError(w, http.StatusNotFound, "product not found")
	case err != nil:
		s.logger.Error("initiate failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
	default:
		s.writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	result, err := s.engine.OrderStatus(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidArgument) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("status poll failed", "order", orderID, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, engine.StatusResult{Status: engine.StatusError, Message: "internal server error"})
		return
	}
	code := http.StatusOK
	switch result.Status {
	case engine.StatusNotFound:
		code = http.StatusNotFound
	case string(storage.StatusFailedInvitation):
		code = http.StatusInternalServerError
	}
	s.writeJSON(w, code, result)
}

func (s *Server) handleAttachTx(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	var req struct {
		TxHash string `json:"txHash"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.AttachTxHash(r.Context(), orderID, req.TxHash); err != nil {
		if errors.Is(err, engine.ErrInvalidArgument) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("attach tx hash failed", "order", orderID, "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TxHash    string `json:"txHash"`
		ProductID string `json:"productId"`
		Buyer     string `json:"buyer"`
		Sender    string `json:"sender"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	outcome := s.engine.Verify(r.Context(), engine.VerifyRequest{
		TxHash:    req.TxHash,
		ProductID: req.ProductID,
		Buyer:     req.Buyer,
		Sender:    req.Sender,
	})
	code := http.StatusOK
	if outcome.Status == engine.StatusError {
		code = http.StatusBadRequest
	}
	s.writeJSON(w, code, outcome)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.logger.Warn("unauthorized sweep trigger", "remote", r.RemoteAddr)
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	summary, err := s.engine.Sweep(r.Context())
	type sweepResponse struct {
		Success bool `json:"success"`
		engine.SweepSummary
	}
	resp := sweepResponse{Success: summary.Errors == 0, SweepSummary: summary}
	if err != nil || (summary.Errors > 0 && summary.Processed == 0) {
		if err != nil {
			s.logger.Error("sweep failed", "err", err)
		}
		s.writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) authorized(r *http.Request) bool {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), s.secret) == 1
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read request body")
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, map[string]string{"error": message})
}
