// Package httpapi exposes the gateway over HTTP: the REST surface for
// contracts, quotes, orders, and history, plus the /ws/stream and /ws/orders
// WebSocket endpoints.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"tradegate/internal/domain"
	"tradegate/internal/store"
	"tradegate/internal/stream"
	"tradegate/internal/upstream"
	"tradegate/internal/util"
)

// Server wires the upstream session and the streaming components into the
// HTTP surface.
type Server struct {
	supervisor *upstream.Supervisor
	session    *upstream.Session
	registry   *stream.Registry
	hub        *stream.Hub
	relay      *stream.Relay
	journal    *store.Journal  // nil disables the journal endpoint
	barCache   *store.BarCache // nil disables bar caching
	limiter    *util.RateLimiter
	log        *slog.Logger

	upgrader websocket.Upgrader
	sendBuf  int
}

// NewServer creates the HTTP server. journal and barCache may be nil.
func NewServer(
	supervisor *upstream.Supervisor,
	session *upstream.Session,
	registry *stream.Registry,
	hub *stream.Hub,
	relay *stream.Relay,
	journal *store.Journal,
	barCache *store.BarCache,
	limiter *util.RateLimiter,
	sendBuf int,
	log *slog.Logger,
) *Server {
	return &Server{
		supervisor: supervisor,
		session:    session,
		registry:   registry,
		hub:        hub,
		relay:      relay,
		journal:    journal,
		barCache:   barCache,
		limiter:    limiter,
		log:        log.With("component", "httpapi"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sendBuf: sendBuf,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/contract/qualify", s.handleQualify)
	mux.HandleFunc("POST /api/quote/snapshot", s.handleSnapshot)
	mux.HandleFunc("POST /api/order/place", s.handlePlaceOrder)
	mux.HandleFunc("POST /api/order/cancel", s.handleCancelOrder)
	mux.HandleFunc("GET /api/orders/open", s.handleOpenOrders)
	mux.HandleFunc("GET /api/orders/journal", s.handleJournal)
	mux.HandleFunc("GET /api/positions", s.handlePositions)
	mux.HandleFunc("GET /api/account/summary", s.handleAccountSummary)
	mux.HandleFunc("POST /api/history", s.handleHistory)
	mux.HandleFunc("GET /ws/stream", s.handleStreamWS)
	mux.HandleFunc("GET /ws/orders", s.handleOrdersWS)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeDomainError maps the error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	var ue *domain.UpstreamError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Msg)
	case errors.Is(err, domain.ErrContractNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConnectionFailed), errors.Is(err, domain.ErrNotConnected):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &ue):
		writeError(w, http.StatusBadGateway, ue.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &domain.ValidationError{Msg: "malformed request body"}
	}
	return nil
}

// buildContract converts the wire request into a domain contract.
func buildContract(req ContractRequest) (domain.Contract, error) {
	return upstream.BuildContract(req.Symbol, req.SecType, req.Exchange, req.Currency)
}

// buildTicket converts the wire order fields into a domain ticket.
func buildTicket(req OrderRequest) (domain.OrderTicket, error) {
	t := domain.OrderTicket{
		Quantity:   req.Quantity,
		LimitPrice: req.LmtPrice,
		StopPrice:  req.AuxPrice,
	}

	switch strings.ToUpper(strings.TrimSpace(req.Action)) {
	case "BUY":
		t.Side = domain.OrderSideBuy
	case "SELL":
		t.Side = domain.OrderSideSell
	default:
		return domain.OrderTicket{}, &domain.ValidationError{Msg: "action must be BUY or SELL"}
	}

	switch strings.ToUpper(strings.TrimSpace(req.OrderType)) {
	case "", "MKT":
		t.Type = domain.OrderTypeMarket
	case "LMT":
		t.Type = domain.OrderTypeLimit
	case "STP":
		t.Type = domain.OrderTypeStop
	case "STP LMT":
		t.Type = domain.OrderTypeStopLimit
	default:
		return domain.OrderTicket{}, &domain.ValidationError{Msg: "unsupported orderType"}
	}

	return t, nil
}
