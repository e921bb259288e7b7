package httpapi

import (
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"tradegate/internal/domain"
	"tradegate/internal/upstream"
)

const searchResultCap = 20

// tickerRe matches queries that look like a plain US equity ticker.
var tickerRe = regexp.MustCompile(`^[A-Z]{1,5}$`)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.session.State()
	resp := HealthResponse{
		Status:      "ok",
		Provider:    s.session.Provider(),
		Upstream:    string(state),
		ActiveFeeds: s.registry.SymbolCount(),
	}
	if state != upstream.StateConnected {
		resp.Status = "degraded"
		if err := s.session.LastError(); err != nil {
			resp.LastError = err.Error()
		}
	}
	writeJSON(w, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q required")
		return
	}

	if err := s.limiter.Wait(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "rate limited")
		return
	}
	if err := s.supervisor.EnsureConnected(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}

	rows, err := s.session.Search(r.Context(), query)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Equities only, deduplicated by symbol, sorted, capped.
	seen := make(map[string]bool)
	results := make([]domain.SymbolMatch, 0, len(rows))
	for _, m := range rows {
		if m.SecType != "STK" && m.SecType != "" {
			continue
		}
		if seen[m.Symbol] {
			continue
		}
		seen[m.Symbol] = true
		m.SecType = "STK"
		results = append(results, m)
	}

	// No hits for a ticker-shaped query: try qualifying it directly, so exact
	// tickers missing from the venue's text search still resolve.
	upper := upstream.NormalizeSymbol(query)
	if len(results) == 0 && tickerRe.MatchString(upper) {
		if c, err := upstream.ResolveContract(upper); err == nil {
			if qc, err := s.session.Qualify(r.Context(), c); err == nil {
				results = append(results, domain.SymbolMatch{
					Symbol:   qc.Symbol,
					SecType:  "STK",
					Exchange: qc.PrimaryExchange,
				})
			}
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Symbol < results[j].Symbol })
	if len(results) > searchResultCap {
		results = results[:searchResultCap]
	}

	writeJSON(w, SearchResponse{Query: query, Results: results})
}

func (s *Server) handleQualify(w http.ResponseWriter, r *http.Request) {
	var req ContractRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	c, err := buildContract(req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.supervisor.EnsureConnected(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}

	qc, err := s.session.Qualify(r.Context(), c)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, contractResponse(qc))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	var req ContractRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	c, err := buildContract(req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.supervisor.EnsureConnected(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}

	qc, err := s.session.Qualify(r.Context(), c)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	snap, err := s.session.SnapshotQuote(r.Context(), qc)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if snap.Last == nil && snap.Close != nil {
		snap.Last = snap.Close
	}
	writeJSON(w, snap)
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	c, err := buildContract(req.ContractRequest)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	ticket, err := buildTicket(req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.supervisor.EnsureConnected(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}

	qc, err := s.session.Qualify(r.Context(), c)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	order, err := s.session.PlaceOrder(r.Context(), qc, ticket)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.log.Info("order placed", "orderId", order.ID, "symbol", order.Symbol,
		"side", order.Side, "qty", order.Quantity, "type", order.Type)
	writeJSON(w, order)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "orderId required")
		return
	}
	if err := s.supervisor.EnsureConnected(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := s.session.CancelOrder(r.Context(), req.OrderID); err != nil {
		writeDomainError(w, err)
		return
	}
	s.log.Info("order cancel requested", "orderId", req.OrderID)
	writeJSON(w, map[string]string{"orderId": req.OrderID, "status": "cancel_requested"})
}

func (s *Server) handleOpenOrders(w http.ResponseWriter, r *http.Request) {
	if err := s.supervisor.EnsureConnected(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	orders, err := s.session.OpenOrders(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, orders)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "order journal disabled")
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	if orderID := r.URL.Query().Get("orderId"); orderID != "" {
		events, err := s.journal.History(r.Context(), orderID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if events == nil {
			events = []domain.OrderUpdate{}
		}
		writeJSON(w, events)
		return
	}

	events, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []domain.OrderUpdate{}
	}
	writeJSON(w, events)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	if err := s.supervisor.EnsureConnected(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	positions, err := s.session.Positions(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, positions)
}

func (s *Server) handleAccountSummary(w http.ResponseWriter, r *http.Request) {
	if err := s.supervisor.EnsureConnected(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	values, err := s.session.AccountSummary(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if values == nil {
		values = []domain.AccountValue{}
	}
	writeJSON(w, values)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	var req HistoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	c, err := buildContract(req.ContractRequest)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	hreq := domain.HistoryRequest{
		Duration:   req.DurationStr,
		BarSize:    req.BarSize,
		WhatToShow: req.WhatToShow,
		UseRTH:     req.UseRTH,
	}
	if hreq.Duration == "" || hreq.BarSize == "" {
		writeError(w, http.StatusBadRequest, "durationStr and barSize required")
		return
	}
	if c.Class == domain.AssetForex {
		// Cash FX has no trade tape; the midpoint series is the only one,
		// whatever the client asked for.
		hreq.WhatToShow = "MIDPOINT"
	} else if hreq.WhatToShow == "" {
		hreq.WhatToShow = "TRADES"
	}
	if req.EndDateTime != "" {
		end, err := time.Parse(time.RFC3339, req.EndDateTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "endDateTime must be RFC 3339")
			return
		}
		hreq.End = end.UTC()
	}

	// Explicit-end queries are immutable, so a cache hit skips the upstream
	// entirely.
	if s.barCache != nil {
		if bars, ok := s.barCache.Load(c.Symbol, hreq); ok {
			writeJSON(w, HistoryResponse{Symbol: c.Symbol, BarCount: len(bars), Bars: bars})
			return
		}
	}

	if err := s.limiter.Wait(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "rate limited")
		return
	}
	if err := s.supervisor.EnsureConnected(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}

	qc, err := s.session.Qualify(r.Context(), c)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	bars, err := s.session.HistoricalBars(r.Context(), qc, hreq)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if bars == nil {
		bars = []domain.Bar{}
	}

	if s.barCache != nil {
		if err := s.barCache.Store(c.Symbol, hreq, bars); err != nil {
			s.log.Warn("bar cache write failed", "symbol", c.Symbol, "error", err)
		}
	}

	writeJSON(w, HistoryResponse{Symbol: c.Symbol, BarCount: len(bars), Bars: bars})
}
