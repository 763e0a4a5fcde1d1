package web

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vadiminshakov/dexterm/internal/domain"
	"github.com/vadiminshakov/dexterm/internal/events"
	"github.com/vadiminshakov/dexterm/internal/services/market/chart"
	"github.com/vadiminshakov/dexterm/internal/services/swap"
)

const (
	snapshotPollInterval = 2 * time.Second
	heartbeatInterval    = 30 * time.Second
	requestTimeout       = 15 * time.Second
)

// Terminal operations exposed over HTTP.
type Terminal interface {
	Chart() chart.Snapshot
	SetTimeframe(ctx context.Context, tf domain.Timeframe) error
	ChartUpdates() *events.Broadcaster[chart.Snapshot]
	SetQuoteInput(ctx context.Context, sellToken, buyToken, payAmount string) error
	Requote(ctx context.Context) error
	QuoteState() swap.SessionState
	Swap(ctx context.Context) (swap.Result, error)
	Balance(ctx context.Context, token string) (decimal.Decimal, error)
	TradesAfter(index uint64) ([]domain.TradeRecordEntry, error)
	SnapshotsAfter(index uint64) ([]domain.BalanceSnapshotRecord, error)
}

// Server exposes the terminal as JSON endpoints and SSE streams.
type Server struct {
	Addr     string
	logger   *zap.Logger
	terminal Terminal
	metrics  http.Handler
}

// NewServer creates a new web server instance. metrics may be nil.
func NewServer(addr string, logger *zap.Logger, terminal Terminal, metrics http.Handler) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Addr: addr, logger: logger, terminal: terminal, metrics: metrics}
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chart", s.handleChart)
	mux.HandleFunc("PUT /api/chart/timeframe", s.handleSetTimeframe)
	mux.HandleFunc("GET /api/quote", s.handleQuoteState)
	mux.HandleFunc("PUT /api/quote", s.handleQuoteInput)
	mux.HandleFunc("POST /api/quote/refresh", s.handleRequote)
	mux.HandleFunc("POST /api/swap", s.handleSwap)
	mux.HandleFunc("GET /api/balance", s.handleBalance)
	mux.HandleFunc("GET /chart/stream", s.handleChartStream)
	mux.HandleFunc("GET /balance/stream", s.handleBalanceStream)
	mux.HandleFunc("GET /trades/stream", s.handleTradeStream)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("HTTP server listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with certificates obtained via ACME.
// A plain HTTP server on :80 answers the HTTP-01 challenges and redirects to HTTPS.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(domains) == 0 {
		return errors.New("no domains provided for automatic TLS")
	}

	manager := autoCertManager(domains, cacheDir)

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 5 * time.Second,
	}
	httpsSrv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		TLSConfig:         autoTLSConfig(manager),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("acme server shutdown", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("https server shutdown", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("acme server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("HTTPS server listening", zap.String("addr", s.Addr), zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func autoCertManager(domains []string, cacheDir string) *autocert.Manager {
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}
	return &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}
}

func autoTLSConfig(manager *autocert.Manager) *tls.Config {
	cfg := manager.TLSConfig()
	cfg.MinVersion = tls.VersionTLS12
	return cfg
}

type errorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	TxHash string `json:"tx_hash,omitempty"`
}

type quoteInput struct {
	SellToken string `json:"sell_token"`
	BuyToken  string `json:"buy_token"`
	PayAmount string `json:"pay_amount"`
}

type timeframeInput struct {
	Timeframe string `json:"timeframe"`
}

type balanceResponse struct {
	Token   string `json:"token"`
	Balance string `json:"balance"`
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.terminal.Chart())
}

func (s *Server) handleSetTimeframe(w http.ResponseWriter, r *http.Request) {
	var in timeframeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	tf, err := domain.ParseTimeframe(in.Timeframe)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := s.terminal.SetTimeframe(ctx, tf); err != nil {
		// the store already switched, the next refresh fills it
		s.logger.Warn("Timeframe switch fetch failed", zap.String("timeframe", tf.String()), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, s.terminal.Chart())
}

func (s *Server) handleQuoteState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.terminal.QuoteState())
}

func (s *Server) handleQuoteInput(w http.ResponseWriter, r *http.Request) {
	var in quoteInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	if err := s.terminal.SetQuoteInput(r.Context(), in.SellToken, in.BuyToken, in.PayAmount); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: errorCode(err)})
		return
	}
	writeJSON(w, http.StatusAccepted, s.terminal.QuoteState())
}

func (s *Server) handleRequote(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if err := s.terminal.Requote(ctx); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: errorCode(err)})
		return
	}
	writeJSON(w, http.StatusOK, s.terminal.QuoteState())
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	// receipt waiting must not be cut short by a client disconnect
	res, err := s.terminal.Swap(context.WithoutCancel(r.Context()))
	if err != nil {
		resp := errorResponse{Error: err.Error(), Code: errorCode(err)}
		var reverted *swap.RevertedError
		if errors.As(err, &reverted) {
			resp.TxHash = reverted.TxHash
		}
		writeJSON(w, swapStatus(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "token query parameter is required"})
		return
	}
	balance, err := s.terminal.Balance(r.Context(), token)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, swap.ErrWalletNotConnected) {
			status = http.StatusPreconditionFailed
		}
		writeJSON(w, status, errorResponse{Error: err.Error(), Code: errorCode(err)})
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Token: token, Balance: balance.String()})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, swap.ErrQuoteExpired):
		return "quote_expired"
	case errors.Is(err, swap.ErrNoQuote):
		return "no_quote"
	case errors.Is(err, swap.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, swap.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, swap.ErrWalletNotConnected):
		return "wallet_not_connected"
	case errors.Is(err, swap.ErrUserRejected):
		return "user_rejected"
	case errors.Is(err, swap.ErrSwapReverted):
		return "reverted"
	case errors.Is(err, swap.ErrBusy):
		return "busy"
	default:
		return ""
	}
}

func swapStatus(err error) int {
	switch {
	case errors.Is(err, swap.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, swap.ErrQuoteExpired), errors.Is(err, swap.ErrNoQuote), errors.Is(err, swap.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, swap.ErrWalletNotConnected):
		return http.StatusPreconditionFailed
	case errors.Is(err, swap.ErrInsufficientFunds), errors.Is(err, swap.ErrSwapReverted), errors.Is(err, swap.ErrUserRejected):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sseWriter prepares w for server-sent events.
func sseWriter(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return flusher, true
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
	return nil
}

func (s *Server) handleChartStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := sseWriter(w)
	if !ok {
		return
	}

	updates := s.terminal.ChartUpdates()
	ch := updates.Subscribe()
	defer updates.Unsubscribe(ch)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	if err := writeEvent(w, flusher, "chart", s.terminal.Chart()); err != nil {
		s.logger.Warn("Chart stream initial write failed", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case snap, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(w, flusher, "chart", snap); err != nil {
				s.logger.Warn("Chart stream write failed", zap.Error(err))
				return
			}
		}
	}
}

// pollStream replays a WAL-backed journal from the start and then polls it for new entries.
// send writes the entries after the given index via emit and returns the last written index.
func (s *Server) pollStream(w http.ResponseWriter, r *http.Request, name string,
	send func(after uint64, emit func(event string, v any) error) (uint64, error)) {
	flusher, ok := sseWriter(w)
	if !ok {
		return
	}
	emit := func(event string, v any) error {
		return writeEvent(w, flusher, event, v)
	}

	// send a comment heartbeat every 30s so proxies keep connection
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(snapshotPollInterval)
	defer pollTicker.Stop()

	lastIndex, err := send(0, emit)
	if err != nil {
		http.Error(w, "failed to load "+name, http.StatusInternalServerError)
		s.logger.Error("Stream initial load failed", zap.String("stream", name), zap.Error(err))
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			idx, err := send(lastIndex, emit)
			lastIndex = idx
			if err != nil {
				s.logger.Warn("Stream poll failed", zap.String("stream", name), zap.Error(err))
			}
		}
	}
}

func (s *Server) handleBalanceStream(w http.ResponseWriter, r *http.Request) {
	s.pollStream(w, r, "balance", func(after uint64, emit func(string, any) error) (uint64, error) {
		records, err := s.terminal.SnapshotsAfter(after)
		if err != nil {
			return after, err
		}
		for _, record := range records {
			if err := emit("balance", record.Snapshot); err != nil {
				return after, err
			}
			after = record.Index
		}
		return after, nil
	})
}

func (s *Server) handleTradeStream(w http.ResponseWriter, r *http.Request) {
	s.pollStream(w, r, "trades", func(after uint64, emit func(string, any) error) (uint64, error) {
		entries, err := s.terminal.TradesAfter(after)
		if err != nil {
			return after, err
		}
		for _, entry := range entries {
			if err := emit("trade", entry.Record); err != nil {
				return after, err
			}
			after = entry.Index
		}
		return after, nil
	})
}
