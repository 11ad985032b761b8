package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"ParaCover/internal/ingestion"
	"ParaCover/internal/observability"
	"ParaCover/internal/persistence"
	"ParaCover/internal/projection"
	"ParaCover/internal/query"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Server hosts the HTTP/JSON API and a gRPC endpoint for health probing.
// The write path is NATS; the HTTP surface serves queries and admin
// injection only.
type Server struct {
	grpcServer    *grpc.Server
	healthServer  *health.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	healthChecker *observability.HealthChecker
	deps          *ServerDeps
}

// ServerDeps holds all dependencies needed by the API handlers.
type ServerDeps struct {
	DB            *sql.DB
	QueryService  *query.QueryService
	AdminIngest   *ingestion.AdminIngestService
	SnapshotMgr   *persistence.SnapshotManager
	StartTime     time.Time
	HealthChecker *observability.HealthChecker
}

// NewServer creates the API server.
func NewServer(grpcAddr, httpAddr string, deps *ServerDeps) *Server {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	return &Server{
		grpcServer:    grpcServer,
		healthServer:  healthServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		healthChecker: deps.HealthChecker,
		deps:          deps,
	}
}

// StartGRPC starts the gRPC server (blocking).
func (s *Server) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: gRPC server shutting down...")
		s.grpcServer.GracefulStop()
	}()

	log.Printf("INFO: gRPC server listening on %s", s.grpcAddr)
	return s.grpcServer.Serve(lis)
}

// StartHTTP starts the HTTP/JSON API server (blocking).
func (s *Server) StartHTTP(ctx context.Context) error {
	mux := runtime.NewServeMux()

	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{"GET", "/v1/pools", s.handleListPools},
		{"GET", "/v1/pools/{pool_id}", s.handleGetPool},
		{"GET", "/v1/pools/{pool_id}/history", s.handleGetPoolHistory},
		{"GET", "/v1/pools/{pool_id}/holders/{account}", s.handleGetHolderShares},
		{"GET", "/v1/pools/{pool_id}/transitions", s.handleGetPoolTransitions},
		{"POST", "/v1/admin/pools", s.handleCreatePool},
		{"POST", "/v1/admin/deposits/buy", s.handleBuyDeposit},
		{"POST", "/v1/admin/deposits/sell", s.handleSellDeposit},
		{"POST", "/v1/admin/withdrawals", s.handleWithdraw},
		{"POST", "/v1/admin/decisions/claim", s.handleClaimDecision},
		{"POST", "/v1/admin/decisions/terminate", s.handleTerminateDecision},
		{"POST", "/v1/admin/blocks", s.handleBlockTick},
		{"POST", "/v1/admin/projections/rebuild", s.handleRebuildProjections},
		{"GET", "/v1/admin/integrity", s.handleVerifyIntegrity},
		{"GET", "/v1/admin/log", s.handleEventLogInfo},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handler); err != nil {
			return fmt.Errorf("register %s %s: %w", r.method, r.pattern, err)
		}
	}

	httpMux := http.NewServeMux()
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	}
	httpMux.Handle("/", mux)

	s.httpServer = &http.Server{
		Addr:    s.httpAddr,
		Handler: httpMux,
	}

	go func() {
		<-ctx.Done()
		log.Println("INFO: HTTP server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("INFO: HTTP API listening on %s", s.httpAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// ============================================================================
// Query handlers
// ============================================================================

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	poolID, err := uuid.Parse(pathParams["pool_id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pool_id")
		return
	}

	pool, err := s.deps.QueryService.GetPool(r.Context(), poolID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if pool == nil {
		writeError(w, http.StatusNotFound, "pool not found")
		return
	}

	writeJSON(w, http.StatusOK, pool)
}

func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()

	var status *string
	if v := q.Get("status"); v != "" {
		status = &v
	}

	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	var afterSeq *int64
	if v := q.Get("after_sequence"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after_sequence")
			return
		}
		afterSeq = &n
	}

	pools, err := s.deps.QueryService.ListPools(r.Context(), status, limit, afterSeq)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"pools": pools})
}

func (s *Server) handleGetPoolHistory(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	poolID, err := uuid.Parse(pathParams["pool_id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pool_id")
		return
	}

	q := r.URL.Query()
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	var afterSeq *int64
	if v := q.Get("after_sequence"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after_sequence")
			return
		}
		afterSeq = &n
	}

	history, err := s.deps.QueryService.GetPoolHistory(r.Context(), poolID, limit, afterSeq)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"history": history})
}

func (s *Server) handleGetPoolTransitions(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	poolID, err := uuid.Parse(pathParams["pool_id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pool_id")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	transitions, err := s.deps.QueryService.GetPoolTransitions(r.Context(), poolID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"transitions": transitions})
}

func (s *Server) handleGetHolderShares(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	poolID, err := uuid.Parse(pathParams["pool_id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pool_id")
		return
	}
	account, err := uuid.Parse(pathParams["account"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account")
		return
	}

	shares, err := s.deps.QueryService.GetHolderShares(r.Context(), poolID, account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if shares == nil {
		writeError(w, http.StatusNotFound, "pool not found")
		return
	}

	writeJSON(w, http.StatusOK, shares)
}

// ============================================================================
// Admin injection handlers
// ============================================================================

type createPoolRequest struct {
	PoolID        string `json:"pool_id"`
	Multiplier    int64  `json:"multiplier"`
	MaturityBlock int64  `json:"maturity_block"`
	StaleBlock    int64  `json:"stale_block"`
	Fee           int64  `json:"fee"`
	FeeTo         string `json:"fee_to"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
}

func (s *Server) handleCreatePool(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req createPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	poolID, err := uuid.Parse(req.PoolID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pool_id")
		return
	}
	var feeTo uuid.UUID
	if req.FeeTo != "" {
		feeTo, err = uuid.Parse(req.FeeTo)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid fee_to")
			return
		}
	}

	err = s.deps.AdminIngest.InjectCreatePool(r.Context(), poolID,
		req.Multiplier, req.MaturityBlock, req.StaleBlock, req.Fee,
		feeTo, req.Name, req.Symbol)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true, "pool_id": req.PoolID})
}

type depositRequest struct {
	PoolID  string `json:"pool_id"`
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
	Height  int64  `json:"height"`
}

func (s *Server) handleBuyDeposit(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	s.handleDeposit(w, r, s.deps.AdminIngest.InjectBuy)
}

func (s *Server) handleSellDeposit(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	s.handleDeposit(w, r, s.deps.AdminIngest.InjectSell)
}

func (s *Server) handleDeposit(
	w http.ResponseWriter,
	r *http.Request,
	inject func(ctx context.Context, poolID, account uuid.UUID, amount, height int64) error,
) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	poolID, err := uuid.Parse(req.PoolID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pool_id")
		return
	}
	account, err := uuid.Parse(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account")
		return
	}

	if err := inject(r.Context(), poolID, account, req.Amount, req.Height); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true})
}

type withdrawRequest struct {
	PoolID     string `json:"pool_id"`
	Account    string `json:"account"`
	BuyShares  int64  `json:"buy_shares"`
	SellShares int64  `json:"sell_shares"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	poolID, err := uuid.Parse(req.PoolID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pool_id")
		return
	}
	account, err := uuid.Parse(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account")
		return
	}

	if err := s.deps.AdminIngest.InjectWithdraw(r.Context(), poolID, account, req.BuyShares, req.SellShares); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true})
}

type decisionRequest struct {
	PoolID string `json:"pool_id"`
}

func (s *Server) handleClaimDecision(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	s.handleDecision(w, r, s.deps.AdminIngest.InjectClaimDecision)
}

func (s *Server) handleTerminateDecision(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	s.handleDecision(w, r, s.deps.AdminIngest.InjectTerminateDecision)
}

func (s *Server) handleDecision(
	w http.ResponseWriter,
	r *http.Request,
	inject func(ctx context.Context, poolID uuid.UUID) error,
) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	poolID, err := uuid.Parse(req.PoolID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid pool_id")
		return
	}

	if err := inject(r.Context(), poolID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true})
}

type blockTickRequest struct {
	Height int64 `json:"height"`
}

func (s *Server) handleBlockTick(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req blockTickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.deps.AdminIngest.InjectBlockTick(r.Context(), req.Height); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true, "height": req.Height})
}

// ============================================================================
// Admin maintenance handlers
// ============================================================================

func (s *Server) handleRebuildProjections(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	if err := projection.RebuildProjections(r.Context(), s.deps.DB); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rebuilt": true})
}

func (s *Server) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	report, err := s.deps.QueryService.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleEventLogInfo(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	latestSeq, err := s.deps.SnapshotMgr.GetLatestSequence(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"last_sequence": latestSeq,
		"uptime":        time.Since(s.deps.StartTime).String(),
	})
}

// ============================================================================
// Helpers
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
