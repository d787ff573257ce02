// Package api serves the read-only query surface over the projection and
// the manual resync endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/vietddude/envelope-indexer/internal/core/domain"
	"github.com/vietddude/envelope-indexer/internal/indexing/reconcile"
	"github.com/vietddude/envelope-indexer/internal/infra/chain/sui"
	"github.com/vietddude/envelope-indexer/internal/infra/storage"
)

const defaultActiveLimit = 100

// Resyncer runs a synchronous resync against chain state.
type Resyncer interface {
	ResyncEnvelope(ctx context.Context, envelopeID string) (*domain.Envelope, error)
	ResyncTransaction(ctx context.Context, digest string) (*reconcile.TransactionResync, error)
}

// Server provides the HTTP query API.
type Server struct {
	store          storage.Store
	resyncers      map[domain.Network]Resyncer
	defaultNetwork domain.Network
	logger         *slog.Logger
}

// NewServer creates a query API server. Requests that name no network
// resolve single-envelope lookups and resyncs against defaultNetwork.
func NewServer(
	store storage.Store,
	resyncers map[domain.Network]Resyncer,
	defaultNetwork domain.Network,
) *Server {
	return &Server{
		store:          store,
		resyncers:      resyncers,
		defaultNetwork: defaultNetwork,
		logger:         slog.Default().With("component", "api"),
	}
}

// Handler returns the HTTP handler for the query API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/envelopes", s.handleListByOwner)
	mux.HandleFunc("GET /api/envelopes/active", s.handleListActive)
	mux.HandleFunc("GET /api/envelopes/{id}", s.handleGetEnvelope)
	mux.HandleFunc("GET /api/claims", s.handleListClaims)
	mux.HandleFunc("POST /api/envelopes/sync/{id}", s.handleSyncEnvelope)
	mux.HandleFunc("POST /api/transactions/sync/{digest}", s.handleSyncTransaction)
	return mux
}

// writeJSON writes v as JSON with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// address reads an address query param, accepting "address" as an alias.
func address(r *http.Request, name string) string {
	v := r.URL.Query().Get(name)
	if v == "" {
		v = r.URL.Query().Get("address")
	}
	return strings.ToLower(strings.TrimSpace(v))
}

// listNetwork returns the network filter of a list query; empty means all.
func listNetwork(r *http.Request) domain.Network {
	return domain.Network(r.URL.Query().Get("network"))
}

func (s *Server) targetNetwork(r *http.Request) domain.Network {
	if n := r.URL.Query().Get("network"); n != "" {
		return domain.Network(n)
	}
	return s.defaultNetwork
}

func (s *Server) handleListByOwner(w http.ResponseWriter, r *http.Request) {
	owner := address(r, "owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner query param required")
		return
	}
	envs, err := s.store.Envelopes().ListByOwner(r.Context(), listNetwork(r), owner)
	if err != nil {
		s.internalError(w, "list envelopes by owner", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(envs))
}

func (s *Server) handleListActive(w http.ResponseWriter, r *http.Request) {
	limit := defaultActiveLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	envs, err := s.store.Envelopes().ListActive(r.Context(), listNetwork(r), limit)
	if err != nil {
		s.internalError(w, "list active envelopes", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(envs))
}

func (s *Server) handleListClaims(w http.ResponseWriter, r *http.Request) {
	claimer := address(r, "claimer")
	if claimer == "" {
		writeError(w, http.StatusBadRequest, "claimer query param required")
		return
	}
	claims, err := s.store.Claims().ListByClaimer(r.Context(), listNetwork(r), claimer)
	if err != nil {
		s.internalError(w, "list claims by claimer", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(claims))
}

func (s *Server) handleGetEnvelope(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	network := s.targetNetwork(r)

	env, err := s.store.Envelopes().Get(r.Context(), network, id)
	if errors.Is(err, storage.ErrEnvelopeNotFound) {
		writeError(w, http.StatusNotFound, "Envelope not found")
		return
	}
	if err != nil {
		s.internalError(w, "get envelope", err)
		return
	}
	claims, err := s.store.Claims().ListByEnvelope(r.Context(), network, id)
	if err != nil {
		s.internalError(w, "list envelope claims", err)
		return
	}
	writeJSON(w, http.StatusOK, domain.EnvelopeDetail{Envelope: *env, Claims: nonNil(claims)})
}

func (s *Server) resyncer(w http.ResponseWriter, r *http.Request) (Resyncer, bool) {
	network := s.targetNetwork(r)
	rs, ok := s.resyncers[network]
	if !ok {
		writeError(w, http.StatusBadRequest, "network not configured: "+network.String())
		return nil, false
	}
	return rs, true
}

func (s *Server) handleSyncEnvelope(w http.ResponseWriter, r *http.Request) {
	rs, ok := s.resyncer(w, r)
	if !ok {
		return
	}
	env, err := rs.ResyncEnvelope(r.Context(), r.PathValue("id"))
	if err != nil {
		s.resyncError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleSyncTransaction(w http.ResponseWriter, r *http.Request) {
	rs, ok := s.resyncer(w, r)
	if !ok {
		return
	}
	result, err := rs.ResyncTransaction(r.Context(), r.PathValue("digest"))
	if err != nil {
		s.resyncError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// resyncError maps resync failures to client-visible statuses.
func (s *Server) resyncError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sui.ErrObjectNotFound),
		errors.Is(err, sui.ErrTransactionNotFound),
		errors.Is(err, reconcile.ErrNoClaimEvent):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, sui.ErrWrongObjectType):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("Resync failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("Query failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
