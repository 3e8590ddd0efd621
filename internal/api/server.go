// Package api serves the indexed entities over HTTP.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"troveScope/internal/metrics"
	"troveScope/internal/model"
	"troveScope/internal/storage"
)

const (
	defaultFirst = 100
	maxFirst     = 1000
)

// Config wires the router.
type Config struct {
	Store   storage.EntityStore
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

type server struct {
	store  storage.EntityStore
	logger *zap.Logger
}

// NewRouter builds the query API.
func NewRouter(cfg Config) (http.Handler, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &server{store: cfg.Store, logger: logger}
	m := cfg.Metrics

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.With(m.Middleware("tokens")).Get("/tokens", s.listTokens)
	r.With(m.Middleware("token")).Get("/tokens/{address}", s.getToken)
	r.With(m.Middleware("borrower_debt_tokens")).Get("/borrowers/{address}/debt-tokens", s.listDebtTokenMetas)
	r.With(m.Middleware("borrower_history")).Get("/borrowers/{address}/history", s.listBorrowerHistory)
	r.With(m.Middleware("pools")).Get("/pools", s.listPools)
	r.With(m.Middleware("pool")).Get("/pools/{address}", s.getPool)
	r.With(m.Middleware("user_positions")).Get("/users/{address}/positions", s.listPositions)

	if m != nil {
		r.Handle("/metrics", m.Handler())
	}
	return r, nil
}

type pageInfo struct {
	EndCursor   string `json:"endCursor"`
	HasNextPage bool   `json:"hasNextPage"`
}

type connection[T any] struct {
	Nodes    []T      `json:"nodes"`
	PageInfo pageInfo `json:"pageInfo"`
}

// EncodeCursor turns an entity identity into an opaque cursor.
func EncodeCursor(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

// DecodeCursor reverses EncodeCursor.
func DecodeCursor(cursor string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", fmt.Errorf("invalid cursor")
	}
	return string(raw), nil
}

func parsePage(r *http.Request) (storage.Page, error) {
	page := storage.Page{Limit: defaultFirst}
	if v := r.URL.Query().Get("first"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return page, fmt.Errorf("first must be a positive integer")
		}
		if n > maxFirst {
			n = maxFirst
		}
		page.Limit = n
	}
	if v := r.URL.Query().Get("after"); v != "" {
		after, err := DecodeCursor(v)
		if err != nil {
			return page, err
		}
		page.After = after
	}
	return page, nil
}

// writeList fetches one extra row to learn whether a next page exists.
func writeList[T any](s *server, w http.ResponseWriter, r *http.Request, fetch func(context.Context, storage.Page) ([]T, error), id func(T) string) {
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := page.Limit
	page.Limit = limit + 1

	nodes, err := fetch(r.Context(), page)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	out := connection[T]{Nodes: nodes}
	if len(nodes) > limit {
		out.Nodes = nodes[:limit]
		out.PageInfo.HasNextPage = true
	}
	if out.Nodes == nil {
		out.Nodes = []T{}
	}
	if len(out.Nodes) > 0 {
		out.PageInfo.EndCursor = EncodeCursor(id(out.Nodes[len(out.Nodes)-1]))
	}
	writeJSON(w, http.StatusOK, out)
}

func writeEntity[T any](s *server, w http.ResponseWriter, r *http.Request, entity *T, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (s *server) listTokens(w http.ResponseWriter, r *http.Request) {
	writeList(s, w, r, s.store.ListTokens, func(t model.Token) string { return t.ID() })
}

func (s *server) getToken(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}
	token, err := s.store.GetToken(r.Context(), model.TokenID(addr))
	writeEntity(s, w, r, token, err)
}

func (s *server) listDebtTokenMetas(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}
	writeList(s, w, r, func(ctx context.Context, page storage.Page) ([]model.DebtTokenMeta, error) {
		return s.store.ListDebtTokenMetas(ctx, addr, page)
	}, func(m model.DebtTokenMeta) string { return m.ID })
}

func (s *server) listBorrowerHistory(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}
	writeList(s, w, r, func(ctx context.Context, page storage.Page) ([]model.BorrowerHistory, error) {
		return s.store.ListBorrowerHistory(ctx, addr, page)
	}, func(h model.BorrowerHistory) string { return h.ID })
}

func (s *server) listPools(w http.ResponseWriter, r *http.Request) {
	writeList(s, w, r, s.store.ListPools, func(p model.Pool) string { return p.ID() })
}

func (s *server) getPool(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}
	pool, err := s.store.GetPool(r.Context(), model.PoolID(addr))
	writeEntity(s, w, r, pool, err)
}

func (s *server) listPositions(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r)
	if !ok {
		return
	}
	writeList(s, w, r, func(ctx context.Context, page storage.Page) ([]model.Position, error) {
		return s.store.ListPositions(ctx, addr, page)
	}, func(p model.Position) string { return p.ID })
}

// addressParam returns the checksummed {address} path parameter.
func addressParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "address"))
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return "", false
	}
	return common.HexToAddress(raw).Hex(), true
}

func (s *server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
