// Package syncbridge carries ledger transactions between devices over HTTP.
package syncbridge

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bnema/focuscoin/internal/application"
	"github.com/bnema/focuscoin/internal/domain"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	transactionsPath = "/v1/transactions"
	healthPath       = "/v1/health"
	maxBodyBytes     = 4 << 20
)

// Ledger is the local side of an exchange.
type Ledger interface {
	Export(ctx context.Context, since time.Time) ([]domain.RemoteTransaction, error)
	Merge(ctx context.Context, records []domain.RemoteTransaction) (application.MergeReport, error)
}

type transactionsBody struct {
	Transactions []domain.RemoteTransaction `json:"transactions"`
}

type errorBody struct {
	Error string `json:"error"`
}

type ServerOptions struct {
	// Token is required as "Authorization: Bearer <token>" on every route but health.
	Token string
	// RequestsPerSecond and Burst limit each remote address.
	RequestsPerSecond float64
	Burst             int
	// OnMerge observes every successful inbound merge.
	OnMerge func(application.MergeReport)
	Log     logrus.FieldLogger
}

type Server struct {
	ledger  Ledger
	token   string
	onMerge func(application.MergeReport)
	log     logrus.FieldLogger

	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewServer(ledger Ledger, opts ServerOptions) *Server {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}
	log := opts.Log
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}

	return &Server{
		ledger:   ledger,
		token:    opts.Token,
		onMerge:  opts.OnMerge,
		log:      log,
		limit:    rate.Limit(opts.RequestsPerSecond),
		burst:    opts.Burst,
		limiters: map[string]*rate.Limiter{},
	}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(healthPath, s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(s.rateLimit, s.authenticate)
	api.HandleFunc("/transactions", s.handlePull).Methods(http.MethodGet)
	api.HandleFunc("/transactions", s.handlePush).Methods(http.MethodPost)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "since must be RFC3339"})
			return
		}
		since = parsed
	}

	records, err := s.ledger.Export(r.Context(), since)
	if err != nil {
		s.log.WithError(err).Error("export transactions")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "export failed"})
		return
	}
	if records == nil {
		records = []domain.RemoteTransaction{}
	}
	writeJSON(w, http.StatusOK, transactionsBody{Transactions: records})
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var body rawBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}

	records, rejected := decodeRecords(body.Transactions)
	for _, syncID := range rejected {
		s.log.WithFields(logrus.Fields{
			"remote":  r.RemoteAddr,
			"sync_id": syncID,
		}).Warn("dropping undecodable pushed transaction")
	}

	report, err := s.ledger.Merge(r.Context(), records)
	if err != nil {
		s.log.WithError(err).Error("merge pushed transactions")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "merge failed"})
		return
	}
	report.Dropped += len(rejected)
	if s.onMerge != nil {
		s.onMerge(report)
	}

	s.log.WithFields(logrus.Fields{
		"remote":     r.RemoteAddr,
		"applied":    report.Applied,
		"duplicates": report.Duplicates,
		"dropped":    report.Dropped,
	}).Info("merged pushed transactions")
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if s.token == "" || !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(s.token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter(remoteHost(r)).Allow() {
			s.log.WithFields(logrus.Fields{
				"remote": r.RemoteAddr,
				"path":   r.URL.Path,
			}).Warn("sync rate limit exceeded")
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(s.limit, s.burst)
		s.limiters[key] = limiter
	}
	return limiter
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
