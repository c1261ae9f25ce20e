// Package api provides the HTTP ingest and query surface over the ledger
// engine.
//
// The engine is a single-writer core, so Service serializes every request
// that touches it through one mutex. For horizontal scaling, shard streams
// by client id upstream instead of sharing one engine.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paystream/tx-engine/internal/csvio"
	"github.com/paystream/tx-engine/internal/ledger"
	"github.com/paystream/tx-engine/internal/model"
	"github.com/paystream/tx-engine/internal/sink"
)

// Service handles transaction ingestion and account queries.
type Service struct {
	mu     sync.Mutex
	engine *ledger.Engine
	wsHub  *WSHub    // optional WebSocket hub for account update broadcasts
	export sink.Sink // optional snapshot export destination
}

// NewService creates a new ingest service. Pass nil for hub if WebSocket
// broadcasting is not needed and nil for export if snapshot export is not
// configured.
func NewService(engine *ledger.Engine, hub *WSHub, export sink.Sink) *Service {
	return &Service{
		engine: engine,
		wsHub:  hub,
		export: export,
	}
}

// --- Request/Response types ---

// SubmitRequest is the JSON body for POST /transactions.
type SubmitRequest struct {
	Type   string           `json:"type"`
	Client uint16           `json:"client"`
	Tx     uint32           `json:"tx"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

// SubmitResponse acknowledges receipt of one record. The engine never
// discloses per-record outcomes; the response carries the client's current
// view, which is absent when the stream has not created the account.
type SubmitResponse struct {
	Status  string             `json:"status"`
	Account *model.AccountView `json:"account,omitempty"`
}

// BatchResponse summarizes one ingested CSV batch.
type BatchResponse struct {
	BatchID string `json:"batch_id"`
	Records int    `json:"records"`
	Skipped int    `json:"skipped"`
}

// --- HTTP Handlers ---

// SubmitTransaction handles POST /api/v1/transactions
func (s *Service) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	typ, err := model.ParseTxType(req.Type)
	if err != nil {
		writeError(w, "unknown transaction type", http.StatusBadRequest)
		return
	}
	tx := model.Transaction{Type: typ, Client: req.Client, Tx: req.Tx, Amount: req.Amount}

	s.mu.Lock()
	s.engine.Apply(tx)
	view, ok := s.engine.View(tx.Client)
	if ok {
		// Broadcast under the lock so the feed sees views in apply order.
		s.broadcastView(view)
	}
	s.mu.Unlock()

	slog.Debug("record ingested", "type", typ, "client", tx.Client, "tx", tx.Tx)

	resp := SubmitResponse{Status: "accepted"}
	if ok {
		resp.Account = &view
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(resp)
}

// SubmitBatch handles POST /api/v1/batches
// The request body is a CSV stream in the ingest format. Rows that cannot
// be mapped onto records are skipped and counted; a structurally unreadable
// stream fails the whole batch.
func (s *Service) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	reader, err := csvio.NewReader(r.Body)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	batchID := uuid.New().String()
	var records, skipped int
	var readErr error

	s.mu.Lock()
	for {
		tx, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var rowErr *csvio.RowError
		if errors.As(err, &rowErr) {
			skipped++
			slog.Warn("batch row skipped", "batch_id", batchID, "line", rowErr.Line, "err", rowErr.Err)
			continue
		}
		if err != nil {
			readErr = err
			break
		}
		s.engine.Apply(tx)
		records++
		// The feed carries batch records exactly like single submits.
		if view, ok := s.engine.View(tx.Client); ok {
			s.broadcastView(view)
		}
	}
	s.mu.Unlock()

	if readErr != nil {
		slog.Error("batch aborted", "batch_id", batchID, "err", readErr)
		writeError(w, "unreadable batch stream", http.StatusBadRequest)
		return
	}

	slog.Info("batch processed", "batch_id", batchID, "records", records, "skipped", skipped)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(BatchResponse{BatchID: batchID, Records: records, Skipped: skipped})
}

// ListAccounts handles GET /api/v1/accounts
// Returns the full snapshot, ordered by client id for stable output.
func (s *Service) ListAccounts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	views := s.engine.Snapshot()
	s.mu.Unlock()

	sort.Slice(views, func(i, j int) bool { return views[i].Client < views[j].Client })

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

// GetAccount handles GET /api/v1/accounts/{clientID}
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	client, err := strconv.ParseUint(chi.URLParam(r, "clientID"), 10, 16)
	if err != nil {
		writeError(w, "invalid client id", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	view, ok := s.engine.View(uint16(client))
	s.mu.Unlock()

	if !ok {
		writeError(w, "account not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// GetTransaction handles GET /api/v1/transactions/{txID}
// Only deposits are stored, so only deposit ids resolve here.
func (s *Service) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID, err := strconv.ParseUint(chi.URLParam(r, "txID"), 10, 32)
	if err != nil {
		writeError(w, "invalid transaction id", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	view, ok := s.engine.DepositView(uint32(txID))
	s.mu.Unlock()

	if !ok {
		writeError(w, "transaction not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// ExportSnapshot handles POST /api/v1/snapshot/export
// Writes the current snapshot through the configured sink.
func (s *Service) ExportSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.export == nil {
		writeError(w, "no snapshot sink configured", http.StatusNotFound)
		return
	}

	s.mu.Lock()
	views := s.engine.Snapshot()
	s.mu.Unlock()

	if err := s.export.WriteSnapshot(r.Context(), views); err != nil {
		slog.Error("snapshot export failed", "err", err)
		writeError(w, "snapshot export failed", http.StatusInternalServerError)
		return
	}

	slog.Info("snapshot exported", "accounts", len(views))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"exported": len(views)})
}

// broadcastView pushes one refreshed account view to WebSocket clients.
func (s *Service) broadcastView(v model.AccountView) {
	if s.wsHub == nil {
		return
	}
	s.wsHub.Broadcast(WSMessage{
		Type:      "account_updated",
		Client:    v.Client,
		Available: v.Available.String(),
		Held:      v.Held.String(),
		Total:     v.Total.String(),
		Locked:    v.Locked,
	})
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
