package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/paystream/tx-engine/internal/ledger"
)

// --- Broadcast queueing tests ---

// drainMessage pops one queued broadcast off a hub whose Run loop is not
// started, so assertions stay deterministic.
func drainMessage(t *testing.T, hub *WSHub) WSMessage {
	t.Helper()
	select {
	case data := <-hub.broadcast:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal broadcast: %v", err)
		}
		return msg
	default:
		t.Fatal("no queued broadcast")
		return WSMessage{}
	}
}

func TestSubmitTransaction_QueuesBroadcastInApplyOrder(t *testing.T) {
	hub := NewWSHub()
	svc := NewService(ledger.NewEngine(), hub, nil)

	post := func(body string) {
		t.Helper()
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader(body))
		svc.SubmitTransaction(w, r)
		if w.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
		}
	}

	post(`{"type":"deposit","client":3,"tx":1,"amount":"5.0"}`)
	post(`{"type":"deposit","client":3,"tx":2,"amount":"3.0"}`)

	if got := len(hub.broadcast); got != 2 {
		t.Fatalf("expected 2 queued broadcasts, got %d", got)
	}
	first := drainMessage(t, hub)
	if first.Type != "account_updated" || first.Client != 3 {
		t.Errorf("expected account_updated for client 3, got %+v", first)
	}
	if first.Available != "5.0000" {
		t.Errorf("expected first available 5.0000, got %q", first.Available)
	}
	second := drainMessage(t, hub)
	if second.Available != "8.0000" {
		t.Errorf("expected second available 8.0000, got %q", second.Available)
	}
}

func TestSubmitBatch_QueuesBroadcasts(t *testing.T) {
	hub := NewWSHub()
	svc := NewService(ledger.NewEngine(), hub, nil)

	body := "type,client,tx,amount\n" +
		"deposit,7,1,10.0\n" +
		"withdrawal,7,2,4.0\n" +
		"dispute,9,99,\n"
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/batches", strings.NewReader(body))
	svc.SubmitBatch(w, r)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	// The dispute names an unknown transaction, so no account exists for
	// client 9 and nothing is emitted for that row.
	if got := len(hub.broadcast); got != 2 {
		t.Fatalf("expected 2 queued broadcasts, got %d", got)
	}
	first := drainMessage(t, hub)
	if first.Client != 7 || first.Available != "10.0000" {
		t.Errorf("expected client 7 available 10.0000, got %+v", first)
	}
	second := drainMessage(t, hub)
	if second.Available != "6.0000" {
		t.Errorf("expected second available 6.0000, got %q", second.Available)
	}
}

// --- Hub delivery tests ---

// waitForClients polls until the hub tracks want connections.
func waitForClients(t *testing.T, hub *WSHub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.RLock()
		n := len(hub.clients)
		hub.mu.RUnlock()
		if n == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("hub never reached %d clients", want)
}

func TestHub_DeliversBroadcastsToClient(t *testing.T) {
	hub := NewWSHub()
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	waitForClients(t, hub, 1)

	hub.Broadcast(WSMessage{Type: "account_updated", Client: 1, Available: "1.0000", Held: "0.0000", Total: "1.0000"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal broadcast: %v", err)
	}
	if msg.Client != 1 || msg.Available != "1.0000" {
		t.Errorf("expected client 1 available 1.0000, got %+v", msg)
	}

	conn.Close()
	waitForClients(t, hub, 0)
}
