// Package ledger implements the transaction-processing core: per-client
// accounts, stored deposits, and the dispute lifecycle.
//
// The engine consumes an ordered stream of records and reports no per-record
// outcome. A record that fails any precondition is dropped with no state
// change; downstream, invalid input is indistinguishable from input that
// never arrived. Drops leave side-band traces only (debug logs and
// Prometheus counters), nothing flows back to the caller.
//
// The engine itself takes no locks and is not safe for concurrent use.
// Adapters that multiplex callers serialize around it; the stream contract
// is a single ordered writer.
package ledger

import (
	"log/slog"
	"time"

	"github.com/paystream/tx-engine/internal/fixedpoint"
	"github.com/paystream/tx-engine/internal/metrics"
	"github.com/paystream/tx-engine/internal/model"
)

// Drop reasons. These feed bounded-cardinality metric labels and debug
// logs; they are never returned to callers.
const (
	dropMissingAmount      = "missing_amount"
	dropNonPositiveAmount  = "non_positive_amount"
	dropAccountLocked      = "account_locked"
	dropInsufficientFunds  = "insufficient_funds"
	dropUnknownTransaction = "unknown_transaction"
	dropClientMismatch     = "client_mismatch"
	dropStateConflict      = "state_conflict"
	dropUnknownType        = "unknown_type"
)

// Engine holds all account and deposit state for one processing run.
type Engine struct {
	accounts map[uint16]*model.Account
	deposits map[uint32]*model.Deposit
}

// NewEngine returns an empty engine. Accounts come into existence lazily as
// the stream references them.
func NewEngine() *Engine {
	return &Engine{
		accounts: make(map[uint16]*model.Account),
		deposits: make(map[uint32]*model.Deposit),
	}
}

// Apply processes one record. It never reports the outcome: every
// precondition failure drops the record silently and leaves all state
// untouched.
func (e *Engine) Apply(tx model.Transaction) {
	start := time.Now()
	reason := e.apply(tx)

	typ := string(tx.Type)
	if reason == dropUnknownType {
		typ = "unknown"
	}
	metrics.ApplyDuration.WithLabelValues(typ).Observe(time.Since(start).Seconds())
	if reason == "" {
		metrics.TransactionsTotal.WithLabelValues(typ, "applied").Inc()
		return
	}
	metrics.TransactionsTotal.WithLabelValues(typ, "dropped").Inc()
	metrics.DropsTotal.WithLabelValues(reason).Inc()
	slog.Debug("record dropped",
		"reason", reason, "type", tx.Type, "client", tx.Client, "tx", tx.Tx)
}

// apply dispatches to the per-type handler and returns the drop reason,
// or "" when the record applied.
func (e *Engine) apply(tx model.Transaction) string {
	switch tx.Type {
	case model.TxDeposit:
		return e.deposit(tx)
	case model.TxWithdrawal:
		return e.withdrawal(tx)
	case model.TxDispute:
		return e.dispute(tx)
	case model.TxResolve:
		return e.resolve(tx)
	case model.TxChargeback:
		return e.chargeback(tx)
	default:
		return dropUnknownType
	}
}

// account returns the client's account, creating it on first reference.
func (e *Engine) account(client uint16) *model.Account {
	acct, ok := e.accounts[client]
	if !ok {
		acct = &model.Account{}
		e.accounts[client] = acct
		metrics.AccountsKnown.Inc()
	}
	return acct
}

// validAmount extracts and validates the funds-movement amount. The amount
// is checked for positivity before fixed-point conversion, so a positive
// sub-unit value (below 0.0001) converts to zero and still applies.
func validAmount(tx model.Transaction) (fixedpoint.Amount, string) {
	if tx.Amount == nil {
		return 0, dropMissingAmount
	}
	if tx.Amount.Sign() <= 0 {
		return 0, dropNonPositiveAmount
	}
	return fixedpoint.FromDecimal(*tx.Amount), ""
}

func (e *Engine) deposit(tx model.Transaction) string {
	amount, reason := validAmount(tx)
	if reason != "" {
		return reason
	}

	acct := e.account(tx.Client)
	if acct.Locked {
		return dropAccountLocked
	}

	acct.Available = acct.Available.Add(amount)

	// Last write wins on a reused transaction id; if the overwritten
	// deposit was mid-dispute, the open-disputes gauge must come down.
	if prev, ok := e.deposits[tx.Tx]; ok && prev.State == model.StateDisputed {
		metrics.DisputesOpen.Dec()
	}
	e.deposits[tx.Tx] = &model.Deposit{
		Client: tx.Client,
		Amount: amount,
		State:  model.StateNone,
	}
	return ""
}

func (e *Engine) withdrawal(tx model.Transaction) string {
	amount, reason := validAmount(tx)
	if reason != "" {
		return reason
	}

	acct := e.account(tx.Client)
	if acct.Locked {
		return dropAccountLocked
	}
	if acct.Available < amount {
		return dropInsufficientFunds
	}

	acct.Available = acct.Available.Sub(amount)
	return ""
}

// Only deposits are stored, so disputes implicitly apply to deposits alone.
// A locked account does not block the dispute lifecycle; only a deposit in
// the none state can be disputed. The record's own amount field is ignored,
// the stored deposit's amount is what moves.
func (e *Engine) dispute(tx model.Transaction) string {
	dep, ok := e.deposits[tx.Tx]
	if !ok {
		return dropUnknownTransaction
	}
	if dep.Client != tx.Client {
		return dropClientMismatch
	}
	if dep.State != model.StateNone {
		return dropStateConflict
	}

	acct := e.account(tx.Client)

	dep.State = model.StateDisputed
	acct.Available = acct.Available.Sub(dep.Amount)
	acct.Held = acct.Held.Add(dep.Amount)
	metrics.DisputesOpen.Inc()
	return ""
}

// Resolve returns held funds to available. Only a currently disputed
// deposit resolves; afterwards it is back in the none state and can be
// disputed again.
func (e *Engine) resolve(tx model.Transaction) string {
	dep, ok := e.deposits[tx.Tx]
	if !ok {
		return dropUnknownTransaction
	}
	if dep.Client != tx.Client {
		return dropClientMismatch
	}
	if dep.State != model.StateDisputed {
		return dropStateConflict
	}

	acct := e.account(tx.Client)

	dep.State = model.StateNone
	acct.Held = acct.Held.Sub(dep.Amount)
	acct.Available = acct.Available.Add(dep.Amount)
	metrics.DisputesOpen.Dec()
	return ""
}

// Chargeback is terminal: the deposit can never be disputed again and the
// account is locked against further deposits and withdrawals.
func (e *Engine) chargeback(tx model.Transaction) string {
	dep, ok := e.deposits[tx.Tx]
	if !ok {
		return dropUnknownTransaction
	}
	if dep.Client != tx.Client {
		return dropClientMismatch
	}
	if dep.State != model.StateDisputed {
		return dropStateConflict
	}

	acct := e.account(tx.Client)

	dep.State = model.StateChargedBack
	acct.Held = acct.Held.Sub(dep.Amount)
	if !acct.Locked {
		acct.Locked = true
		metrics.AccountsLocked.Inc()
	}
	metrics.DisputesOpen.Dec()
	slog.Info("account locked by chargeback", "client", tx.Client, "tx", tx.Tx)
	return ""
}

// Snapshot returns an owned view of every account in unspecified order.
// The views share nothing with engine state.
func (e *Engine) Snapshot() []model.AccountView {
	views := make([]model.AccountView, 0, len(e.accounts))
	for client, acct := range e.accounts {
		views = append(views, model.AccountView{
			Client:    client,
			Available: acct.Available,
			Held:      acct.Held,
			Total:     acct.Total(),
			Locked:    acct.Locked,
		})
	}
	return views
}

// View returns an owned view of one client's account. The second return is
// false when the stream has never created the account.
func (e *Engine) View(client uint16) (model.AccountView, bool) {
	acct, ok := e.accounts[client]
	if !ok {
		return model.AccountView{}, false
	}
	return model.AccountView{
		Client:    client,
		Available: acct.Available,
		Held:      acct.Held,
		Total:     acct.Total(),
		Locked:    acct.Locked,
	}, true
}

// DepositView returns an owned view of one stored deposit. The second
// return is false when the id was never stored.
func (e *Engine) DepositView(tx uint32) (model.DepositView, bool) {
	dep, ok := e.deposits[tx]
	if !ok {
		return model.DepositView{}, false
	}
	return model.DepositView{
		Tx:     tx,
		Client: dep.Client,
		Amount: dep.Amount,
		State:  dep.State,
	}, true
}
