// Package model defines the core domain types shared across the transaction
// engine. Amounts arrive from untrusted input as shopspring/decimal and are
// converted once at the boundary into fixedpoint.Amount. Never float64 for
// money.
package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/paystream/tx-engine/internal/fixedpoint"
)

// TxType identifies the five record kinds the engine accepts.
type TxType string

const (
	TxDeposit    TxType = "deposit"
	TxWithdrawal TxType = "withdrawal"
	TxDispute    TxType = "dispute"
	TxResolve    TxType = "resolve"
	TxChargeback TxType = "chargeback"
)

// ParseTxType maps an external type string (case-insensitive) to a TxType.
func ParseTxType(s string) (TxType, error) {
	switch t := TxType(strings.ToLower(s)); t {
	case TxDeposit, TxWithdrawal, TxDispute, TxResolve, TxChargeback:
		return t, nil
	}
	return "", fmt.Errorf("model: unknown transaction type %q", s)
}

// DisputeState tracks where a stored deposit sits in the dispute lifecycle.
//
// Allowed transitions:
//
//	none → disputed          (dispute)
//	disputed → none          (resolve)
//	disputed → charged_back  (chargeback, terminal)
type DisputeState string

const (
	StateNone        DisputeState = "none"
	StateDisputed    DisputeState = "disputed"
	StateChargedBack DisputeState = "charged_back"
)

// Transaction is one record from the input stream. Amount is meaningful only
// for deposits and withdrawals; nil means the field was absent or
// unreadable, which the engine treats as an invalid record and drops.
type Transaction struct {
	Type   TxType           `json:"type"`
	Client uint16           `json:"client"`
	Tx     uint32           `json:"tx"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

// Deposit is the stored record of an applied deposit, the only transaction
// kind that can later be disputed. Client is kept alongside the amount so a
// dispute reference can be checked against the claimed owner.
type Deposit struct {
	Client uint16
	Amount fixedpoint.Amount
	State  DisputeState
}

// Account is one client's fund state. Total is derived, never stored.
type Account struct {
	Available fixedpoint.Amount
	Held      fixedpoint.Amount
	Locked    bool
}

// Total returns available plus held funds, saturating like all Amount math.
func (a *Account) Total() fixedpoint.Amount {
	return a.Available.Add(a.Held)
}

// AccountView is an owned snapshot row for one client. Views never alias
// engine state; mutating one has no effect on the ledger.
type AccountView struct {
	Client    uint16            `json:"client"`
	Available fixedpoint.Amount `json:"available"`
	Held      fixedpoint.Amount `json:"held"`
	Total     fixedpoint.Amount `json:"total"`
	Locked    bool              `json:"locked"`
}

// DepositView is an owned copy of one stored deposit.
type DepositView struct {
	Tx     uint32            `json:"tx"`
	Client uint16            `json:"client"`
	Amount fixedpoint.Amount `json:"amount"`
	State  DisputeState      `json:"state"`
}
