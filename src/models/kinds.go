package models

// EntryKind classifies a ledger entry. Direction of a debt is implied by the
// kind, never by the sign of the amount.
type EntryKind string

const (
	EntryIncome     EntryKind = "income"
	EntryExpense    EntryKind = "expense"
	EntryInvestment EntryKind = "investment"
	EntryLend       EntryKind = "lend"
	EntryBorrow     EntryKind = "borrow"
)

// IsDebt reports whether the kind is one side of a lend/borrow obligation.
func (k EntryKind) IsDebt() bool {
	return k == EntryLend || k == EntryBorrow
}

// Reciprocal returns the kind of the linked entry on the other side of a
// debt. For non-debt kinds it returns the kind unchanged.
func (k EntryKind) Reciprocal() EntryKind {
	switch k {
	case EntryLend:
		return EntryBorrow
	case EntryBorrow:
		return EntryLend
	}
	return k
}

// InvestmentKind distinguishes buys from sells on investment entries.
type InvestmentKind string

const (
	InvestmentBuy  InvestmentKind = "buy"
	InvestmentSell InvestmentKind = "sell"
)

// EntryStatus is the confirmation lifecycle of a debt entry. Non-debt entries
// are confirmed at creation.
type EntryStatus string

const (
	StatusPending   EntryStatus = "pending"
	StatusConfirmed EntryStatus = "confirmed"
	StatusRejected  EntryStatus = "rejected"
)

// SettlementStatus tracks whether an already-confirmed debt has since been
// paid off.
type SettlementStatus string

const (
	SettlementNone      SettlementStatus = "none"
	SettlementRequested SettlementStatus = "requested"
	SettlementConfirmed SettlementStatus = "confirmed"
)

// RequestKind classifies a confirmation request.
type RequestKind string

const (
	RequestLend   RequestKind = "lend_request"
	RequestBorrow RequestKind = "borrow_request"
	RequestSettle RequestKind = "settle_request"
	RequestRemind RequestKind = "remind"
)

// ForEntryKind returns the request kind used to ask the counterparty to
// acknowledge a new debt entry of the given kind.
func ForEntryKind(k EntryKind) RequestKind {
	if k == EntryLend {
		return RequestLend
	}
	return RequestBorrow
}

// Categories applied by the engine itself.
const (
	CategoryGroupExpense  = "Group Expense"
	CategoryDebtRepayment = "Debt Repayment"
)
