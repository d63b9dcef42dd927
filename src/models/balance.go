package models

// BalanceSource identifies where a slice of a balance came from: a group id
// or the personal-ledger sentinel.
const PersonalSource = "personal"

// BreakdownItem is one source's contribution to a counterparty balance.
type BreakdownItem struct {
	SourceID   string `json:"source_id"`   // "group:<id>" or "personal"
	SourceName string `json:"source_name"` // group name or "Personal Lending"
	Amount     Cents  `json:"amount"`
}

// Balance is the derived net position against one counterparty. Positive
// totals mean the counterparty owes the querying user. Recomputed from
// scratch on every query; never persisted.
type Balance struct {
	Counterparty Counterparty    `json:"counterparty"`
	Name         string          `json:"name"`
	Total        Cents           `json:"total"`
	Breakdown    []BreakdownItem `json:"breakdown"`
}

// TallyEntry is one member's net position inside a single group: what they
// fronted minus what they owe, adjusted by confirmed settlements.
type TallyEntry struct {
	Member Counterparty `json:"member"`
	Name   string       `json:"name"`
	Amount Cents        `json:"amount"`
}

// AnalysisSummary holds the cash-flow totals for one user's personal ledger.
type AnalysisSummary struct {
	TotalIncome         Cents `json:"total_income"`
	TotalExpense        Cents `json:"total_expense"`
	TotalInvestmentBuy  Cents `json:"total_investment_buy"`
	TotalInvestmentSell Cents `json:"total_investment_sell"`
}
