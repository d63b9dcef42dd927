package services

import (
	"errors"
	"time"

	"github.com/username/splitfolio/backend/src/model"
	"github.com/username/splitfolio/backend/src/models"
)

// Error taxonomy. Handlers map these to HTTP status codes; anything else is a
// server error. Multi-step operations that fail return with no persisted side
// effect.
var (
	// ErrValidation rejects bad input before any write.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing entry, request, or group.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized marks an actor who is not the addressed recipient or owner.
	ErrUnauthorized = errors.New("not authorized")
	// ErrConsistency marks an internal invariant violation (linked-entry
	// mismatch, broken netting state). Always fatal to the enclosing
	// transaction, never patched over.
	ErrConsistency = errors.New("ledger consistency violation")
)

// Cache settings for the analysis summary cache.
const (
	DefaultCacheExpiration = 5 * time.Minute
	CacheCleanupInterval   = 10 * time.Minute
)

// EntryInput carries a new non-debt ledger entry from the API layer.
type EntryInput struct {
	Kind           models.EntryKind
	InvestmentKind models.InvestmentKind
	Amount         models.Cents
	Category       string
	Description    string
	Date           time.Time
}

// DebtInput carries a new lend/borrow entry. The counterparty decides the
// path: registered users go through the confirmation workflow, dummy
// contacts auto-confirm, guests stay single-sided.
type DebtInput struct {
	Kind         models.EntryKind
	Amount       models.Cents
	Counterparty models.Counterparty
	Description  string
	Date         time.Time
}

// EntryService is the ledger entry store surface: plain entries, history
// accessors, and the cash-flow analysis summary.
type EntryService interface {
	AddEntry(ownerID int64, in EntryInput) (*model.Entry, error)
	ListEntries(ownerID int64, from, to *time.Time) ([]model.Entry, error)
	DeleteEntry(ownerID, entryID int64) error
	Analysis(ownerID int64) (models.AnalysisSummary, error)
	InvalidateUserCache(ownerID int64)
}

// ConfirmationService drives the request/response handshake that turns a
// one-sided debt entry into a linked pair, and settles confirmed debts.
type ConfirmationService interface {
	CreateDebtEntry(ownerID int64, in DebtInput) (*model.Entry, error)
	CreateRequest(initiatorID, recipientID int64, kind models.RequestKind, entryID int64, amount models.Cents, description string) (*model.ConfirmationRequest, error)
	Confirm(requestID, actingUserID int64) error
	Reject(requestID, actingUserID int64) error
	ListPending(recipientID int64) ([]model.ConfirmationRequest, error)
}

// GroupService manages groups, shared expenses, and the pairwise netting of
// the debts they create.
type GroupService interface {
	CreateGroup(creatorID int64, name string) (*model.Group, error)
	ListGroups(userID int64) ([]model.Group, error)
	GetGroup(userID, groupID int64) (*model.Group, error)
	AddMember(actingUserID, groupID int64, member models.Counterparty) (*model.Group, error)
	AddExpense(actingUserID, groupID int64, payer models.Counterparty, amount models.Cents, description string, date time.Time) (*model.GroupExpense, error)
	ListExpenses(userID, groupID int64, from, to *time.Time) ([]model.GroupExpense, error)
	Tally(userID, groupID int64) ([]models.TallyEntry, error)
}

// BalanceService is the read-side aggregator plus settlement recording.
type BalanceService interface {
	ComputeBalances(userID int64) ([]models.Balance, error)
	CreateSettlement(fromUserID, groupID int64, to models.Counterparty, amount models.Cents, date time.Time) (*model.Settlement, error)
	SettlementHistory(userID int64) ([]model.Settlement, error)
}
