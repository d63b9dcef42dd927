package services

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/username/splitfolio/backend/src/logger"
	"github.com/username/splitfolio/backend/src/model"
	"github.com/username/splitfolio/backend/src/models"
)

type confirmationServiceImpl struct {
	db       *sql.DB
	entrySvc EntryService
}

func NewConfirmationService(db *sql.DB, entrySvc EntryService) ConfirmationService {
	return &confirmationServiceImpl{db: db, entrySvc: entrySvc}
}

// CreateDebtEntry records a new lend/borrow obligation. Against a registered
// user the entry starts pending and a confirmation request is raised; against
// a dummy contact both halves are created confirmed and linked in one step,
// since a contact cannot act as an approver; against a guest a single
// confirmed entry is kept, because guests never own entries.
func (s *confirmationServiceImpl) CreateDebtEntry(ownerID int64, in DebtInput) (*model.Entry, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if !in.Kind.IsDebt() {
		return nil, fmt.Errorf("%w: %s is not a debt kind", ErrValidation, in.Kind)
	}
	if err := in.Counterparty.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	date := in.Date
	if date.IsZero() {
		date = time.Now()
	}

	entry := &model.Entry{
		UserID:       ownerID,
		Kind:         in.Kind,
		Amount:       in.Amount,
		Description:  in.Description,
		Date:         date,
		Counterparty: in.Counterparty,
	}

	switch in.Counterparty.Kind {
	case models.CounterpartyUser:
		if in.Counterparty.UserID == ownerID {
			return nil, fmt.Errorf("%w: cannot record a debt against yourself", ErrValidation)
		}
		if _, err := model.GetUserByID(s.db, in.Counterparty.UserID); err != nil {
			return nil, fmt.Errorf("%w: recipient user %d", ErrNotFound, in.Counterparty.UserID)
		}
		entry.Status = models.StatusPending

		err := withTx(s.db, func(tx *sql.Tx) error {
			if err := model.InsertEntry(tx, entry); err != nil {
				return err
			}
			req := &model.ConfirmationRequest{
				RecipientID: in.Counterparty.UserID,
				InitiatorID: ownerID,
				Kind:        models.ForEntryKind(in.Kind),
				EntryID:     entry.ID,
				Amount:      in.Amount,
				Description: in.Description,
			}
			return model.InsertRequest(tx, req)
		})
		if err != nil {
			return nil, err
		}

	case models.CounterpartyContact:
		contact, err := model.GetContactByID(s.db, in.Counterparty.ContactID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: contact %d", ErrNotFound, in.Counterparty.ContactID)
			}
			return nil, err
		}
		if contact.OwnerID != ownerID {
			return nil, fmt.Errorf("%w: contact %d belongs to another user", ErrUnauthorized, contact.ID)
		}
		entry.Counterparty.Name = contact.Name
		entry.Status = models.StatusConfirmed

		// Auto-confirm path: both halves are owned by the creator, since the
		// contact has no account to hold the reciprocal.
		err = withTx(s.db, func(tx *sql.Tx) error {
			if err := model.InsertEntry(tx, entry); err != nil {
				return err
			}
			// The reciprocal half is held by the creator on the contact's
			// behalf. Its counterparty points back at the owner so only the
			// primary half feeds the personal balance bucket.
			reciprocal := &model.Entry{
				UserID:       ownerID,
				Kind:         in.Kind.Reciprocal(),
				Amount:       in.Amount,
				Description:  in.Description,
				Date:         date,
				Counterparty: models.UserRef(ownerID),
				Status:       models.StatusConfirmed,
			}
			if err := model.InsertEntry(tx, reciprocal); err != nil {
				return err
			}
			return model.LinkEntries(tx, entry.ID, reciprocal.ID)
		})
		if err != nil {
			return nil, err
		}

	case models.CounterpartyGuest:
		entry.Status = models.StatusConfirmed
		if err := model.InsertEntry(s.db, entry); err != nil {
			return nil, err
		}
	}

	return model.GetEntryByID(s.db, entry.ID)
}

// CreateRequest raises a settle request or reminder against an existing debt
// entry. Settle requests also move the entry's settlement marker to
// requested, which a rejection later resets.
func (s *confirmationServiceImpl) CreateRequest(initiatorID, recipientID int64, kind models.RequestKind, entryID int64, amount models.Cents, description string) (*model.ConfirmationRequest, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	switch kind {
	case models.RequestSettle, models.RequestRemind:
	default:
		return nil, fmt.Errorf("%w: %s requests are raised when the debt entry is created", ErrValidation, kind)
	}

	entry, err := model.GetEntryByID(s.db, entryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: entry %d", ErrNotFound, entryID)
		}
		return nil, err
	}
	if entry.UserID != initiatorID && entry.Counterparty.UserID != initiatorID {
		return nil, fmt.Errorf("%w: entry %d does not involve the initiator", ErrUnauthorized, entryID)
	}

	// The recipient must be the entry's other party; a request addressed to
	// anyone else would let a third user act on a debt they are not part of.
	otherParty := entry.Counterparty.UserID
	if entry.UserID != initiatorID {
		otherParty = entry.UserID
	}
	if otherParty == 0 || recipientID != otherParty {
		return nil, fmt.Errorf("%w: recipient must be the other party on entry %d", ErrValidation, entryID)
	}

	req := &model.ConfirmationRequest{
		RecipientID: recipientID,
		InitiatorID: initiatorID,
		Kind:        kind,
		EntryID:     entryID,
		Amount:      amount,
		Description: description,
	}

	err = withTx(s.db, func(tx *sql.Tx) error {
		if kind == models.RequestSettle {
			// Re-read under the transaction; the marker checks below must see
			// the current state.
			entry, err := model.GetEntryByID(tx, entryID)
			if err != nil {
				return err
			}
			if !entry.Kind.IsDebt() || entry.Status != models.StatusConfirmed {
				return fmt.Errorf("%w: only confirmed debts can be settled", ErrValidation)
			}
			if entry.IsSettled {
				return fmt.Errorf("%w: entry %d is already settled", ErrValidation, entryID)
			}
			if entry.SettlementStatus == models.SettlementRequested {
				return fmt.Errorf("%w: a settle request for entry %d is already pending", ErrValidation, entryID)
			}
			if err := model.SetSettlementStatus(tx, entryID, models.SettlementRequested); err != nil {
				return err
			}
		}
		return model.InsertRequest(tx, req)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (s *confirmationServiceImpl) loadActionableRequest(requestID, actingUserID int64) (*model.ConfirmationRequest, error) {
	req, err := model.GetRequestByID(s.db, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: request %d", ErrNotFound, requestID)
		}
		return nil, err
	}
	if req.RecipientID != actingUserID {
		return nil, fmt.Errorf("%w: request %d is addressed to another user", ErrUnauthorized, requestID)
	}
	// Terminal requests cannot be acted on again.
	if req.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: request %d is already %s", ErrValidation, requestID, req.Status)
	}
	return req, nil
}

// Confirm applies the recipient's approval: a lend/borrow request gains its
// reciprocal linked entry, a settle request marks both halves settled and
// re-injects the repayment into the income/expense view. The whole operation
// is one atomic unit; a failure part-way persists nothing.
func (s *confirmationServiceImpl) Confirm(requestID, actingUserID int64) error {
	req, err := s.loadActionableRequest(requestID, actingUserID)
	if err != nil {
		return err
	}

	var touched []int64

	err = withTx(s.db, func(tx *sql.Tx) error {
		// The status flip doubles as the pending check so that two concurrent
		// confirmations cannot both act on the same request.
		ok, err := model.SetRequestStatusIfPending(tx, requestID, models.StatusConfirmed)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: request %d is no longer pending", ErrValidation, requestID)
		}

		if req.Kind == models.RequestRemind {
			// Reminders carry no state transition; confirming acknowledges them.
			return nil
		}

		entry, err := model.GetEntryByID(tx, req.EntryID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: target entry %d", ErrNotFound, req.EntryID)
			}
			return err
		}

		switch req.Kind {
		case models.RequestSettle:
			return s.confirmSettle(tx, entry, &touched)
		default: // lend_request / borrow_request
			return s.confirmDebt(tx, entry, actingUserID)
		}
	})
	if err != nil {
		return err
	}

	for _, userID := range touched {
		s.entrySvc.InvalidateUserCache(userID)
	}
	logger.L.Info("Confirmation request confirmed", "requestID", requestID, "kind", req.Kind, "entryID", req.EntryID)
	return nil
}

func (s *confirmationServiceImpl) confirmSettle(tx *sql.Tx, entry *model.Entry, touched *[]int64) error {
	if entry.IsSettled {
		return fmt.Errorf("%w: entry %d is already settled", ErrValidation, entry.ID)
	}
	if err := model.MarkEntrySettled(tx, entry.ID); err != nil {
		return err
	}
	if entry.LinkedEntryID != 0 {
		linked, err := model.GetEntryByID(tx, entry.LinkedEntryID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: entry %d references missing linked entry %d", ErrConsistency, entry.ID, entry.LinkedEntryID)
			}
			return err
		}
		if linked.LinkedEntryID != entry.ID || linked.Amount != entry.Amount || linked.Kind != entry.Kind.Reciprocal() {
			return fmt.Errorf("%w: entries %d and %d are not a reciprocal pair", ErrConsistency, entry.ID, linked.ID)
		}
		if err := model.MarkEntrySettled(tx, linked.ID); err != nil {
			return err
		}
	}

	var lenderID, borrowerID int64
	if entry.Kind == models.EntryLend {
		lenderID, borrowerID = entry.UserID, entry.Counterparty.UserID
	} else {
		lenderID, borrowerID = entry.Counterparty.UserID, entry.UserID
	}
	if lenderID == 0 || borrowerID == 0 {
		return fmt.Errorf("%w: settle confirmation requires two registered parties on entry %d", ErrConsistency, entry.ID)
	}

	// Re-inject the historical cash movement into the income/expense view
	// without mutating the original obligation, which stays as the audit
	// record.
	description := "Settlement for: " + entry.Description
	if entry.Description == "" {
		description = "Settlement for: Loan"
	}
	now := time.Now()
	repayments := []*model.Entry{
		{
			UserID:           lenderID,
			Kind:             models.EntryIncome,
			Amount:           entry.Amount,
			Category:         models.CategoryDebtRepayment,
			Description:      description,
			Date:             now,
			Status:           models.StatusConfirmed,
			IsSettled:        true,
			SettlementStatus: models.SettlementConfirmed,
		},
		{
			UserID:           borrowerID,
			Kind:             models.EntryExpense,
			Amount:           entry.Amount,
			Category:         models.CategoryDebtRepayment,
			Description:      description,
			Date:             now,
			Status:           models.StatusConfirmed,
			IsSettled:        true,
			SettlementStatus: models.SettlementConfirmed,
		},
	}
	for _, repayment := range repayments {
		if err := model.InsertEntry(tx, repayment); err != nil {
			return err
		}
	}

	*touched = append(*touched, lenderID, borrowerID)
	return nil
}

func (s *confirmationServiceImpl) confirmDebt(tx *sql.Tx, entry *model.Entry, actingUserID int64) error {
	if entry.Counterparty.Kind != models.CounterpartyUser || entry.Counterparty.UserID != actingUserID {
		return fmt.Errorf("%w: entry %d is not addressed to user %d", ErrConsistency, entry.ID, actingUserID)
	}
	if err := model.SetEntryStatus(tx, entry.ID, models.StatusConfirmed); err != nil {
		return err
	}

	reciprocal := &model.Entry{
		UserID:       actingUserID,
		Kind:         entry.Kind.Reciprocal(),
		Amount:       entry.Amount,
		Description:  entry.Description,
		Date:         entry.Date,
		Counterparty: models.UserRef(entry.UserID),
		Status:       models.StatusConfirmed,
	}
	if err := model.InsertEntry(tx, reciprocal); err != nil {
		return err
	}
	return model.LinkEntries(tx, entry.ID, reciprocal.ID)
}

// Reject records the recipient's refusal. A refused lend/borrow entry stays
// in the ledger but, never having been confirmed, is excluded from netting
// and balances. A refused settle request only resets the settlement marker.
func (s *confirmationServiceImpl) Reject(requestID, actingUserID int64) error {
	req, err := s.loadActionableRequest(requestID, actingUserID)
	if err != nil {
		return err
	}

	return withTx(s.db, func(tx *sql.Tx) error {
		ok, err := model.SetRequestStatusIfPending(tx, requestID, models.StatusRejected)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: request %d is no longer pending", ErrValidation, requestID)
		}
		switch req.Kind {
		case models.RequestLend, models.RequestBorrow:
			return model.SetEntryStatus(tx, req.EntryID, models.StatusRejected)
		case models.RequestSettle:
			return model.SetSettlementStatus(tx, req.EntryID, models.SettlementNone)
		}
		return nil
	})
}

func (s *confirmationServiceImpl) ListPending(recipientID int64) ([]model.ConfirmationRequest, error) {
	return model.ListPendingRequests(s.db, recipientID)
}
