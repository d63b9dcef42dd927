package services

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/splitfolio/backend/src/logger"
	"github.com/username/splitfolio/backend/src/model"
	"github.com/username/splitfolio/backend/src/models"
)

type entryServiceImpl struct {
	db    *sql.DB
	cache *cache.Cache
}

func NewEntryService(db *sql.DB, summaryCache *cache.Cache) EntryService {
	return &entryServiceImpl{db: db, cache: summaryCache}
}

func analysisCacheKey(userID int64) string {
	return fmt.Sprintf("analysis:%d", userID)
}

func (s *entryServiceImpl) AddEntry(ownerID int64, in EntryInput) (*model.Entry, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if in.Kind.IsDebt() {
		return nil, fmt.Errorf("%w: lend/borrow entries go through the confirmation workflow", ErrValidation)
	}
	switch in.Kind {
	case models.EntryIncome, models.EntryExpense, models.EntryInvestment:
	default:
		return nil, fmt.Errorf("%w: unknown entry kind %q", ErrValidation, in.Kind)
	}
	if in.Category == "" {
		return nil, fmt.Errorf("%w: category is required for %s entries", ErrValidation, in.Kind)
	}
	if in.Kind == models.EntryInvestment && in.InvestmentKind == "" {
		return nil, fmt.Errorf("%w: investment entries require buy or sell", ErrValidation)
	}
	if in.Kind != models.EntryInvestment {
		in.InvestmentKind = ""
	}

	date := in.Date
	if date.IsZero() {
		date = time.Now()
	}

	entry := &model.Entry{
		UserID:         ownerID,
		Kind:           in.Kind,
		InvestmentKind: in.InvestmentKind,
		Amount:         in.Amount,
		Category:       in.Category,
		Description:    in.Description,
		Date:           date,
		Status:         models.StatusConfirmed,
	}
	if err := model.InsertEntry(s.db, entry); err != nil {
		return nil, fmt.Errorf("inserting ledger entry: %w", err)
	}

	s.InvalidateUserCache(ownerID)
	return entry, nil
}

func (s *entryServiceImpl) ListEntries(ownerID int64, from, to *time.Time) ([]model.Entry, error) {
	return model.ListEntriesByUser(s.db, ownerID, from, to)
}

// DeleteEntry removes the owner's entry unconditionally. The linked entry, if
// any, is left in place as the counterparty's record.
func (s *entryServiceImpl) DeleteEntry(ownerID, entryID int64) error {
	entry, err := model.GetEntryByID(s.db, entryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: entry %d", ErrNotFound, entryID)
		}
		return err
	}
	if entry.UserID != ownerID {
		return fmt.Errorf("%w: entry %d belongs to another user", ErrUnauthorized, entryID)
	}
	if err := model.DeleteEntry(s.db, entryID); err != nil {
		return err
	}
	s.InvalidateUserCache(ownerID)
	return nil
}

func (s *entryServiceImpl) Analysis(ownerID int64) (models.AnalysisSummary, error) {
	key := analysisCacheKey(ownerID)
	if cached, found := s.cache.Get(key); found {
		if summary, ok := cached.(models.AnalysisSummary); ok {
			return summary, nil
		}
	}

	var (
		summary models.AnalysisSummary
		err     error
	)
	if summary.TotalIncome, err = model.SumEntriesByKind(s.db, ownerID, models.EntryIncome, ""); err != nil {
		return summary, err
	}
	if summary.TotalExpense, err = model.SumEntriesByKind(s.db, ownerID, models.EntryExpense, ""); err != nil {
		return summary, err
	}
	if summary.TotalInvestmentBuy, err = model.SumEntriesByKind(s.db, ownerID, models.EntryInvestment, models.InvestmentBuy); err != nil {
		return summary, err
	}
	if summary.TotalInvestmentSell, err = model.SumEntriesByKind(s.db, ownerID, models.EntryInvestment, models.InvestmentSell); err != nil {
		return summary, err
	}

	s.cache.Set(key, summary, cache.DefaultExpiration)
	return summary, nil
}

func (s *entryServiceImpl) InvalidateUserCache(ownerID int64) {
	s.cache.Delete(analysisCacheKey(ownerID))
	logger.L.Debug("Analysis cache invalidated", "userID", ownerID)
}
