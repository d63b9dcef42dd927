package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/splitfolio/backend/src/model"
	"github.com/username/splitfolio/backend/src/models"
)

func TestAddEntryValidation(t *testing.T) {
	db, entrySvc, _, _, _ := newTestServices(t)
	alice := createTestUser(t, db, "alice")

	tests := []struct {
		name string
		in   EntryInput
	}{
		{name: "zero amount", in: EntryInput{Kind: models.EntryExpense, Amount: 0, Category: "Food"}},
		{name: "negative amount", in: EntryInput{Kind: models.EntryIncome, Amount: -100, Category: "Salary"}},
		{name: "debt kind", in: EntryInput{Kind: models.EntryLend, Amount: 100, Category: "Loans"}},
		{name: "unknown kind", in: EntryInput{Kind: "gift", Amount: 100, Category: "Misc"}},
		{name: "missing category", in: EntryInput{Kind: models.EntryExpense, Amount: 100}},
		{name: "investment without direction", in: EntryInput{Kind: models.EntryInvestment, Amount: 100, Category: "Stocks"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := entrySvc.AddEntry(alice, tt.in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestAddAndListEntries(t *testing.T) {
	db, entrySvc, _, _, _ := newTestServices(t)
	alice := createTestUser(t, db, "alice")

	jan := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)

	_, err := entrySvc.AddEntry(alice, EntryInput{Kind: models.EntryIncome, Amount: 250000, Category: "Salary", Date: jan})
	require.NoError(t, err)
	_, err = entrySvc.AddEntry(alice, EntryInput{Kind: models.EntryExpense, Amount: 4500, Category: "Food", Description: "Groceries", Date: feb})
	require.NoError(t, err)

	all, err := entrySvc.ListEntries(alice, nil, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// Range filtering.
	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	febOnly, err := entrySvc.ListEntries(alice, &cutoff, nil)
	require.NoError(t, err)
	require.Len(t, febOnly, 1)
	assert.Equal(t, models.EntryExpense, febOnly[0].Kind)

	// Other users see nothing.
	bob := createTestUser(t, db, "bob")
	empty, err := entrySvc.ListEntries(bob, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDeleteEntryOwnership(t *testing.T) {
	db, entrySvc, _, _, _ := newTestServices(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	entry, err := entrySvc.AddEntry(alice, EntryInput{Kind: models.EntryExpense, Amount: 100, Category: "Food"})
	require.NoError(t, err)

	assert.ErrorIs(t, entrySvc.DeleteEntry(bob, entry.ID), ErrUnauthorized)
	require.NoError(t, entrySvc.DeleteEntry(alice, entry.ID))
	assert.ErrorIs(t, entrySvc.DeleteEntry(alice, entry.ID), ErrNotFound)
}

func TestAnalysisSummary(t *testing.T) {
	db, entrySvc, _, _, _ := newTestServices(t)
	alice := createTestUser(t, db, "alice")

	_, err := entrySvc.AddEntry(alice, EntryInput{Kind: models.EntryIncome, Amount: 300000, Category: "Salary"})
	require.NoError(t, err)
	_, err = entrySvc.AddEntry(alice, EntryInput{Kind: models.EntryExpense, Amount: 12000, Category: "Food"})
	require.NoError(t, err)
	_, err = entrySvc.AddEntry(alice, EntryInput{Kind: models.EntryInvestment, InvestmentKind: models.InvestmentBuy, Amount: 50000, Category: "ETF"})
	require.NoError(t, err)
	_, err = entrySvc.AddEntry(alice, EntryInput{Kind: models.EntryInvestment, InvestmentKind: models.InvestmentSell, Amount: 20000, Category: "ETF"})
	require.NoError(t, err)

	summary, err := entrySvc.Analysis(alice)
	require.NoError(t, err)
	assert.Equal(t, models.Cents(300000), summary.TotalIncome)
	assert.Equal(t, models.Cents(12000), summary.TotalExpense)
	assert.Equal(t, models.Cents(50000), summary.TotalInvestmentBuy)
	assert.Equal(t, models.Cents(20000), summary.TotalInvestmentSell)

	// The summary cache invalidates on writes.
	_, err = entrySvc.AddEntry(alice, EntryInput{Kind: models.EntryExpense, Amount: 1000, Category: "Food"})
	require.NoError(t, err)
	summary, err = entrySvc.Analysis(alice)
	require.NoError(t, err)
	assert.Equal(t, models.Cents(13000), summary.TotalExpense)
}

func TestRequestPurgeWorkerSweep(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	old := &model.ConfirmationRequest{
		RecipientID: bob,
		InitiatorID: alice,
		Kind:        models.RequestRemind,
		Amount:      100,
	}
	require.NoError(t, model.InsertRequest(db, old))
	_, err := db.Exec(`UPDATE confirmation_requests SET created_at = ? WHERE id = ?`,
		time.Now().Add(-31*24*time.Hour), old.ID)
	require.NoError(t, err)

	fresh := &model.ConfirmationRequest{
		RecipientID: bob,
		InitiatorID: alice,
		Kind:        models.RequestRemind,
		Amount:      100,
	}
	require.NoError(t, model.InsertRequest(db, fresh))

	purged, err := model.DeleteRequestsBefore(db, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	remaining, err := model.ListPendingRequests(db, bob)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh.ID, remaining[0].ID)
}
