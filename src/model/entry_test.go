package model

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/username/splitfolio/backend/src/models"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "db", "migrations", "000001_init.up.sql"))
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	return db
}

func seedUser(t *testing.T, db *sql.DB, username string) int64 {
	t.Helper()
	u := &User{Username: username, Email: username + "@example.com", Password: "x"}
	require.NoError(t, u.CreateUser(db))
	return u.ID
}

func seedDebt(t *testing.T, db *sql.DB, ownerID, cpUserID int64, kind models.EntryKind, amount models.Cents, status models.EntryStatus) *Entry {
	t.Helper()
	e := &Entry{
		UserID:       ownerID,
		Kind:         kind,
		Amount:       amount,
		Date:         time.Now(),
		Counterparty: models.UserRef(cpUserID),
		Status:       status,
	}
	require.NoError(t, InsertEntry(db, e))
	return e
}

func TestFindOpenDebtFilters(t *testing.T) {
	db := newTestDB(t)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	// Pending and rejected entries never qualify.
	seedDebt(t, db, alice, bob, models.EntryLend, 100, models.StatusPending)
	seedDebt(t, db, alice, bob, models.EntryLend, 200, models.StatusRejected)

	open, err := FindOpenDebt(db, alice, bob, models.EntryLend)
	require.NoError(t, err)
	assert.Nil(t, open)

	confirmed := seedDebt(t, db, alice, bob, models.EntryLend, 300, models.StatusConfirmed)

	open, err = FindOpenDebt(db, alice, bob, models.EntryLend)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, confirmed.ID, open.ID)

	// Direction and kind are part of the lookup key.
	open, err = FindOpenDebt(db, bob, alice, models.EntryLend)
	require.NoError(t, err)
	assert.Nil(t, open)
	open, err = FindOpenDebt(db, alice, bob, models.EntryBorrow)
	require.NoError(t, err)
	assert.Nil(t, open)

	// Settled entries drop out.
	require.NoError(t, SettleEntryZero(db, confirmed.ID))
	open, err = FindOpenDebt(db, alice, bob, models.EntryLend)
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestLinkEntriesIsSymmetric(t *testing.T) {
	db := newTestDB(t)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	lend := seedDebt(t, db, alice, bob, models.EntryLend, 500, models.StatusConfirmed)
	borrow := seedDebt(t, db, bob, alice, models.EntryBorrow, 500, models.StatusConfirmed)

	require.NoError(t, LinkEntries(db, lend.ID, borrow.ID))

	a, err := GetEntryByID(db, lend.ID)
	require.NoError(t, err)
	b, err := GetEntryByID(db, borrow.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, a.LinkedEntryID)
	assert.Equal(t, a.ID, b.LinkedEntryID)
}

func TestDeleteEntryClearsBackReference(t *testing.T) {
	db := newTestDB(t)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	lend := seedDebt(t, db, alice, bob, models.EntryLend, 500, models.StatusConfirmed)
	borrow := seedDebt(t, db, bob, alice, models.EntryBorrow, 500, models.StatusConfirmed)
	require.NoError(t, LinkEntries(db, lend.ID, borrow.ID))

	require.NoError(t, DeleteEntry(db, lend.ID))

	_, err := GetEntryByID(db, lend.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	// The surviving half loses its dangling back-reference.
	survivor, err := GetEntryByID(db, borrow.ID)
	require.NoError(t, err)
	assert.Zero(t, survivor.LinkedEntryID)
}

func TestAddToEntryAmount(t *testing.T) {
	db := newTestDB(t)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	lend := seedDebt(t, db, alice, bob, models.EntryLend, 3000, models.StatusConfirmed)

	require.NoError(t, AddToEntryAmount(db, lend.ID, -1000))
	updated, err := GetEntryByID(db, lend.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Cents(2000), updated.Amount)

	require.NoError(t, AddToEntryAmount(db, lend.ID, 500))
	updated, err = GetEntryByID(db, lend.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Cents(2500), updated.Amount)
}

func TestMarkEntrySettledKeepsAmount(t *testing.T) {
	db := newTestDB(t)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	lend := seedDebt(t, db, alice, bob, models.EntryLend, 4200, models.StatusConfirmed)
	require.NoError(t, MarkEntrySettled(db, lend.ID))

	settled, err := GetEntryByID(db, lend.ID)
	require.NoError(t, err)
	assert.True(t, settled.IsSettled)
	assert.Equal(t, models.Cents(4200), settled.Amount)
	assert.Equal(t, models.SettlementConfirmed, settled.SettlementStatus)
}

func TestSumEntriesByKindIgnoresUnconfirmed(t *testing.T) {
	db := newTestDB(t)
	alice := seedUser(t, db, "alice")

	for _, e := range []*Entry{
		{UserID: alice, Kind: models.EntryIncome, Amount: 1000, Category: "Salary", Date: time.Now(), Status: models.StatusConfirmed},
		{UserID: alice, Kind: models.EntryIncome, Amount: 500, Category: "Salary", Date: time.Now(), Status: models.StatusConfirmed},
		{UserID: alice, Kind: models.EntryExpense, Amount: 300, Category: "Food", Date: time.Now(), Status: models.StatusConfirmed},
	} {
		require.NoError(t, InsertEntry(db, e))
	}
	bob := seedUser(t, db, "bob")
	seedDebt(t, db, alice, bob, models.EntryLend, 9999, models.StatusPending)

	income, err := SumEntriesByKind(db, alice, models.EntryIncome, "")
	require.NoError(t, err)
	assert.Equal(t, models.Cents(1500), income)

	lend, err := SumEntriesByKind(db, alice, models.EntryLend, "")
	require.NoError(t, err)
	assert.Equal(t, models.Cents(0), lend)
}
