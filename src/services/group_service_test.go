package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/splitfolio/backend/src/model"
	"github.com/username/splitfolio/backend/src/models"
)

func TestCreateGroupAndRoster(t *testing.T) {
	db, _, _, groupSvc, _ := newTestServices(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	group, err := groupSvc.CreateGroup(alice, "Trip")
	require.NoError(t, err)
	require.Len(t, group.Members, 1)
	assert.Equal(t, alice, group.Members[0].Member.UserID)

	group, err = groupSvc.AddMember(alice, group.ID, models.UserRef(bob))
	require.NoError(t, err)
	require.Len(t, group.Members, 2)

	group, err = groupSvc.AddMember(alice, group.ID, models.GuestRef("Carol"))
	require.NoError(t, err)
	require.Len(t, group.Members, 3)
	assert.Equal(t, "Carol", group.Members[2].Name)

	// Duplicates are rejected.
	_, err = groupSvc.AddMember(alice, group.ID, models.UserRef(bob))
	assert.ErrorIs(t, err, ErrValidation)
	_, err = groupSvc.AddMember(alice, group.ID, models.GuestRef("Carol"))
	assert.ErrorIs(t, err, ErrValidation)

	// Only the owner can change the roster.
	_, err = groupSvc.AddMember(bob, group.ID, models.GuestRef("Dave"))
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Non-members cannot read the group.
	eve := createTestUser(t, db, "eve")
	_, err = groupSvc.GetGroup(eve, group.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAddMemberBlockedAfterExpenses(t *testing.T) {
	db, _, _, groupSvc, _ := newTestServices(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	group, err := groupSvc.CreateGroup(alice, "Dinner club")
	require.NoError(t, err)
	_, err = groupSvc.AddMember(alice, group.ID, models.UserRef(bob))
	require.NoError(t, err)

	_, err = groupSvc.AddExpense(alice, group.ID, models.UserRef(alice), 3000, "Pizza", time.Now())
	require.NoError(t, err)

	_, err = groupSvc.AddMember(alice, group.ID, models.GuestRef("Carol"))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAddExpenseValidation(t *testing.T) {
	db, _, _, groupSvc, _ := newTestServices(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	eve := createTestUser(t, db, "eve")

	group, err := groupSvc.CreateGroup(alice, "Trip")
	require.NoError(t, err)
	_, err = groupSvc.AddMember(alice, group.ID, models.UserRef(bob))
	require.NoError(t, err)

	_, err = groupSvc.AddExpense(eve, group.ID, models.UserRef(eve), 1000, "Gas", time.Now())
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = groupSvc.AddExpense(alice, group.ID, models.UserRef(eve), 1000, "Gas", time.Now())
	assert.ErrorIs(t, err, ErrValidation)

	_, err = groupSvc.AddExpense(alice, group.ID, models.UserRef(alice), 0, "Gas", time.Now())
	assert.ErrorIs(t, err, ErrValidation)

	_, err = groupSvc.AddExpense(alice, group.ID, models.UserRef(alice), 1000, "", time.Now())
	assert.ErrorIs(t, err, ErrValidation)
}

// Three registered members, one payer: every member gets their equal share
// as a personal expense entry and the payer holds a linked lend/borrow pair
// against each other member.
func TestAddExpenseSplitsAndDebts(t *testing.T) {
	db, entrySvc, _, groupSvc, _ := newTestServices(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")

	group, err := groupSvc.CreateGroup(alice, "Trip")
	require.NoError(t, err)
	for _, id := range []int64{bob, carol} {
		_, err = groupSvc.AddMember(alice, group.ID, models.UserRef(id))
		require.NoError(t, err)
	}

	expense, err := groupSvc.AddExpense(alice, group.ID, models.UserRef(alice), 9000, "Hotel", time.Now())
	require.NoError(t, err)
	require.Len(t, expense.Splits, 3)
	for _, split := range expense.Splits {
		assert.Equal(t, models.Cents(3000), split.Share)
	}

	// Every registered member carries their own share as an expense entry.
	for _, id := range []int64{alice, bob, carol} {
		entries, err := entrySvc.ListEntries(id, nil, nil)
		require.NoError(t, err)

		var shares []model.Entry
		for _, e := range entries {
			if e.Category == models.CategoryGroupExpense {
				shares = append(shares, e)
			}
		}
		require.Len(t, shares, 1, "user %d", id)
		assert.Equal(t, models.EntryExpense, shares[0].Kind)
		assert.Equal(t, models.Cents(3000), shares[0].Amount)
		assert.Contains(t, shares[0].Description, "Hotel")
		assert.Contains(t, shares[0].Description, "Trip")
	}

	// The payer lends each member their share; each member borrows it back.
	for _, id := range []int64{bob, carol} {
		lend := openDebt(t, db, alice, id, models.EntryLend)
		borrow := openDebt(t, db, id, alice, models.EntryBorrow)

		assert.Equal(t, models.Cents(3000), lend.Amount)
		assert.Equal(t, models.Cents(3000), borrow.Amount)
		assert.Equal(t, borrow.ID, lend.LinkedEntryID)
		assert.Equal(t, lend.ID, borrow.LinkedEntryID)
		assert.Equal(t, models.StatusConfirmed, lend.Status)
		assert.Equal(t, models.StatusConfirmed, borrow.Status)
	}
}

// A second expense paid by a debtor nets against the standing reverse debt
// instead of opening an opposing pair.
func TestAddExpenseNetsReverseDebt(t *testing.T) {
	db, _, _, groupSvc, _ := newTestServices(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")

	group, err := groupSvc.CreateGroup(alice, "Trip")
	require.NoError(t, err)
	for _, id := range []int64{bob, carol} {
		_, err = groupSvc.AddMember(alice, group.ID, models.UserRef(id))
		require.NoError(t, err)
	}

	// Alice fronts 90: Bob and Carol each owe her 30.
	_, err = groupSvc.AddExpense(alice, group.ID, models.UserRef(alice), 9000, "Hotel", time.Now())
	require.NoError(t, err)

	// Bob fronts 60: Alice's share of 20 offsets against Bob's 30 debt.
	_, err = groupSvc.AddExpense(bob, group.ID, models.UserRef(bob), 6000, "Dinner", time.Now())
	require.NoError(t, err)

	lend := openDebt(t, db, alice, bob, models.EntryLend)
	borrow := openDebt(t, db, bob, alice, models.EntryBorrow)
	assert.Equal(t, models.Cents(1000), lend.Amount)
	assert.Equal(t, models.Cents(1000), borrow.Amount)

	// Carol owed Bob nothing before, so a fresh forward pair opens.
	bobLend := openDebt(t, db, bob, carol, models.EntryLend)
	assert.Equal(t, models.Cents(2000), bobLend.Amount)

	// Carol still owes Alice her original 30.
	aliceLend := openDebt(t, db, alice, carol, models.EntryLend)
	assert.Equal(t, models.Cents(3000), aliceLend.Amount)
}

// When the new share exceeds the standing reverse debt, the reverse pair is
// closed out and the direction flips for the overshoot.
func TestAddExpenseNettingFlipsDirection(t *testing.T) {
	db, _, _, groupSvc, _ := newTestServices(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	group, err := groupSvc.CreateGroup(alice, "Pair")
	require.NoError(t, err)
	_, err = groupSvc.AddMember(alice, group.ID, models.UserRef(bob))
	require.NoError(t, err)

	// Alice fronts 60: Bob owes her 30.
	_, err = groupSvc.AddExpense(alice, group.ID, models.UserRef(alice), 6000, "Tickets", time.Now())
	require.NoError(t, err)

	// Bob fronts 100: Alice's share of 50 swallows the 30 and flips by 20.
	_, err = groupSvc.AddExpense(bob, group.ID, models.UserRef(bob), 10000, "Hotel", time.Now())
	require.NoError(t, err)

	oldLend, err := model.FindOpenDebt(db, alice, bob, models.EntryLend)
	require.NoError(t, err)
	assert.Nil(t, oldLend, "original lend should be settled at zero")

	lend := openDebt(t, db, bob, alice, models.EntryLend)
	borrow := openDebt(t, db, alice, bob, models.EntryBorrow)
	assert.Equal(t, models.Cents(2000), lend.Amount)
	assert.Equal(t, models.Cents(2000), borrow.Amount)
	assert.Equal(t, borrow.ID, lend.LinkedEntryID)
	assert.Equal(t, lend.ID, borrow.LinkedEntryID)
}

// An exact offset zeroes the pair without opening a new one.
func TestAddExpenseNettingExactOffset(t *testing.T) {
	db, _, _, groupSvc, _ := newTestServices(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	group, err := groupSvc.CreateGroup(alice, "Pair")
	require.NoError(t, err)
	_, err = groupSvc.AddMember(alice, group.ID, models.UserRef(bob))
	require.NoError(t, err)

	_, err = groupSvc.AddExpense(alice, group.ID, models.UserRef(alice), 6000, "Tickets", time.Now())
	require.NoError(t, err)
	_, err = groupSvc.AddExpense(bob, group.ID, models.UserRef(bob), 6000, "Dinner", time.Now())
	require.NoError(t, err)

	for _, kind := range []models.EntryKind{models.EntryLend, models.EntryBorrow} {
		a, err := model.FindOpenDebt(db, alice, bob, kind)
		require.NoError(t, err)
		assert.Nil(t, a)
		b, err := model.FindOpenDebt(db, bob, alice, kind)
		require.NoError(t, err)
		assert.Nil(t, b)
	}
}

// Consecutive expenses by the same payer extend the existing pair instead of
// stacking parallel debts.
func TestAddExpenseExtendsExistingDebt(t *testing.T) {
	db, _, _, groupSvc, _ := newTestServices(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	group, err := groupSvc.CreateGroup(alice, "Pair")
	require.NoError(t, err)
	_, err = groupSvc.AddMember(alice, group.ID, models.UserRef(bob))
	require.NoError(t, err)

	_, err = groupSvc.AddExpense(alice, group.ID, models.UserRef(alice), 4000, "Lunch", time.Now())
	require.NoError(t, err)
	_, err = groupSvc.AddExpense(alice, group.ID, models.UserRef(alice), 2000, "Coffee", time.Now())
	require.NoError(t, err)

	lend := openDebt(t, db, alice, bob, models.EntryLend)
	borrow := openDebt(t, db, bob, alice, models.EntryBorrow)
	assert.Equal(t, models.Cents(3000), lend.Amount)
	assert.Equal(t, models.Cents(3000), borrow.Amount)
}

// Guests take part in splits but never receive ledger entries.
func TestAddExpenseWithGuestMembers(t *testing.T) {
	db, entrySvc, _, groupSvc, _ := newTestServices(t)
	alice := createTestUser(t, db, "alice")

	group, err := groupSvc.CreateGroup(alice, "Picnic")
	require.NoError(t, err)
	_, err = groupSvc.AddMember(alice, group.ID, models.GuestRef("Carol"))
	require.NoError(t, err)

	expense, err := groupSvc.AddExpense(alice, group.ID, models.GuestRef("Carol"), 3000, "Snacks", time.Now())
	require.NoError(t, err)
	require.Len(t, expense.Splits, 2)

	// Alice's share entry exists; no debt pair was opened since the payer
	// is unregistered.
	entries, err := entrySvc.ListEntries(alice, nil, nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.CategoryGroupExpense, entries[0].Category)
	assert.Equal(t, models.Cents(1500), entries[0].Amount)
}

func TestTally(t *testing.T) {
	db, _, _, groupSvc, _ := newTestServices(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	group, err := groupSvc.CreateGroup(alice, "Pair")
	require.NoError(t, err)
	_, err = groupSvc.AddMember(alice, group.ID, models.UserRef(bob))
	require.NoError(t, err)

	_, err = groupSvc.AddExpense(alice, group.ID, models.UserRef(alice), 6000, "Tickets", time.Now())
	require.NoError(t, err)

	tally, err := groupSvc.Tally(alice, group.ID)
	require.NoError(t, err)
	require.Len(t, tally, 2)

	byKey := make(map[string]models.Cents)
	var sum models.Cents
	for _, entry := range tally {
		byKey[entry.Member.Key()] = entry.Amount
		sum += entry.Amount
	}
	assert.Equal(t, models.Cents(3000), byKey[models.UserRef(alice).Key()])
	assert.Equal(t, models.Cents(-3000), byKey[models.UserRef(bob).Key()])
	assert.Equal(t, models.Cents(0), sum, "tally must sum to zero")
}
