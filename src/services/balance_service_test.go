package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/splitfolio/backend/src/model"
	"github.com/username/splitfolio/backend/src/models"
)

// Balances between two registered users must mirror each other exactly.
func TestBalancesAreAntisymmetric(t *testing.T) {
	db, _, _, groupSvc, balanceSvc := newTestServices(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")

	group, err := groupSvc.CreateGroup(alice, "Trip")
	require.NoError(t, err)
	for _, id := range []int64{bob, carol} {
		_, err = groupSvc.AddMember(alice, group.ID, models.UserRef(id))
		require.NoError(t, err)
	}

	_, err = groupSvc.AddExpense(alice, group.ID, models.UserRef(alice), 9000, "Hotel", time.Now())
	require.NoError(t, err)
	_, err = groupSvc.AddExpense(bob, group.ID, models.UserRef(bob), 6000, "Dinner", time.Now())
	require.NoError(t, err)

	pairs := [][2]int64{{alice, bob}, {alice, carol}, {bob, carol}}
	for _, pair := range pairs {
		ab := balanceAgainst(t, balanceSvc, pair[0], models.UserRef(pair[1]).Key())
		ba := balanceAgainst(t, balanceSvc, pair[1], models.UserRef(pair[0]).Key())
		assert.Equal(t, ab, -ba, "pair %v", pair)
	}

	// Alice is owed 30 by Carol and 10 net by Bob.
	assert.Equal(t, models.Cents(1000), balanceAgainst(t, balanceSvc, alice, models.UserRef(bob).Key()))
	assert.Equal(t, models.Cents(3000), balanceAgainst(t, balanceSvc, alice, models.UserRef(carol).Key()))
	assert.Equal(t, models.Cents(2000), balanceAgainst(t, balanceSvc, bob, models.UserRef(carol).Key()))
}

func TestBalanceBreakdownBySource(t *testing.T) {
	db, _, confirmSvc, groupSvc, balanceSvc := newTestServices(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	group, err := groupSvc.CreateGroup(alice, "Flat")
	require.NoError(t, err)
	_, err = groupSvc.AddMember(alice, group.ID, models.UserRef(bob))
	require.NoError(t, err)

	_, err = groupSvc.AddExpense(alice, group.ID, models.UserRef(alice), 8000, "Rent", time.Now())
	require.NoError(t, err)

	// A personal guest debt lives in its own bucket.
	_, err = confirmSvc.CreateDebtEntry(alice, DebtInput{
		Kind: models.EntryLend, Amount: 2000, Counterparty: models.GuestRef("Joe"),
	})
	require.NoError(t, err)

	balances, err := balanceSvc.ComputeBalances(alice)
	require.NoError(t, err)
	require.Len(t, balances, 2)

	byKey := make(map[string]models.Balance)
	for _, b := range balances {
		byKey[b.Counterparty.Key()] = b
	}

	bobBalance := byKey[models.UserRef(bob).Key()]
	assert.Equal(t, models.Cents(4000), bobBalance.Total)
	require.Len(t, bobBalance.Breakdown, 1)
	assert.Equal(t, "Flat", bobBalance.Breakdown[0].SourceName)

	joeBalance := byKey[models.GuestRef("Joe").Key()]
	assert.Equal(t, models.Cents(2000), joeBalance.Total)
	require.Len(t, joeBalance.Breakdown, 1)
	assert.Equal(t, models.PersonalSource, joeBalance.Breakdown[0].SourceID)
}

// Pending and rejected debts never contribute to balances.
func TestBalancesIgnoreUnconfirmedDebts(t *testing.T) {
	db, _, confirmSvc, _, balanceSvc := newTestServices(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	_, err := confirmSvc.CreateDebtEntry(alice, DebtInput{
		Kind: models.EntryLend, Amount: 5000, Counterparty: models.UserRef(bob),
	})
	require.NoError(t, err)

	balances, err := balanceSvc.ComputeBalances(alice)
	require.NoError(t, err)
	assert.Empty(t, balances)

	pending, err := confirmSvc.ListPending(bob)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, confirmSvc.Reject(pending[0].ID, bob))

	balances, err = balanceSvc.ComputeBalances(alice)
	require.NoError(t, err)
	assert.Empty(t, balances)
}

func TestCreateSettlementReducesBalance(t *testing.T) {
	db, _, _, groupSvc, balanceSvc := newTestServices(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	group, err := groupSvc.CreateGroup(alice, "Pair")
	require.NoError(t, err)
	_, err = groupSvc.AddMember(alice, group.ID, models.UserRef(bob))
	require.NoError(t, err)

	// Bob owes Alice 30.
	_, err = groupSvc.AddExpense(alice, group.ID, models.UserRef(alice), 6000, "Tickets", time.Now())
	require.NoError(t, err)

	// Bob pays back 10.
	settlement, err := balanceSvc.CreateSettlement(bob, group.ID, models.UserRef(alice), 1000, time.Now())
	require.NoError(t, err)
	assert.True(t, settlement.Confirmed)

	assert.Equal(t, models.Cents(2000), balanceAgainst(t, balanceSvc, alice, models.UserRef(bob).Key()))
	assert.Equal(t, models.Cents(-2000), balanceAgainst(t, balanceSvc, bob, models.UserRef(alice).Key()))

	history, err := balanceSvc.SettlementHistory(bob)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.Cents(1000), history[0].Amount)
}

func TestCreateSettlementClosesDirectedDebts(t *testing.T) {
	db, _, _, groupSvc, balanceSvc := newTestServices(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	group, err := groupSvc.CreateGroup(alice, "Pair")
	require.NoError(t, err)
	_, err = groupSvc.AddMember(alice, group.ID, models.UserRef(bob))
	require.NoError(t, err)

	_, err = groupSvc.AddExpense(alice, group.ID, models.UserRef(alice), 6000, "Tickets", time.Now())
	require.NoError(t, err)

	_, err = balanceSvc.CreateSettlement(bob, group.ID, models.UserRef(alice), 3000, time.Now())
	require.NoError(t, err)

	// The directed lend/borrow pair between payer and receiver is closed.
	lend, err := model.FindOpenDebt(db, alice, bob, models.EntryLend)
	require.NoError(t, err)
	assert.Nil(t, lend)
	borrow, err := model.FindOpenDebt(db, bob, alice, models.EntryBorrow)
	require.NoError(t, err)
	assert.Nil(t, borrow)
}

func TestCreateSettlementValidation(t *testing.T) {
	db, _, _, groupSvc, balanceSvc := newTestServices(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	eve := createTestUser(t, db, "eve")

	group, err := groupSvc.CreateGroup(alice, "Pair")
	require.NoError(t, err)
	_, err = groupSvc.AddMember(alice, group.ID, models.UserRef(bob))
	require.NoError(t, err)

	_, err = balanceSvc.CreateSettlement(alice, group.ID, models.UserRef(bob), 0, time.Now())
	assert.ErrorIs(t, err, ErrValidation)

	_, err = balanceSvc.CreateSettlement(alice, group.ID, models.UserRef(alice), 1000, time.Now())
	assert.ErrorIs(t, err, ErrValidation)

	_, err = balanceSvc.CreateSettlement(eve, group.ID, models.UserRef(alice), 1000, time.Now())
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = balanceSvc.CreateSettlement(alice, group.ID, models.UserRef(eve), 1000, time.Now())
	assert.ErrorIs(t, err, ErrValidation)

	_, err = balanceSvc.CreateSettlement(alice, 9999, models.UserRef(bob), 1000, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

// A confirmed contact link folds guest-name debts into the registered
// account's balance line.
func TestBalancesMergeConfirmedContactLinks(t *testing.T) {
	db, _, confirmSvc, _, balanceSvc := newTestServices(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	_, err := confirmSvc.CreateDebtEntry(alice, DebtInput{
		Kind: models.EntryLend, Amount: 2000, Counterparty: models.GuestRef("Bobby"),
	})
	require.NoError(t, err)

	// Without a link the guest keeps its own line.
	assert.Equal(t, models.Cents(2000), balanceAgainst(t, balanceSvc, alice, models.GuestRef("Bobby").Key()))
	assert.Equal(t, models.Cents(0), balanceAgainst(t, balanceSvc, alice, models.UserRef(bob).Key()))

	// An unconfirmed link changes nothing.
	_, err = model.UpsertContactLink(db, alice, "Bobby", bob, false)
	require.NoError(t, err)
	assert.Equal(t, models.Cents(2000), balanceAgainst(t, balanceSvc, alice, models.GuestRef("Bobby").Key()))

	// A confirmed link merges the guest into Bob's line.
	_, err = model.UpsertContactLink(db, alice, "Bobby", bob, true)
	require.NoError(t, err)
	assert.Equal(t, models.Cents(0), balanceAgainst(t, balanceSvc, alice, models.GuestRef("Bobby").Key()))
	assert.Equal(t, models.Cents(2000), balanceAgainst(t, balanceSvc, alice, models.UserRef(bob).Key()))
}

// Totals within one cent of zero are treated as settled and dropped.
func TestBalancesDropEpsilonResidue(t *testing.T) {
	db, _, confirmSvc, _, balanceSvc := newTestServices(t)
	alice := createTestUser(t, db, "alice")

	_, err := confirmSvc.CreateDebtEntry(alice, DebtInput{
		Kind: models.EntryLend, Amount: 1, Counterparty: models.GuestRef("Joe"),
	})
	require.NoError(t, err)

	balances, err := balanceSvc.ComputeBalances(alice)
	require.NoError(t, err)
	assert.Empty(t, balances)
}
