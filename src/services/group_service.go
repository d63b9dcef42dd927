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

type groupServiceImpl struct {
	db       *sql.DB
	entrySvc EntryService
	pairs    *pairLocker
}

func NewGroupService(db *sql.DB, entrySvc EntryService) GroupService {
	return &groupServiceImpl{db: db, entrySvc: entrySvc, pairs: newPairLocker()}
}

func (s *groupServiceImpl) CreateGroup(creatorID int64, name string) (*model.Group, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", ErrValidation)
	}
	var group *model.Group
	err := withTx(s.db, func(tx *sql.Tx) error {
		var err error
		group, err = model.CreateGroup(tx, name, creatorID)
		return err
	})
	return group, err
}

func (s *groupServiceImpl) ListGroups(userID int64) ([]model.Group, error) {
	return model.ListGroupsByUser(s.db, userID)
}

func (s *groupServiceImpl) loadGroup(groupID int64) (*model.Group, error) {
	group, err := model.GetGroupByID(s.db, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: group %d", ErrNotFound, groupID)
		}
		return nil, err
	}
	return group, nil
}

func (s *groupServiceImpl) GetGroup(userID, groupID int64) (*model.Group, error) {
	group, err := s.loadGroup(groupID)
	if err != nil {
		return nil, err
	}
	if !group.HasUser(userID) {
		return nil, fmt.Errorf("%w: user %d is not a member of group %d", ErrUnauthorized, userID, groupID)
	}
	return group, nil
}

// AddMember appends a registered user or guest to the roster. Only the group
// owner may add members, and only while the group has no recorded expenses;
// changing the roster afterwards would retroactively change every equal
// split.
func (s *groupServiceImpl) AddMember(actingUserID, groupID int64, member models.Counterparty) (*model.Group, error) {
	group, err := s.loadGroup(groupID)
	if err != nil {
		return nil, err
	}
	if group.CreatedBy != actingUserID {
		return nil, fmt.Errorf("%w: only the group owner can add members", ErrUnauthorized)
	}

	expenseCount, err := model.CountGroupExpenses(s.db, groupID)
	if err != nil {
		return nil, err
	}
	if expenseCount > 0 {
		return nil, fmt.Errorf("%w: cannot add members to a group with existing expenses", ErrValidation)
	}

	switch member.Kind {
	case models.CounterpartyUser:
		if _, err := model.GetUserByID(s.db, member.UserID); err != nil {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, member.UserID)
		}
		if group.HasUser(member.UserID) {
			return nil, fmt.Errorf("%w: user already in group", ErrValidation)
		}
	case models.CounterpartyGuest:
		if member.Name == "" {
			return nil, fmt.Errorf("%w: guest name is required", ErrValidation)
		}
		if group.FindMember(member) != nil {
			return nil, fmt.Errorf("%w: guest %q already in group", ErrValidation, member.Name)
		}
	default:
		return nil, fmt.Errorf("%w: group members are registered users or guests", ErrValidation)
	}

	if err := model.AddGroupMember(s.db, groupID, member); err != nil {
		return nil, err
	}
	return model.GetGroupByID(s.db, groupID)
}

// AddExpense splits a shared expense equally across the roster, records the
// per-member expense entries, and nets each payer/member debt against any
// existing reverse obligation. Everything happens inside one transaction;
// a failure part-way rolls the submission back entirely, because a partial
// application would leave the pairwise netting invariant violated.
func (s *groupServiceImpl) AddExpense(actingUserID, groupID int64, payer models.Counterparty, amount models.Cents, description string, date time.Time) (*model.GroupExpense, error) {
	group, err := s.loadGroup(groupID)
	if err != nil {
		return nil, err
	}
	if !group.HasUser(actingUserID) {
		return nil, fmt.Errorf("%w: user %d is not a member of group %d", ErrUnauthorized, actingUserID, groupID)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrValidation)
	}
	payerMember := group.FindMember(payer)
	if payerMember == nil {
		return nil, fmt.Errorf("%w: payer must be a group member", ErrValidation)
	}
	if date.IsZero() {
		date = time.Now()
	}

	shares, err := models.SplitEqually(amount, len(group.Members))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	expense := &model.GroupExpense{
		GroupID:     groupID,
		GroupName:   group.Name,
		Payer:       payerMember.Member,
		PayerName:   payerMember.Name,
		Amount:      amount,
		Description: description,
		Date:        date,
		Splits:      make([]model.ExpenseSplit, len(group.Members)),
	}
	for i, m := range group.Members {
		expense.Splits[i] = model.ExpenseSplit{Member: m.Member, Name: m.Name, Share: shares[i]}
	}

	// Serialize netting per payer/member pair so two concurrent expenses
	// cannot lose each other's amount adjustments.
	payerIsUser := payerMember.Member.Kind == models.CounterpartyUser
	var registered []int64
	for _, m := range group.Members {
		if m.Member.Kind == models.CounterpartyUser {
			registered = append(registered, m.Member.UserID)
		}
	}
	if payerIsUser {
		release := s.pairs.LockPairs(payerMember.Member.UserID, registered)
		defer release()
	}

	err = withTx(s.db, func(tx *sql.Tx) error {
		if err := model.InsertGroupExpense(tx, expense); err != nil {
			return err
		}

		for i, m := range group.Members {
			if m.Member.Kind != models.CounterpartyUser {
				continue
			}

			// Every registered member's personal ledger reflects their own
			// share, payer included.
			shareEntry := &model.Entry{
				UserID:      m.Member.UserID,
				Kind:        models.EntryExpense,
				Amount:      shares[i],
				Category:    models.CategoryGroupExpense,
				Description: fmt.Sprintf("%s (Group: %s)", description, group.Name),
				Date:        date,
				Status:      models.StatusConfirmed,
			}
			if err := model.InsertEntry(tx, shareEntry); err != nil {
				return err
			}

			if payerIsUser && m.Member.UserID != payerMember.Member.UserID {
				if err := s.netDebt(tx, payerMember.Member, m, shares[i], date); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, userID := range registered {
		s.entrySvc.InvalidateUserCache(userID)
	}
	logger.L.Info("Group expense recorded", "groupID", groupID, "amount", amount, "members", len(group.Members))
	return expense, nil
}

// netDebt maintains the running net-debt ledger for one ordered pair: at most
// one active directed debt exists per pair, with direction flipping and
// magnitude shrinking as new expenses occur. The member's share is first
// offset against any reverse debt (the payer owing the member); only the
// overshoot becomes or extends the forward debt.
func (s *groupServiceImpl) netDebt(tx *sql.Tx, payer models.Counterparty, member model.GroupMember, share models.Cents, date time.Time) error {
	payerID := payer.UserID
	memberID := member.Member.UserID

	reverseLend, err := model.FindOpenDebt(tx, memberID, payerID, models.EntryLend)
	if err != nil {
		return err
	}
	reverseBorrow, err := model.FindOpenDebt(tx, payerID, memberID, models.EntryBorrow)
	if err != nil {
		return err
	}
	if (reverseLend == nil) != (reverseBorrow == nil) {
		return fmt.Errorf("%w: one-sided reverse debt between users %d and %d", ErrConsistency, payerID, memberID)
	}

	remaining := share
	if reverseLend != nil {
		if reverseLend.Amount != reverseBorrow.Amount {
			return fmt.Errorf("%w: reverse debt halves %d/%d disagree on amount", ErrConsistency, reverseLend.ID, reverseBorrow.ID)
		}
		if reverseLend.Amount > remaining {
			// The standing reverse debt covers the new share; shrink it.
			if err := model.AddToEntryAmount(tx, reverseLend.ID, -remaining); err != nil {
				return err
			}
			if err := model.AddToEntryAmount(tx, reverseBorrow.ID, -remaining); err != nil {
				return err
			}
			remaining = 0
		} else {
			// The new share swallows the reverse debt; settle it and carry
			// the overshoot forward.
			remaining -= reverseLend.Amount
			if err := model.SettleEntryZero(tx, reverseLend.ID); err != nil {
				return err
			}
			if err := model.SettleEntryZero(tx, reverseBorrow.ID); err != nil {
				return err
			}
		}
	}

	if remaining <= models.Epsilon {
		return nil
	}

	lend, err := model.FindOpenDebt(tx, payerID, memberID, models.EntryLend)
	if err != nil {
		return err
	}
	if lend != nil {
		if err := model.AddToEntryAmount(tx, lend.ID, remaining); err != nil {
			return err
		}
	} else {
		lend = &model.Entry{
			UserID:       payerID,
			Kind:         models.EntryLend,
			Amount:       remaining,
			Description:  "Owed by " + member.Name,
			Date:         date,
			Counterparty: models.UserRef(memberID),
			Status:       models.StatusConfirmed,
		}
		if err := model.InsertEntry(tx, lend); err != nil {
			return err
		}
	}

	borrow, err := model.FindOpenDebt(tx, memberID, payerID, models.EntryBorrow)
	if err != nil {
		return err
	}
	if borrow != nil {
		if err := model.AddToEntryAmount(tx, borrow.ID, remaining); err != nil {
			return err
		}
	} else {
		borrow = &model.Entry{
			UserID:       memberID,
			Kind:         models.EntryBorrow,
			Amount:       remaining,
			Description:  "Owed to " + payer.Name,
			Date:         date,
			Counterparty: models.UserRef(payerID),
			Status:       models.StatusConfirmed,
		}
		if err := model.InsertEntry(tx, borrow); err != nil {
			return err
		}
	}

	if lend.LinkedEntryID == 0 || borrow.LinkedEntryID == 0 {
		return model.LinkEntries(tx, lend.ID, borrow.ID)
	}
	return nil
}

func (s *groupServiceImpl) ListExpenses(userID, groupID int64, from, to *time.Time) ([]model.GroupExpense, error) {
	if _, err := s.GetGroup(userID, groupID); err != nil {
		return nil, err
	}
	return model.ListGroupExpenses(s.db, groupID, from, to)
}

// Tally computes each member's net position inside one group from the raw
// expense and settlement history: payers are credited what they fronted,
// every member is debited their share, and confirmed settlements move the
// paid amount from debtor to creditor.
func (s *groupServiceImpl) Tally(userID, groupID int64) ([]models.TallyEntry, error) {
	group, err := s.GetGroup(userID, groupID)
	if err != nil {
		return nil, err
	}

	expenses, err := model.ListGroupExpenses(s.db, groupID, nil, nil)
	if err != nil {
		return nil, err
	}
	settlements, err := model.ListSettlementsByGroup(s.db, groupID)
	if err != nil {
		return nil, err
	}

	type acc struct {
		member models.Counterparty
		name   string
		amount models.Cents
	}
	accounts := make(map[string]*acc)
	order := make([]string, 0)

	touch := func(cp models.Counterparty, name string) *acc {
		key := cp.Key()
		a, ok := accounts[key]
		if !ok {
			a = &acc{member: cp, name: name}
			accounts[key] = a
			order = append(order, key)
		}
		return a
	}

	// Seed in roster order so output is stable.
	for _, m := range group.Members {
		touch(m.Member, m.Name)
	}

	for _, exp := range expenses {
		touch(exp.Payer, exp.PayerName).amount += exp.Amount
		for _, split := range exp.Splits {
			touch(split.Member, split.Name).amount -= split.Share
		}
	}
	for _, set := range settlements {
		touch(set.From, "").amount += set.Amount
		touch(set.To, "").amount -= set.Amount
	}

	tally := make([]models.TallyEntry, 0, len(order))
	for _, key := range order {
		a := accounts[key]
		tally = append(tally, models.TallyEntry{Member: a.member, Name: a.name, Amount: a.amount})
	}
	return tally, nil
}
