package services

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/username/splitfolio/backend/src/logger"
	"github.com/username/splitfolio/backend/src/model"
	"github.com/username/splitfolio/backend/src/models"
)

type balanceServiceImpl struct {
	db       *sql.DB
	entrySvc EntryService
}

func NewBalanceService(db *sql.DB, entrySvc EntryService) BalanceService {
	return &balanceServiceImpl{db: db, entrySvc: entrySvc}
}

// balanceAcc accumulates one counterparty's position across sources.
type balanceAcc struct {
	cp        models.Counterparty
	name      string
	total     models.Cents
	breakdown map[string]*models.BreakdownItem
	order     []string
}

func (a *balanceAcc) add(sourceID, sourceName string, amount models.Cents) {
	a.total += amount
	item, ok := a.breakdown[sourceID]
	if !ok {
		item = &models.BreakdownItem{SourceID: sourceID, SourceName: sourceName}
		a.breakdown[sourceID] = item
		a.order = append(a.order, sourceID)
	}
	item.Amount += amount
}

// ComputeBalances replays the user's full history on every call: group
// expenses they paid or shared, open personal debts against guests and
// contacts, and confirmed settlements. Nothing is stored; the returned
// figures are always consistent with the underlying records. Positive
// amounts mean the counterparty owes the user.
func (s *balanceServiceImpl) ComputeBalances(userID int64) ([]models.Balance, error) {
	links, err := model.ConfirmedLinks(s.db, userID)
	if err != nil {
		return nil, err
	}

	accounts := make(map[string]*balanceAcc)
	order := make([]string, 0)

	// resolve maps guest names with a confirmed contact link onto the
	// linked account, so a friend tracked by name before they registered
	// merges into one balance line.
	resolve := func(cp models.Counterparty, name string) (models.Counterparty, string) {
		if cp.Kind != models.CounterpartyUser {
			if linkedID, ok := links[strings.ToLower(cp.Name)]; ok {
				return models.UserRef(linkedID), cp.Name
			}
		}
		if name == "" {
			name = cp.Name
		}
		return cp, name
	}

	touch := func(cp models.Counterparty, name string) *balanceAcc {
		cp, name = resolve(cp, name)
		key := cp.Key()
		a, ok := accounts[key]
		if !ok {
			a = &balanceAcc{cp: cp, name: name, breakdown: make(map[string]*models.BreakdownItem)}
			accounts[key] = a
			order = append(order, key)
		}
		if a.name == "" {
			a.name = name
		}
		return a
	}

	expenses, err := model.ListExpensesInvolvingUser(s.db, userID)
	if err != nil {
		return nil, err
	}
	groupNames := make(map[int64]string)
	for _, exp := range expenses {
		groupNames[exp.GroupID] = exp.GroupName
		source := fmt.Sprintf("group:%d", exp.GroupID)
		userIsPayer := exp.Payer.Kind == models.CounterpartyUser && exp.Payer.UserID == userID
		for _, split := range exp.Splits {
			memberIsUser := split.Member.Kind == models.CounterpartyUser && split.Member.UserID == userID
			switch {
			case userIsPayer && !memberIsUser:
				touch(split.Member, split.Name).add(source, exp.GroupName, split.Share)
			case memberIsUser && !userIsPayer:
				touch(exp.Payer, exp.PayerName).add(source, exp.GroupName, -split.Share)
			}
		}
	}

	personal, err := model.ListOpenPersonalDebts(s.db, userID)
	if err != nil {
		return nil, err
	}
	for _, entry := range personal {
		amount := entry.Amount
		if entry.Kind == models.EntryBorrow {
			amount = -amount
		}
		touch(entry.Counterparty, entry.Counterparty.Name).add(models.PersonalSource, "Personal", amount)
	}

	settlements, err := model.ListSettlementsInvolvingUser(s.db, userID)
	if err != nil {
		return nil, err
	}
	for _, set := range settlements {
		source := fmt.Sprintf("group:%d", set.GroupID)
		name, ok := groupNames[set.GroupID]
		if !ok {
			// A settlement can reference a group whose expenses never
			// involved this user; look the name up so the bucket still
			// appears.
			if g, err := model.GetGroupByID(s.db, set.GroupID); err == nil {
				name = g.Name
			}
			groupNames[set.GroupID] = name
		}
		userPaid := set.From.Kind == models.CounterpartyUser && set.From.UserID == userID
		if userPaid {
			// The user paid down what they owed; their negative balance
			// against the receiver shrinks.
			touch(set.To, "").add(source, name, set.Amount)
		} else {
			touch(set.From, "").add(source, name, -set.Amount)
		}
	}

	balances := make([]models.Balance, 0, len(order))
	for _, key := range order {
		a := accounts[key]
		if a.total.Abs() <= models.Epsilon {
			continue
		}
		if a.name == "" && a.cp.Kind == models.CounterpartyUser {
			if u, err := model.GetUserByID(s.db, a.cp.UserID); err == nil {
				a.name = u.Username
			}
		}
		items := make([]models.BreakdownItem, 0, len(a.order))
		for _, sourceID := range a.order {
			item := a.breakdown[sourceID]
			if item.Amount.Abs() <= models.Epsilon {
				continue
			}
			items = append(items, *item)
		}
		balances = append(balances, models.Balance{
			Counterparty: a.cp,
			Name:         a.name,
			Total:        a.total,
			Breakdown:    items,
		})
	}
	sort.SliceStable(balances, func(i, j int) bool {
		return balances[i].Total.Abs() > balances[j].Total.Abs()
	})
	return balances, nil
}

// CreateSettlement records a confirmed payment from the acting user to a
// fellow group member. When the receiver is a registered user, open debts
// between the pair in the paid direction are marked settled in the same
// transaction; guest settlements only adjust computed balances.
func (s *balanceServiceImpl) CreateSettlement(fromUserID, groupID int64, to models.Counterparty, amount models.Cents, date time.Time) (*model.Settlement, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	group, err := model.GetGroupByID(s.db, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: group %d", ErrNotFound, groupID)
		}
		return nil, err
	}
	if !group.HasUser(fromUserID) {
		return nil, fmt.Errorf("%w: user %d is not a member of group %d", ErrUnauthorized, fromUserID, groupID)
	}
	receiver := group.FindMember(to)
	if receiver == nil {
		return nil, fmt.Errorf("%w: receiver must be a group member", ErrValidation)
	}
	if to.Kind == models.CounterpartyUser && to.UserID == fromUserID {
		return nil, fmt.Errorf("%w: cannot settle with yourself", ErrValidation)
	}
	if date.IsZero() {
		date = time.Now()
	}

	settlement := &model.Settlement{
		GroupID:   groupID,
		From:      models.UserRef(fromUserID),
		To:        receiver.Member,
		Amount:    amount,
		Date:      date,
		Confirmed: true,
	}
	err = withTx(s.db, func(tx *sql.Tx) error {
		if err := model.InsertSettlement(tx, settlement); err != nil {
			return err
		}
		if receiver.Member.Kind != models.CounterpartyUser {
			return nil
		}
		// Both halves of any payer/receiver debt pair close together.
		if err := model.SettleDirectedDebts(tx, fromUserID, receiver.Member.UserID, models.EntryBorrow); err != nil {
			return err
		}
		return model.SettleDirectedDebts(tx, receiver.Member.UserID, fromUserID, models.EntryLend)
	})
	if err != nil {
		return nil, err
	}

	s.entrySvc.InvalidateUserCache(fromUserID)
	if receiver.Member.Kind == models.CounterpartyUser {
		s.entrySvc.InvalidateUserCache(receiver.Member.UserID)
	}
	logger.L.Info("Settlement recorded", "groupID", groupID, "from", fromUserID, "amount", amount)
	return settlement, nil
}

func (s *balanceServiceImpl) SettlementHistory(userID int64) ([]model.Settlement, error) {
	return model.ListSettlementsInvolvingUser(s.db, userID)
}
