package model

import (
	"database/sql"
	"time"

	"github.com/username/splitfolio/backend/src/models"
)

// GroupExpense is one shared expense with its per-member shares. Shares are
// produced by equal division with remainder distribution, so they always sum
// to the amount exactly.
type GroupExpense struct {
	ID          int64               `json:"id"`
	GroupID     int64               `json:"group_id"`
	GroupName   string              `json:"group_name,omitempty"`
	Payer       models.Counterparty `json:"payer"`
	PayerName   string              `json:"payer_name"`
	Amount      models.Cents        `json:"amount"`
	Description string              `json:"description"`
	Date        time.Time           `json:"date"`
	CreatedAt   time.Time           `json:"created_at"`
	Splits      []ExpenseSplit      `json:"splits"`
}

// ExpenseSplit is one member's share of a group expense.
type ExpenseSplit struct {
	ID     int64               `json:"id"`
	Member models.Counterparty `json:"member"`
	Name   string              `json:"name"`
	Share  models.Cents        `json:"share"`
}

// InsertGroupExpense persists the expense record and its splits.
func InsertGroupExpense(q Querier, e *GroupExpense) error {
	e.CreatedAt = time.Now()

	var payerUserID, payerGuestName any
	if e.Payer.Kind == models.CounterpartyUser {
		payerUserID = e.Payer.UserID
	} else {
		payerGuestName = e.Payer.Name
	}

	res, err := q.Exec(`
	INSERT INTO group_expenses (group_id, payer_user_id, payer_guest_name, amount_cents, description, expense_date, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.GroupID, payerUserID, payerGuestName, e.Amount, e.Description, e.Date, e.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id

	for i := range e.Splits {
		s := &e.Splits[i]
		var userID, guestName any
		if s.Member.Kind == models.CounterpartyUser {
			userID = s.Member.UserID
		} else {
			guestName = s.Member.Name
		}
		res, err := q.Exec(`
		INSERT INTO expense_splits (expense_id, position, user_id, guest_name, share_cents)
		VALUES (?, ?, ?, ?, ?)`,
			e.ID, i, userID, guestName, s.Share)
		if err != nil {
			return err
		}
		if s.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

func loadSplits(q Querier, expenseID int64) ([]ExpenseSplit, error) {
	rows, err := q.Query(`
	SELECT es.id, es.user_id, es.guest_name, es.share_cents, u.username
	FROM expense_splits es
	LEFT JOIN users u ON u.id = es.user_id
	WHERE es.expense_id = ?
	ORDER BY es.position`, expenseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	splits := make([]ExpenseSplit, 0)
	for rows.Next() {
		var (
			s         ExpenseSplit
			userID    sql.NullInt64
			guestName sql.NullString
			username  sql.NullString
		)
		if err := rows.Scan(&s.ID, &userID, &guestName, &s.Share, &username); err != nil {
			return nil, err
		}
		if userID.Valid {
			s.Member = models.UserRef(userID.Int64)
			s.Name = username.String
		} else {
			s.Member = models.GuestRef(guestName.String)
			s.Name = guestName.String
		}
		splits = append(splits, s)
	}
	return splits, rows.Err()
}

func scanExpenses(q Querier, rows *sql.Rows) ([]GroupExpense, error) {
	defer rows.Close()

	expenses := make([]GroupExpense, 0)
	for rows.Next() {
		var (
			e         GroupExpense
			payerID   sql.NullInt64
			guestName sql.NullString
			payerName sql.NullString
			groupName sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.GroupID, &payerID, &guestName, &e.Amount, &e.Description, &e.Date, &e.CreatedAt, &payerName, &groupName); err != nil {
			return nil, err
		}
		if payerID.Valid {
			e.Payer = models.UserRef(payerID.Int64)
			e.PayerName = payerName.String
		} else {
			e.Payer = models.GuestRef(guestName.String)
			e.PayerName = guestName.String
		}
		e.GroupName = groupName.String
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range expenses {
		splits, err := loadSplits(q, expenses[i].ID)
		if err != nil {
			return nil, err
		}
		expenses[i].Splits = splits
	}
	return expenses, nil
}

const expenseSelect = `
	SELECT ge.id, ge.group_id, ge.payer_user_id, ge.payer_guest_name, ge.amount_cents,
	       ge.description, ge.expense_date, ge.created_at, u.username, g.name
	FROM group_expenses ge
	LEFT JOIN users u ON u.id = ge.payer_user_id
	JOIN groups g ON g.id = ge.group_id`

// ListGroupExpenses returns a group's expenses, newest first, optionally
// bounded by an inclusive date range.
func ListGroupExpenses(q Querier, groupID int64, from, to *time.Time) ([]GroupExpense, error) {
	query := expenseSelect + ` WHERE ge.group_id = ?`
	args := []any{groupID}
	if from != nil {
		query += ` AND ge.expense_date >= ?`
		args = append(args, *from)
	}
	if to != nil {
		query += ` AND ge.expense_date <= ?`
		args = append(args, *to)
	}
	query += ` ORDER BY ge.expense_date DESC, ge.id DESC`

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	return scanExpenses(q, rows)
}

// ListExpensesInvolvingUser returns every expense where the user paid or
// appears in the splits, across all groups.
func ListExpensesInvolvingUser(q Querier, userID int64) ([]GroupExpense, error) {
	rows, err := q.Query(expenseSelect+`
	WHERE ge.payer_user_id = ?
	   OR ge.id IN (SELECT expense_id FROM expense_splits WHERE user_id = ?)
	ORDER BY ge.expense_date DESC, ge.id DESC`, userID, userID)
	if err != nil {
		return nil, err
	}
	return scanExpenses(q, rows)
}

// CountGroupExpenses reports how many expenses a group has recorded.
func CountGroupExpenses(q Querier, groupID int64) (int, error) {
	var n int
	err := q.QueryRow(`SELECT COUNT(*) FROM group_expenses WHERE group_id = ?`, groupID).Scan(&n)
	return n, err
}

// Settlement records a payment that offsets computed balances without
// altering any expense or split history.
type Settlement struct {
	ID        int64               `json:"id"`
	GroupID   int64               `json:"group_id"`
	From      models.Counterparty `json:"from"`
	To        models.Counterparty `json:"to"`
	Amount    models.Cents        `json:"amount"`
	Date      time.Time           `json:"date"`
	Confirmed bool                `json:"confirmed"`
	CreatedAt time.Time           `json:"created_at"`
}

func settlementParty(cp models.Counterparty) (userID, guestName any) {
	if cp.Kind == models.CounterpartyUser {
		return cp.UserID, nil
	}
	return nil, cp.Name
}

func InsertSettlement(q Querier, s *Settlement) error {
	s.CreatedAt = time.Now()
	fromID, fromGuest := settlementParty(s.From)
	toID, toGuest := settlementParty(s.To)

	res, err := q.Exec(`
	INSERT INTO settlements (group_id, from_user_id, from_guest_name, to_user_id, to_guest_name, amount_cents, settle_date, confirmed, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.GroupID, fromID, fromGuest, toID, toGuest, s.Amount, s.Date, s.Confirmed, s.CreatedAt)
	if err != nil {
		return err
	}
	s.ID, err = res.LastInsertId()
	return err
}

func scanSettlements(rows *sql.Rows) ([]Settlement, error) {
	defer rows.Close()

	settlements := make([]Settlement, 0)
	for rows.Next() {
		var (
			s         Settlement
			fromID    sql.NullInt64
			fromGuest sql.NullString
			toID      sql.NullInt64
			toGuest   sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.GroupID, &fromID, &fromGuest, &toID, &toGuest, &s.Amount, &s.Date, &s.Confirmed, &s.CreatedAt); err != nil {
			return nil, err
		}
		if fromID.Valid {
			s.From = models.UserRef(fromID.Int64)
		} else {
			s.From = models.GuestRef(fromGuest.String)
		}
		if toID.Valid {
			s.To = models.UserRef(toID.Int64)
		} else {
			s.To = models.GuestRef(toGuest.String)
		}
		settlements = append(settlements, s)
	}
	return settlements, rows.Err()
}

const settlementColumns = `id, group_id, from_user_id, from_guest_name, to_user_id, to_guest_name, amount_cents, settle_date, confirmed, created_at`

// ListSettlementsByGroup returns a group's confirmed settlements.
func ListSettlementsByGroup(q Querier, groupID int64) ([]Settlement, error) {
	rows, err := q.Query(`SELECT `+settlementColumns+` FROM settlements WHERE group_id = ? AND confirmed = TRUE ORDER BY settle_date DESC, id DESC`, groupID)
	if err != nil {
		return nil, err
	}
	return scanSettlements(rows)
}

// ListSettlementsInvolvingUser returns confirmed settlements the user paid or
// received, newest first.
func ListSettlementsInvolvingUser(q Querier, userID int64) ([]Settlement, error) {
	rows, err := q.Query(`
	SELECT `+settlementColumns+` FROM settlements
	WHERE (from_user_id = ? OR to_user_id = ?) AND confirmed = TRUE
	ORDER BY settle_date DESC, id DESC`, userID, userID)
	if err != nil {
		return nil, err
	}
	return scanSettlements(rows)
}
