package model

import (
	"database/sql"
	"time"

	"github.com/username/splitfolio/backend/src/models"
)

// Querier is satisfied by *sql.DB and *sql.Tx. Store functions take it so
// multi-record mutations compose into a single transaction.
type Querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Entry is a single-owner ledger record: income, expense, investment, or one
// side of a lend/borrow obligation. Debt entries carry a counterparty and,
// once confirmed between two accounts, a back-reference to the reciprocal
// entry owned by the other side.
type Entry struct {
	ID               int64                   `json:"id"`
	UserID           int64                   `json:"user_id"`
	Kind             models.EntryKind        `json:"kind"`
	InvestmentKind   models.InvestmentKind   `json:"investment_kind,omitempty"`
	Amount           models.Cents            `json:"amount"`
	Category         string                  `json:"category,omitempty"`
	Description      string                  `json:"description,omitempty"`
	Date             time.Time               `json:"date"`
	Counterparty     models.Counterparty     `json:"counterparty,omitzero"`
	Status           models.EntryStatus      `json:"status"`
	LinkedEntryID    int64                   `json:"linked_entry_id,omitempty"`
	IsSettled        bool                    `json:"is_settled"`
	SettlementStatus models.SettlementStatus `json:"settlement_status"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

const entryColumns = `id, user_id, kind, investment_kind, amount_cents, category, description, entry_date,
	cp_kind, cp_user_id, cp_contact_id, cp_name, status, linked_entry_id, is_settled, settlement_status,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e           Entry
		invKind     sql.NullString
		category    sql.NullString
		description sql.NullString
		cpKind      sql.NullString
		cpUserID    sql.NullInt64
		cpContactID sql.NullInt64
		cpName      sql.NullString
		linkedID    sql.NullInt64
	)
	err := row.Scan(
		&e.ID, &e.UserID, &e.Kind, &invKind, &e.Amount, &category, &description, &e.Date,
		&cpKind, &cpUserID, &cpContactID, &cpName, &e.Status, &linkedID, &e.IsSettled, &e.SettlementStatus,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.InvestmentKind = models.InvestmentKind(invKind.String)
	e.Category = category.String
	e.Description = description.String
	e.LinkedEntryID = linkedID.Int64
	if cpKind.Valid {
		e.Counterparty = models.Counterparty{
			Kind:      models.CounterpartyKind(cpKind.String),
			UserID:    cpUserID.Int64,
			ContactID: cpContactID.Int64,
			Name:      cpName.String,
		}
	}
	return &e, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// InsertEntry persists an entry and fills in its generated id.
func InsertEntry(q Querier, e *Entry) error {
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.SettlementStatus == "" {
		e.SettlementStatus = models.SettlementNone
	}

	res, err := q.Exec(`
	INSERT INTO ledger_entries
		(user_id, kind, investment_kind, amount_cents, category, description, entry_date,
		 cp_kind, cp_user_id, cp_contact_id, cp_name, status, linked_entry_id, is_settled, settlement_status,
		 created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.Kind, nullString(string(e.InvestmentKind)), e.Amount,
		nullString(e.Category), nullString(e.Description), e.Date,
		nullString(string(e.Counterparty.Kind)), nullID(e.Counterparty.UserID),
		nullID(e.Counterparty.ContactID), nullString(e.Counterparty.Name),
		e.Status, nullID(e.LinkedEntryID), e.IsSettled, e.SettlementStatus,
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// GetEntryByID returns the entry or sql.ErrNoRows.
func GetEntryByID(q Querier, id int64) (*Entry, error) {
	row := q.QueryRow(`SELECT `+entryColumns+` FROM ledger_entries WHERE id = ?`, id)
	return scanEntry(row)
}

// ListEntriesByUser returns all entries owned by a user, newest first,
// optionally bounded by an inclusive date range.
func ListEntriesByUser(q Querier, userID int64, from, to *time.Time) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE user_id = ?`
	args := []any{userID}
	if from != nil {
		query += ` AND entry_date >= ?`
		args = append(args, *from)
	}
	if to != nil {
		query += ` AND entry_date <= ?`
		args = append(args, *to)
	}
	query += ` ORDER BY entry_date DESC, id DESC`

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// DeleteEntry removes an entry unconditionally. Deletion does not cascade to
// the linked entry; the other half stays as the counterparty's record.
func DeleteEntry(q Querier, id int64) error {
	// Clear dangling back-references first so the linked half survives alone.
	if _, err := q.Exec(`UPDATE ledger_entries SET linked_entry_id = NULL WHERE linked_entry_id = ?`, id); err != nil {
		return err
	}
	_, err := q.Exec(`DELETE FROM ledger_entries WHERE id = ?`, id)
	return err
}

// SetEntryStatus moves a debt entry through its confirmation lifecycle.
func SetEntryStatus(q Querier, id int64, status models.EntryStatus) error {
	_, err := q.Exec(`UPDATE ledger_entries SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now(), id)
	return err
}

// SetSettlementStatus updates only the settlement marker.
func SetSettlementStatus(q Querier, id int64, status models.SettlementStatus) error {
	_, err := q.Exec(`UPDATE ledger_entries SET settlement_status = ?, updated_at = ? WHERE id = ?`, status, time.Now(), id)
	return err
}

// MarkEntrySettled flags a confirmed debt as paid off without touching its
// amount, keeping the entry as the audit record of the original obligation.
func MarkEntrySettled(q Querier, id int64) error {
	_, err := q.Exec(`
	UPDATE ledger_entries SET is_settled = TRUE, settlement_status = ?, updated_at = ? WHERE id = ?`,
		models.SettlementConfirmed, time.Now(), id)
	return err
}

// SettleEntryZero drives a netted-out debt to zero and marks it settled.
func SettleEntryZero(q Querier, id int64) error {
	_, err := q.Exec(`
	UPDATE ledger_entries
	SET amount_cents = 0, is_settled = TRUE, settlement_status = ?, updated_at = ?
	WHERE id = ?`,
		models.SettlementConfirmed, time.Now(), id)
	return err
}

// AddToEntryAmount adjusts an open debt by delta minor units.
func AddToEntryAmount(q Querier, id int64, delta models.Cents) error {
	_, err := q.Exec(`UPDATE ledger_entries SET amount_cents = amount_cents + ?, updated_at = ? WHERE id = ?`,
		int64(delta), time.Now(), id)
	return err
}

// LinkEntries sets the reciprocal back-references between the two halves of
// one obligation.
func LinkEntries(q Querier, aID, bID int64) error {
	if _, err := q.Exec(`UPDATE ledger_entries SET linked_entry_id = ?, updated_at = ? WHERE id = ?`, bID, time.Now(), aID); err != nil {
		return err
	}
	_, err := q.Exec(`UPDATE ledger_entries SET linked_entry_id = ?, updated_at = ? WHERE id = ?`, aID, time.Now(), bID)
	return err
}

// FindOpenDebt returns the single active directed debt of the given kind from
// owner towards the counterparty account, or nil when none exists. Only
// confirmed, unsettled entries qualify; pending and rejected entries never
// participate in netting or balances.
func FindOpenDebt(q Querier, ownerID, cpUserID int64, kind models.EntryKind) (*Entry, error) {
	row := q.QueryRow(`
	SELECT `+entryColumns+` FROM ledger_entries
	WHERE user_id = ? AND cp_kind = ? AND cp_user_id = ? AND kind = ?
	  AND status = ? AND is_settled = FALSE
	ORDER BY id LIMIT 1`,
		ownerID, models.CounterpartyUser, cpUserID, kind, models.StatusConfirmed)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// SettleDirectedDebts marks every open debt of the given kind from owner to
// the counterparty account as settled. Used when a direct settlement payment
// between two accounts is recorded.
func SettleDirectedDebts(q Querier, ownerID, cpUserID int64, kind models.EntryKind) error {
	_, err := q.Exec(`
	UPDATE ledger_entries
	SET is_settled = TRUE, settlement_status = ?, updated_at = ?
	WHERE user_id = ? AND cp_kind = ? AND cp_user_id = ? AND kind = ?
	  AND status = ? AND is_settled = FALSE`,
		models.SettlementConfirmed, time.Now(),
		ownerID, models.CounterpartyUser, cpUserID, kind, models.StatusConfirmed)
	return err
}

// ListOpenPersonalDebts returns the user's confirmed, unsettled lend/borrow
// entries against guests and dummy contacts. These feed the personal bucket
// of the balance aggregation.
func ListOpenPersonalDebts(q Querier, userID int64) ([]Entry, error) {
	rows, err := q.Query(`
	SELECT `+entryColumns+` FROM ledger_entries
	WHERE user_id = ? AND kind IN (?, ?) AND cp_kind IN (?, ?)
	  AND status = ? AND is_settled = FALSE
	ORDER BY entry_date DESC, id DESC`,
		userID, models.EntryLend, models.EntryBorrow,
		models.CounterpartyGuest, models.CounterpartyContact,
		models.StatusConfirmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// SumEntriesByKind totals confirmed entries of one kind, optionally narrowed
// to an investment subtype.
func SumEntriesByKind(q Querier, userID int64, kind models.EntryKind, invKind models.InvestmentKind) (models.Cents, error) {
	query := `SELECT COALESCE(SUM(amount_cents), 0) FROM ledger_entries WHERE user_id = ? AND kind = ? AND status = ?`
	args := []any{userID, kind, models.StatusConfirmed}
	if invKind != "" {
		query += ` AND investment_kind = ?`
		args = append(args, invKind)
	}
	var total int64
	if err := q.QueryRow(query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return models.Cents(total), nil
}
