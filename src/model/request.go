package model

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/username/splitfolio/backend/src/models"
)

// ConfirmationRequest drives the approval handshake for debt entries and
// settlements. Requests of any state are purged after a fixed retention
// window by the background sweep.
type ConfirmationRequest struct {
	ID            int64              `json:"id"`
	PublicID      string             `json:"public_id"`
	RecipientID   int64              `json:"recipient_id"`
	InitiatorID   int64              `json:"initiator_id"`
	InitiatorName string             `json:"initiator_name,omitempty"`
	Kind          models.RequestKind `json:"kind"`
	EntryID       int64              `json:"entry_id,omitempty"`
	Amount        models.Cents       `json:"amount"`
	Description   string             `json:"description,omitempty"`
	Status        models.EntryStatus `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
}

// InsertRequest persists a request in pending state and assigns its ids.
func InsertRequest(q Querier, r *ConfirmationRequest) error {
	r.PublicID = uuid.New().String()
	r.Status = models.StatusPending
	r.CreatedAt = time.Now()

	res, err := q.Exec(`
	INSERT INTO confirmation_requests (public_id, recipient_id, initiator_id, request_kind, entry_id, amount_cents, description, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.PublicID, r.RecipientID, r.InitiatorID, r.Kind, nullID(r.EntryID),
		r.Amount, nullString(r.Description), r.Status, r.CreatedAt)
	if err != nil {
		return err
	}
	r.ID, err = res.LastInsertId()
	return err
}

func scanRequest(row rowScanner) (*ConfirmationRequest, error) {
	var (
		r           ConfirmationRequest
		entryID     sql.NullInt64
		description sql.NullString
		initiator   sql.NullString
	)
	err := row.Scan(&r.ID, &r.PublicID, &r.RecipientID, &r.InitiatorID, &r.Kind,
		&entryID, &r.Amount, &description, &r.Status, &r.CreatedAt, &initiator)
	if err != nil {
		return nil, err
	}
	r.EntryID = entryID.Int64
	r.Description = description.String
	r.InitiatorName = initiator.String
	return &r, nil
}

const requestSelect = `
	SELECT cr.id, cr.public_id, cr.recipient_id, cr.initiator_id, cr.request_kind,
	       cr.entry_id, cr.amount_cents, cr.description, cr.status, cr.created_at, u.username
	FROM confirmation_requests cr
	LEFT JOIN users u ON u.id = cr.initiator_id`

// GetRequestByID returns the request or sql.ErrNoRows.
func GetRequestByID(q Querier, id int64) (*ConfirmationRequest, error) {
	return scanRequest(q.QueryRow(requestSelect+` WHERE cr.id = ?`, id))
}

// ListPendingRequests returns the recipient's pending requests, newest first.
func ListPendingRequests(q Querier, recipientID int64) ([]ConfirmationRequest, error) {
	rows, err := q.Query(requestSelect+`
	WHERE cr.recipient_id = ? AND cr.status = ?
	ORDER BY cr.created_at DESC, cr.id DESC`, recipientID, models.StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := make([]ConfirmationRequest, 0)
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *r)
	}
	return requests, rows.Err()
}

// SetRequestStatus records the terminal outcome of a request.
func SetRequestStatus(q Querier, id int64, status models.EntryStatus) error {
	_, err := q.Exec(`UPDATE confirmation_requests SET status = ? WHERE id = ?`, status, id)
	return err
}

// SetRequestStatusIfPending moves a pending request to the given terminal
// status. Returns false when the request was already acted on, making the
// transition itself the only gate against double handling.
func SetRequestStatusIfPending(q Querier, id int64, status models.EntryStatus) (bool, error) {
	res, err := q.Exec(`UPDATE confirmation_requests SET status = ? WHERE id = ? AND status = ?`,
		status, id, models.StatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteRequestsBefore removes every request created before the cutoff,
// regardless of state. Returns the number of purged rows.
func DeleteRequestsBefore(q Querier, cutoff time.Time) (int64, error) {
	res, err := q.Exec(`DELETE FROM confirmation_requests WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
