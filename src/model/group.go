package model

import (
	"database/sql"
	"strings"
	"time"

	"github.com/username/splitfolio/backend/src/models"
)

type Group struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	CreatedBy int64         `json:"created_by"`
	CreatedAt time.Time     `json:"created_at"`
	Members   []GroupMember `json:"members"`
}

// GroupMember is one roster slot: a registered user or a guest name, in the
// order members were added.
type GroupMember struct {
	ID     int64               `json:"id"`
	Member models.Counterparty `json:"member"`
	Name   string              `json:"name"`
}

// HasUser reports whether the user id is on the roster.
func (g *Group) HasUser(userID int64) bool {
	for _, m := range g.Members {
		if m.Member.Kind == models.CounterpartyUser && m.Member.UserID == userID {
			return true
		}
	}
	return false
}

// FindMember locates a roster slot matching the counterparty reference.
func (g *Group) FindMember(cp models.Counterparty) *GroupMember {
	for i := range g.Members {
		m := &g.Members[i]
		switch cp.Kind {
		case models.CounterpartyUser:
			if m.Member.Kind == models.CounterpartyUser && m.Member.UserID == cp.UserID {
				return m
			}
		case models.CounterpartyGuest:
			if m.Member.Kind == models.CounterpartyGuest && m.Member.Name == cp.Name {
				return m
			}
		}
	}
	return nil
}

// CreateGroup inserts a group with its creator as the first roster member.
func CreateGroup(q Querier, name string, createdBy int64) (*Group, error) {
	now := time.Now()
	res, err := q.Exec(`INSERT INTO groups (name, created_by, created_at) VALUES (?, ?, ?)`, name, createdBy, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if _, err := q.Exec(`INSERT INTO group_members (group_id, position, user_id) VALUES (?, 0, ?)`, id, createdBy); err != nil {
		return nil, err
	}
	return GetGroupByID(q, id)
}

// GetGroupByID loads a group with its ordered roster. Registered members get
// their username as display name.
func GetGroupByID(q Querier, id int64) (*Group, error) {
	var g Group
	err := q.QueryRow(`SELECT id, name, created_by, created_at FROM groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &g.CreatedBy, &g.CreatedAt)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(`
	SELECT gm.id, gm.user_id, gm.guest_name, u.username
	FROM group_members gm
	LEFT JOIN users u ON u.id = gm.user_id
	WHERE gm.group_id = ?
	ORDER BY gm.position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m         GroupMember
			userID    sql.NullInt64
			guestName sql.NullString
			username  sql.NullString
		)
		if err := rows.Scan(&m.ID, &userID, &guestName, &username); err != nil {
			return nil, err
		}
		if userID.Valid {
			m.Member = models.UserRef(userID.Int64)
			m.Name = username.String
		} else {
			m.Member = models.GuestRef(guestName.String)
			m.Name = guestName.String
		}
		g.Members = append(g.Members, m)
	}
	return &g, rows.Err()
}

// ListGroupsByUser returns every group the user is a member of, newest first.
func ListGroupsByUser(q Querier, userID int64) ([]Group, error) {
	rows, err := q.Query(`
	SELECT DISTINCT g.id
	FROM groups g
	JOIN group_members gm ON gm.group_id = g.id
	WHERE gm.user_id = ?
	ORDER BY g.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	groups := make([]Group, 0, len(ids))
	for _, id := range ids {
		g, err := GetGroupByID(q, id)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, nil
}

// AddGroupMember appends a member to the roster.
func AddGroupMember(q Querier, groupID int64, cp models.Counterparty) error {
	var next int
	if err := q.QueryRow(`SELECT COALESCE(MAX(position), -1) + 1 FROM group_members WHERE group_id = ?`, groupID).Scan(&next); err != nil {
		return err
	}
	switch cp.Kind {
	case models.CounterpartyUser:
		_, err := q.Exec(`INSERT INTO group_members (group_id, position, user_id) VALUES (?, ?, ?)`, groupID, next, cp.UserID)
		return err
	default:
		_, err := q.Exec(`INSERT INTO group_members (group_id, position, guest_name) VALUES (?, ?, ?)`, groupID, next, cp.Name)
		return err
	}
}

// Contact is a dummy contact: a named peer without an account, owned by a
// registered user, usable as the other side of auto-confirmed debt pairs.
type Contact struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func CreateContact(q Querier, ownerID int64, name string) (*Contact, error) {
	now := time.Now()
	res, err := q.Exec(`INSERT INTO contacts (owner_id, name, created_at) VALUES (?, ?, ?)`, ownerID, name, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Contact{ID: id, OwnerID: ownerID, Name: name, CreatedAt: now}, nil
}

func GetContactByID(q Querier, id int64) (*Contact, error) {
	var c Contact
	err := q.QueryRow(`SELECT id, owner_id, name, created_at FROM contacts WHERE id = ?`, id).
		Scan(&c.ID, &c.OwnerID, &c.Name, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func ListContactsByOwner(q Querier, ownerID int64) ([]Contact, error) {
	rows, err := q.Query(`SELECT id, owner_id, name, created_at FROM contacts WHERE owner_id = ? ORDER BY name`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := make([]Contact, 0)
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func DeleteContact(q Querier, id int64) error {
	_, err := q.Exec(`DELETE FROM contacts WHERE id = ?`, id)
	return err
}

// ContactLink maps a free-text counterparty name to a registered account.
// Balance aggregation merges name-keyed debts into the linked account only
// for confirmed links; names never merge on string equality alone.
type ContactLink struct {
	ID           int64     `json:"id"`
	OwnerID      int64     `json:"owner_id"`
	DisplayName  string    `json:"display_name"`
	LinkedUserID int64     `json:"linked_user_id"`
	Confirmed    bool      `json:"confirmed"`
	CreatedAt    time.Time `json:"created_at"`
}

func UpsertContactLink(q Querier, ownerID int64, displayName string, linkedUserID int64, confirmed bool) (*ContactLink, error) {
	now := time.Now()
	_, err := q.Exec(`
	INSERT INTO contact_links (owner_id, display_name, linked_user_id, confirmed, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(owner_id, display_name) DO UPDATE SET linked_user_id = excluded.linked_user_id, confirmed = excluded.confirmed`,
		ownerID, displayName, linkedUserID, confirmed, now)
	if err != nil {
		return nil, err
	}
	var link ContactLink
	err = q.QueryRow(`
	SELECT id, owner_id, display_name, linked_user_id, confirmed, created_at
	FROM contact_links WHERE owner_id = ? AND display_name = ?`, ownerID, displayName).
		Scan(&link.ID, &link.OwnerID, &link.DisplayName, &link.LinkedUserID, &link.Confirmed, &link.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func DeleteContactLink(q Querier, ownerID, linkID int64) error {
	_, err := q.Exec(`DELETE FROM contact_links WHERE id = ? AND owner_id = ?`, linkID, ownerID)
	return err
}

// ConfirmedLinks returns the owner's confirmed name-to-account mappings,
// keyed by lowercased display name.
func ConfirmedLinks(q Querier, ownerID int64) (map[string]int64, error) {
	rows, err := q.Query(`SELECT display_name, linked_user_id FROM contact_links WHERE owner_id = ? AND confirmed = TRUE`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := make(map[string]int64)
	for rows.Next() {
		var (
			name   string
			userID int64
		)
		if err := rows.Scan(&name, &userID); err != nil {
			return nil, err
		}
		links[strings.ToLower(name)] = userID
	}
	return links, rows.Err()
}

// ListContactLinks returns all of the owner's links, confirmed or not.
func ListContactLinks(q Querier, ownerID int64) ([]ContactLink, error) {
	rows, err := q.Query(`
	SELECT id, owner_id, display_name, linked_user_id, confirmed, created_at
	FROM contact_links WHERE owner_id = ? ORDER BY display_name`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := make([]ContactLink, 0)
	for rows.Next() {
		var link ContactLink
		if err := rows.Scan(&link.ID, &link.OwnerID, &link.DisplayName, &link.LinkedUserID, &link.Confirmed, &link.CreatedAt); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}
