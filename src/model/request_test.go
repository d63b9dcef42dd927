package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/splitfolio/backend/src/models"
)

func TestSetRequestStatusIfPendingIsSingleShot(t *testing.T) {
	db := newTestDB(t)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	req := &ConfirmationRequest{
		RecipientID: bob,
		InitiatorID: alice,
		Kind:        models.RequestLend,
		Amount:      1500,
	}
	require.NoError(t, InsertRequest(db, req))

	ok, err := SetRequestStatusIfPending(db, req.ID, models.StatusConfirmed)
	require.NoError(t, err)
	assert.True(t, ok)

	// The first transition consumed the request; later attempts lose.
	ok, err = SetRequestStatusIfPending(db, req.ID, models.StatusRejected)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := GetRequestByID(db, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
}
