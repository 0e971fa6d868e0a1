package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectCompanyEmptyList(t *testing.T) {
	_, err := SelectCompany(nil, nil)
	assert.ErrorIs(t, err, ErrNoCompanyAvailable)
}

func TestSelectCompanyFreshConnectionPicksFirst(t *testing.T) {
	companies := []Company{
		{ID: 1543167, Name: "Studio Rossi"},
		{ID: 1550348, Name: "Bianchi SRL"},
	}

	picked, err := SelectCompany(companies, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1543167), picked.ID)
}

func TestSelectCompanyReconnectKeepsBoundCompany(t *testing.T) {
	existing := &Account{ExternalCompanyID: 1550348}
	companies := []Company{
		{ID: 1543167, Name: "Studio Rossi"},
		{ID: 1550348, Name: "Bianchi SRL"},
	}

	picked, err := SelectCompany(companies, existing)
	require.NoError(t, err)
	assert.Equal(t, int64(1550348), picked.ID)
	assert.Equal(t, "Bianchi SRL", picked.Name)
}

func TestSelectCompanyMismatchNamesBothSides(t *testing.T) {
	existing := &Account{ExternalCompanyID: 1550348}
	companies := []Company{{ID: 1543167, Name: "Studio Rossi"}}

	_, err := SelectCompany(companies, existing)
	require.Error(t, err)

	var mismatch *CompanyMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, int64(1550348), mismatch.Expected)
	assert.Equal(t, []int64{1543167}, mismatch.Available)
	assert.Contains(t, err.Error(), "1550348")
	assert.Contains(t, err.Error(), "1543167")
}

func TestCanTransition(t *testing.T) {
	account := &Account{Status: StatusRevoked}
	assert.False(t, account.CanTransition(StatusActive, false))
	assert.True(t, account.CanTransition(StatusActive, true))

	account.Status = StatusNeedsRefresh
	assert.True(t, account.CanTransition(StatusActive, false))

	account.Status = StatusActive
	assert.True(t, account.CanTransition(StatusDisconnected, false))
	assert.True(t, account.CanTransition(StatusNeedsRefresh, false))

	account.Status = StatusSuspended
	assert.False(t, account.CanTransition(StatusActive, false))
	assert.False(t, account.CanTransition(StatusActive, true))
}
