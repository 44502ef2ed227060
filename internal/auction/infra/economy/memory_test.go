package economy

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minekarta/auctionhouse/internal/auction/domain"
)

func TestTransferMovesFunds(t *testing.T) {
	e := NewMemoryEconomy()
	a, b := uuid.New(), uuid.New()
	e.Deposit(a, 100)

	require.NoError(t, e.Transfer(context.Background(), a, b, 40, "test"))

	balA, _ := e.Balance(context.Background(), a)
	balB, _ := e.Balance(context.Background(), b)
	assert.Equal(t, 60.0, balA)
	assert.Equal(t, 40.0, balB)
}

func TestTransferInsufficientFundsMovesNothing(t *testing.T) {
	e := NewMemoryEconomy()
	a, b := uuid.New(), uuid.New()
	e.Deposit(a, 10)

	err := e.Transfer(context.Background(), a, b, 40, "test")
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	balA, _ := e.Balance(context.Background(), a)
	balB, _ := e.Balance(context.Background(), b)
	assert.Equal(t, 10.0, balA)
	assert.Equal(t, 0.0, balB)
}

func TestSystemAccountMayOverdraw(t *testing.T) {
	e := NewMemoryEconomy()
	player := uuid.New()

	require.NoError(t, e.Transfer(context.Background(), domain.SystemAccount, player, 100, "payout"))

	sys, _ := e.Balance(context.Background(), domain.SystemAccount)
	assert.Equal(t, -100.0, sys)
}

func TestTransferRejectsNonPositiveAmounts(t *testing.T) {
	e := NewMemoryEconomy()
	assert.Error(t, e.Transfer(context.Background(), uuid.New(), uuid.New(), 0, "test"))
	assert.Error(t, e.Transfer(context.Background(), uuid.New(), uuid.New(), -5, "test"))
}

func TestTransferHonorsCancelledContext(t *testing.T) {
	e := NewMemoryEconomy()
	a := uuid.New()
	e.Deposit(a, 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Transfer(ctx, a, uuid.New(), 10, "test")
	require.ErrorIs(t, err, domain.ErrProviderUnavailable)

	bal, _ := e.Balance(context.Background(), a)
	assert.Equal(t, 100.0, bal)
}
