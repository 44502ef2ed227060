package economy

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/minekarta/auctionhouse/internal/auction/domain"
	"github.com/minekarta/auctionhouse/internal/shared/logger"
)

var log = logger.GetLogger()

// MemoryEconomy is an in-process economy provider. It honors the same
// transactional contract as an external provider: a failed transfer moves
// nothing. The system account is the escrow side and is allowed to pay out
// whatever it holds.
type MemoryEconomy struct {
	mu       sync.Mutex
	balances map[uuid.UUID]float64
}

func NewMemoryEconomy() *MemoryEconomy {
	return &MemoryEconomy{balances: make(map[uuid.UUID]float64)}
}

// Deposit seeds an account. Mostly useful for wiring and tests.
func (e *MemoryEconomy) Deposit(account uuid.UUID, amount float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balances[account] += amount
}

func (e *MemoryEconomy) Transfer(ctx context.Context, from, to uuid.UUID, amount float64, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive, got %.2f", amount)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if from != domain.SystemAccount && e.balances[from] < amount {
		return domain.ErrInsufficientFunds
	}
	e.balances[from] -= amount
	e.balances[to] += amount
	log.Debug("transfer completed",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Float64("amount", amount),
		zap.String("reason", reason),
	)
	return nil
}

func (e *MemoryEconomy) Balance(ctx context.Context, account uuid.UUID) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances[account], nil
}
