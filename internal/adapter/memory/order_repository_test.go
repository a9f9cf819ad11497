package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/YelzhanWeb/orderflow/internal/domain"
	"github.com/YelzhanWeb/orderflow/internal/interfaces"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(t *testing.T, location domain.LocationRef, staff *string, at time.Time) *domain.Order {
	t.Helper()
	order, err := domain.NewOrder(location, []domain.OrderItem{{ProductRef: "espresso", Quantity: 1}}, decimal.RequireFromString("2.80"), staff, at)
	require.NoError(t, err)
	return order
}

func TestOrderRepository_CompareAndSwapStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	created := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	order := newOrder(t, domain.LocationRef{TableID: "3"}, nil, created)
	require.NoError(t, repo.Create(ctx, order, "pos"))

	updated, err := repo.CompareAndSwapStatus(ctx, interfaces.StatusChange{
		OrderID:           order.ID,
		ExpectedUpdatedAt: order.UpdatedAt,
		Status:            domain.StatusConfirmed,
		UpdatedAt:         created.Add(time.Second),
		ClaimBy:           "w-1",
		ChangedBy:         "w-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, updated.Status)
	require.NotNil(t, updated.AssignedStaff)
	assert.Equal(t, "w-1", *updated.AssignedStaff)

	// the old token no longer matches
	_, err = repo.CompareAndSwapStatus(ctx, interfaces.StatusChange{
		OrderID:           order.ID,
		ExpectedUpdatedAt: order.UpdatedAt,
		Status:            domain.StatusCancelled,
		UpdatedAt:         created.Add(2 * time.Second),
		ClaimBy:           "w-2",
	})
	assert.ErrorIs(t, err, domain.ErrStaleWrite)

	// an existing claim is never overwritten
	again, err := repo.CompareAndSwapStatus(ctx, interfaces.StatusChange{
		OrderID:           order.ID,
		ExpectedUpdatedAt: updated.UpdatedAt,
		Status:            domain.StatusPreparing,
		UpdatedAt:         created.Add(3 * time.Second),
		ClaimBy:           "w-2",
	})
	require.NoError(t, err)
	assert.Equal(t, "w-1", *again.AssignedStaff)

	history, err := repo.GetStatusHistory(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, domain.StatusPending, history[0].Status)
	assert.Equal(t, "pos", history[0].ChangedBy)
	assert.Equal(t, domain.StatusPreparing, history[2].Status)

	_, err = repo.CompareAndSwapStatus(ctx, interfaces.StatusChange{OrderID: "missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrderRepository_ConcurrentSwapsOneWinner(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	order := newOrder(t, domain.LocationRef{TableID: "1"}, nil, time.Now())
	require.NoError(t, repo.Create(ctx, order, "pos"))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.CompareAndSwapStatus(ctx, interfaces.StatusChange{
				OrderID:           order.ID,
				ExpectedUpdatedAt: order.UpdatedAt,
				Status:            domain.StatusConfirmed,
				UpdatedAt:         order.UpdatedAt.Add(time.Duration(i+1) * time.Microsecond),
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestOrderRepository_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	staff := "w-1"

	first := newOrder(t, domain.LocationRef{TableID: "1"}, &staff, base)
	second := newOrder(t, domain.LocationRef{LocationID: "patio"}, nil, base.Add(time.Minute))
	require.NoError(t, repo.Create(ctx, second, "pos"))
	require.NoError(t, repo.Create(ctx, first, "pos"))
	assert.Error(t, repo.Create(ctx, first, "pos"))

	all, err := repo.List(ctx, interfaces.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)

	mine, err := repo.List(ctx, interfaces.OrderFilter{AssignedStaff: "w-1"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, first.ID, mine[0].ID)

	ready, err := repo.List(ctx, interfaces.OrderFilter{Status: domain.StatusReady})
	require.NoError(t, err)
	assert.Empty(t, ready)

	require.NoError(t, repo.Delete(ctx, first.ID))
	_, err = repo.FindByID(ctx, first.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, first.ID), domain.ErrNotFound)
}

func TestOrderRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository()
	order := newOrder(t, domain.LocationRef{TableID: "1"}, nil, time.Now())
	require.NoError(t, repo.Create(ctx, order, "pos"))

	found, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	found.Status = domain.StatusCancelled

	again, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, again.Status)
}
