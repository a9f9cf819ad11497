package syncclient

import (
	"testing"
	"time"

	"github.com/YelzhanWeb/orderflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 4, 10, 19, 0, 0, 0, time.UTC)

func at(seconds int) time.Time {
	return t0.Add(time.Duration(seconds) * time.Second)
}

func order(id string, status domain.Status, updated time.Time) *domain.Order {
	return &domain.Order{
		ID:        id,
		Location:  domain.LocationRef{TableID: "1"},
		Status:    status,
		CreatedAt: t0,
		UpdatedAt: updated,
	}
}

func statuses(b *Board) map[string]domain.Status {
	out := make(map[string]domain.Status)
	for _, o := range b.Orders() {
		out[o.ID] = o.Status
	}
	return out
}

func TestBoard_StatusChanged(t *testing.T) {
	b := NewBoard()
	b.Apply(Snapshot{Orders: []*domain.Order{order("a", domain.StatusPending, at(0))}, AsOf: at(1)})

	event := StatusChanged{OrderID: "a", Status: domain.StatusConfirmed, Timestamp: at(2)}
	assert.True(t, b.Apply(event))
	assert.False(t, b.Apply(event), "applying the same event twice is a no-op")

	assert.False(t, b.Apply(StatusChanged{OrderID: "a", Status: domain.StatusCancelled, Timestamp: at(1)}), "older events are discarded")
	assert.Equal(t, domain.StatusConfirmed, statuses(b)["a"])

	assert.False(t, b.Apply(StatusChanged{OrderID: "zzz", Status: domain.StatusReady, Timestamp: at(3)}))
	assert.True(t, b.NeedsRefresh(), "unknown orders wait for the next poll")
}

func TestBoard_SnapshotKeepsNewerLocalCopies(t *testing.T) {
	b := NewBoard()
	b.Apply(Snapshot{Orders: []*domain.Order{order("a", domain.StatusPending, at(0))}, AsOf: at(1)})
	b.Apply(StatusChanged{OrderID: "a", Status: domain.StatusConfirmed, Timestamp: at(5)})

	// a poll read before the push arrived must not roll the order back
	b.Apply(Snapshot{Orders: []*domain.Order{order("a", domain.StatusPending, at(0))}, AsOf: at(4)})
	assert.Equal(t, domain.StatusConfirmed, statuses(b)["a"])

	// a snapshot that already reflects the push changes nothing
	assert.False(t, b.Apply(Snapshot{Orders: []*domain.Order{order("a", domain.StatusConfirmed, at(5))}, AsOf: at(6)}))
}

func TestBoard_SnapshotDropsOrdersGoneFromStore(t *testing.T) {
	b := NewBoard()
	b.Apply(Snapshot{Orders: []*domain.Order{order("a", domain.StatusPending, at(0)), order("b", domain.StatusPending, at(0))}, AsOf: at(1)})

	// "c" was created after the snapshot read began and survives it
	b.Apply(Created{Order: order("c", domain.StatusPending, at(3))})

	assert.True(t, b.Apply(Snapshot{Orders: []*domain.Order{order("a", domain.StatusPending, at(0))}, AsOf: at(2)}))
	assert.Equal(t, map[string]domain.Status{"a": domain.StatusPending, "c": domain.StatusPending}, statuses(b))
}

func TestBoard_TombstonesBlockResurrection(t *testing.T) {
	b := NewBoard()
	b.Apply(Snapshot{Orders: []*domain.Order{order("a", domain.StatusReady, at(0))}, AsOf: at(1)})

	assert.True(t, b.Apply(Deleted{OrderID: "a", Timestamp: at(5)}))
	assert.Empty(t, b.Orders())

	// a snapshot read before the delete still lists the order
	b.Apply(Snapshot{Orders: []*domain.Order{order("a", domain.StatusReady, at(0))}, AsOf: at(4)})
	assert.Empty(t, b.Orders())

	// late events for a deleted order do not ask for a refresh
	b.Apply(StatusChanged{OrderID: "a", Status: domain.StatusDelivered, Timestamp: at(6)})
	assert.False(t, b.NeedsRefresh())
}

func TestBoard_StaleSnapshotIgnored(t *testing.T) {
	b := NewBoard()
	b.Apply(Snapshot{Orders: []*domain.Order{order("a", domain.StatusPending, at(0))}, AsOf: at(10)})
	assert.False(t, b.Apply(Snapshot{Orders: nil, AsOf: at(9)}))
	assert.Len(t, b.Orders(), 1)
}

func TestBoard_ActionResult(t *testing.T) {
	b := NewBoard()
	b.Apply(Snapshot{Orders: []*domain.Order{order("a", domain.StatusReady, at(0))}, AsOf: at(1)})

	delivered := order("a", domain.StatusDelivered, at(3))
	assert.True(t, b.Apply(ActionResult{Order: delivered}))

	// the push for the same change arrives afterwards
	assert.False(t, b.Apply(StatusChanged{OrderID: "a", Status: domain.StatusDelivered, Timestamp: at(3)}))

	got, ok := b.Get("a")
	require.True(t, ok)
	assert.Equal(t, domain.StatusDelivered, got.Status)
}

// Any interleaving of the same inputs converges once the latest snapshot lands.
func TestBoard_OrderIndependent(t *testing.T) {
	inputs := []Input{
		StatusChanged{OrderID: "a", Status: domain.StatusConfirmed, Timestamp: at(2)},
		StatusChanged{OrderID: "a", Status: domain.StatusPreparing, Timestamp: at(3)},
		Created{Order: order("b", domain.StatusPending, at(4))},
	}
	final := Snapshot{Orders: []*domain.Order{order("a", domain.StatusPreparing, at(3)), order("b", domain.StatusPending, at(4))}, AsOf: at(5)}

	permutations := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for _, perm := range permutations {
		b := NewBoard()
		b.Apply(Snapshot{Orders: []*domain.Order{order("a", domain.StatusPending, at(0))}, AsOf: at(1)})
		for _, i := range perm {
			b.Apply(inputs[i])
		}
		b.Apply(final)
		assert.Equal(t, map[string]domain.Status{"a": domain.StatusPreparing, "b": domain.StatusPending}, statuses(b), "%v", perm)
	}
}

func TestFilter(t *testing.T) {
	mine := "w-1"
	orders := []*domain.Order{
		{ID: "a", Status: domain.StatusReady, AssignedStaff: &mine},
		{ID: "b", Status: domain.StatusPending},
	}
	actor := domain.StaffIdentity{ID: "w-1", Role: domain.RoleWaiter}

	assert.Equal(t, Filter{Mode: FilterMine}, DefaultFilter(orders, actor))
	assert.Equal(t, Filter{Mode: FilterAll}, DefaultFilter(orders, domain.StaffIdentity{ID: "w-2"}))

	assert.Len(t, Filter{Mode: FilterAll}.Apply(orders, actor), 2)
	assert.Equal(t, "a", Filter{Mode: FilterMine}.Apply(orders, actor)[0].ID)

	f, err := ParseFilter("status pending")
	require.NoError(t, err)
	assert.Equal(t, "b", f.Apply(orders, actor)[0].ID)

	_, err = ParseFilter("weird")
	assert.Error(t, err)
}

func TestProfile_Joins(t *testing.T) {
	p := Profile{Actor: domain.StaffIdentity{ID: "b-1", Role: domain.RoleBartender}, ServicePointID: "bar-1"}
	assert.Equal(t, []Join{{Kind: JoinStaff, ID: "b-1"}, {Kind: JoinServicePoint, ID: "bar-1"}}, p.Joins())

	guest := Profile{Actor: domain.StaffIdentity{Role: domain.RoleDenied}, TableID: "4"}
	assert.Equal(t, []Join{{Kind: JoinTable, ID: "4"}}, guest.Joins())
}
