// Package syncclient keeps a viewer's local order list converged with the
// store by merging push events and periodic snapshots.
package syncclient

import (
	"sort"
	"sync"
	"time"

	"github.com/YelzhanWeb/orderflow/internal/domain"
)

// Input is anything that can be merged into a Board.
type Input interface {
	input()
}

// Snapshot is a full list read. AsOf was taken before the read.
type Snapshot struct {
	Orders []*domain.Order
	AsOf   time.Time
}

type StatusChanged struct {
	OrderID   string
	Status    domain.Status
	Timestamp time.Time
}

type Created struct {
	Order *domain.Order
}

type Deleted struct {
	OrderID   string
	Timestamp time.Time
}

// ActionResult is the order returned by the viewer's own status change.
type ActionResult struct {
	Order *domain.Order
}

func (Snapshot) input()      {}
func (StatusChanged) input() {}
func (Created) input()       {}
func (Deleted) input()       {}
func (ActionResult) input()  {}

// Board is the local order list. Every source goes through Apply, and for each
// order the copy with the greater UpdatedAt wins.
type Board struct {
	mu           sync.RWMutex
	orders       map[string]*domain.Order
	tombstones   map[string]time.Time
	asOf         time.Time
	needsRefresh bool
}

func NewBoard() *Board {
	return &Board{
		orders:     make(map[string]*domain.Order),
		tombstones: make(map[string]time.Time),
	}
}

// Apply merges in and reports whether the visible list changed.
func (b *Board) Apply(in Input) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch v := in.(type) {
	case Snapshot:
		return b.applySnapshot(v)
	case StatusChanged:
		return b.applyStatus(v)
	case Created:
		return b.upsert(v.Order)
	case ActionResult:
		return b.upsert(v.Order)
	case Deleted:
		return b.applyDeleted(v)
	}
	return false
}

func (b *Board) applySnapshot(s Snapshot) bool {
	if s.AsOf.Before(b.asOf) {
		return false
	}

	next := make(map[string]*domain.Order, len(s.Orders))
	for _, o := range s.Orders {
		if o == nil {
			continue
		}
		if deletedAt, ok := b.tombstones[o.ID]; ok && s.AsOf.Before(deletedAt) {
			continue
		}
		if local, ok := b.orders[o.ID]; ok && local.UpdatedAt.After(o.UpdatedAt) {
			next[o.ID] = local
			continue
		}
		next[o.ID] = o.Clone()
	}
	for id, local := range b.orders {
		if _, ok := next[id]; !ok && local.UpdatedAt.After(s.AsOf) {
			next[id] = local
		}
	}

	for id, deletedAt := range b.tombstones {
		if !deletedAt.After(s.AsOf) {
			delete(b.tombstones, id)
		}
	}

	changed := !sameOrders(b.orders, next)
	b.orders = next
	b.asOf = s.AsOf
	b.needsRefresh = false
	return changed
}

func (b *Board) applyStatus(e StatusChanged) bool {
	local, ok := b.orders[e.OrderID]
	if !ok {
		if _, deleted := b.tombstones[e.OrderID]; !deleted {
			b.needsRefresh = true
		}
		return false
	}
	if !e.Timestamp.After(local.UpdatedAt) {
		return false
	}

	updated := local.Clone()
	updated.Status = e.Status
	updated.UpdatedAt = e.Timestamp
	b.orders[e.OrderID] = updated
	return true
}

func (b *Board) upsert(o *domain.Order) bool {
	if o == nil {
		return false
	}
	if deletedAt, ok := b.tombstones[o.ID]; ok && !o.UpdatedAt.After(deletedAt) {
		return false
	}
	if local, ok := b.orders[o.ID]; ok && !o.UpdatedAt.After(local.UpdatedAt) {
		return false
	}
	b.orders[o.ID] = o.Clone()
	return true
}

func (b *Board) applyDeleted(e Deleted) bool {
	if prev, ok := b.tombstones[e.OrderID]; !ok || e.Timestamp.After(prev) {
		b.tombstones[e.OrderID] = e.Timestamp
	}
	local, ok := b.orders[e.OrderID]
	if !ok || local.UpdatedAt.After(e.Timestamp) {
		return false
	}
	delete(b.orders, e.OrderID)
	return true
}

// Orders returns copies of the current orders, oldest first.
func (b *Board) Orders() []*domain.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*domain.Order, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (b *Board) Get(id string) (*domain.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.orders[id]
	return o.Clone(), ok
}

// NeedsRefresh reports whether an event referred to an order the board has
// not seen yet.
func (b *Board) NeedsRefresh() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.needsRefresh
}

func sameOrders(a, b map[string]*domain.Order) bool {
	if len(a) != len(b) {
		return false
	}
	for id, x := range a {
		y, ok := b[id]
		if !ok || !x.UpdatedAt.Equal(y.UpdatedAt) || x.Status != y.Status {
			return false
		}
	}
	return true
}
