package postgres

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/YelzhanWeb/orderflow/internal/domain"
	"github.com/YelzhanWeb/orderflow/internal/interfaces"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRow scans a fixed list of values or returns err.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case **string:
			if r.values[i] == nil {
				*p = nil
			} else {
				s := r.values[i].(string)
				*p = &s
			}
		case *domain.Status:
			*p = domain.Status(r.values[i].(string))
		case *time.Time:
			*p = r.values[i].(time.Time)
		case *bool:
			*p = r.values[i].(bool)
		case *int:
			*p = r.values[i].(int)
		}
	}
	return nil
}

type fakeRows struct {
	rows []fakeRow
	pos  int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos <= len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error { return r.rows[r.pos-1].Scan(dest...) }
func (r *fakeRows) Err() error             { return nil }
func (r *fakeRows) Close()                 {}

type fakeTag int64

func (t fakeTag) RowsAffected() int64 { return int64(t) }

// fakeTx routes statements by their leading keyword.
type fakeTx struct {
	queryRows   map[string]fakeRow
	execs       []string
	committed   bool
	rolledBack  bool
	rowsByQuery map[string]*fakeRows
}

func (t *fakeTx) match(sql string, table map[string]fakeRow) (fakeRow, bool) {
	for prefix, row := range table {
		if strings.HasPrefix(strings.TrimSpace(sql), prefix) {
			return row, true
		}
	}
	return fakeRow{}, false
}

func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	for prefix, rows := range t.rowsByQuery {
		if strings.HasPrefix(strings.TrimSpace(sql), prefix) {
			return rows, nil
		}
	}
	return &fakeRows{}, nil
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) Row {
	row, ok := t.match(sql, t.queryRows)
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return row
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	t.execs = append(t.execs, strings.Fields(sql)[0]+" "+strings.Fields(sql)[2])
	return fakeTag(1), nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeDB struct {
	*fakeTx
}

func (db fakeDB) Begin(ctx context.Context) (Tx, error) { return db.fakeTx, nil }
func (db fakeDB) Close()                                {}

var stamp = time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)

func orderRow(status string) fakeRow {
	return fakeRow{values: []any{"o-1", "12", nil, nil, status, "9.50", "w-1", stamp, stamp.Add(time.Second)}}
}

func TestOrderRepository_CompareAndSwapStatus(t *testing.T) {
	tests := []struct {
		name      string
		queryRows map[string]fakeRow
		expected  error
		committed bool
	}{
		{
			name:      "swap_applied",
			queryRows: map[string]fakeRow{"UPDATE": orderRow("READY")},
			committed: true,
		},
		{
			name:      "stale_token",
			queryRows: map[string]fakeRow{"SELECT EXISTS": {values: []any{true}}},
			expected:  domain.ErrStaleWrite,
		},
		{
			name:      "missing_order",
			queryRows: map[string]fakeRow{"SELECT EXISTS": {values: []any{false}}},
			expected:  domain.ErrNotFound,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			tx := &fakeTx{queryRows: testCase.queryRows}
			repo := NewOrderRepository(fakeDB{tx})

			order, err := repo.CompareAndSwapStatus(context.Background(), interfaces.StatusChange{
				OrderID:           "o-1",
				ExpectedUpdatedAt: stamp,
				Status:            domain.StatusReady,
				UpdatedAt:         stamp.Add(time.Second),
				ChangedBy:         "b-1",
			})

			assert.Equal(t, testCase.committed, tx.committed)
			if testCase.expected != nil {
				assert.ErrorIs(t, err, testCase.expected)
				assert.True(t, tx.rolledBack)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.StatusReady, order.Status)
			assert.Equal(t, "12", order.Location.TableID)
			assert.Equal(t, "9.5", order.Total.String())
			assert.Equal(t, []string{"INSERT order_status_log"}, tx.execs)
		})
	}
}

func TestOrderRepository_Create(t *testing.T) {
	tx := &fakeTx{}
	repo := NewOrderRepository(fakeDB{tx})
	notes := "no ice"
	order := &domain.Order{
		ID:        "o-1",
		Location:  domain.LocationRef{ServicePointID: "bar-1"},
		Status:    domain.StatusPending,
		Items:     []domain.OrderItem{{ProductRef: "cola", Quantity: 1, Notes: &notes}, {ProductRef: "fries", Quantity: 2}},
		CreatedAt: stamp,
		UpdatedAt: stamp,
	}

	require.NoError(t, repo.Create(context.Background(), order, "pos"))

	assert.True(t, tx.committed)
	assert.Equal(t, []string{
		"INSERT orders",
		"INSERT order_items",
		"INSERT order_items",
		"INSERT order_status_log",
	}, tx.execs)
}

func TestOrderRepository_FindByIDNotFound(t *testing.T) {
	repo := NewOrderRepository(fakeDB{&fakeTx{}})

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrderRepository_ListAttachesItems(t *testing.T) {
	tx := &fakeTx{rowsByQuery: map[string]*fakeRows{
		"SELECT id": {rows: []fakeRow{orderRow("PENDING")}},
		"SELECT order_id, product_ref": {rows: []fakeRow{
			{values: []any{"o-1", "burger", 1, nil}},
		}},
	}}
	repo := NewOrderRepository(fakeDB{tx})

	orders, err := repo.List(context.Background(), interfaces.OrderFilter{Status: domain.StatusPending})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Len(t, orders[0].Items, 1)
	assert.Equal(t, "burger", orders[0].Items[0].ProductRef)
}
