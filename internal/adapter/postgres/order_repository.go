package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/YelzhanWeb/orderflow/internal/domain"
	"github.com/YelzhanWeb/orderflow/internal/interfaces"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, table_id, service_point_id, location_id, status, total::text,
       assigned_staff, created_at, updated_at`

type orderRepository struct {
	db DB
}

func NewOrderRepository(db DB) interfaces.OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order, createdBy string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO orders (id, table_id, service_point_id, location_id, status, total,
		                    assigned_staff, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9)
	`
	_, err = tx.Exec(ctx, query,
		order.ID, nullable(order.Location.TableID), nullable(order.Location.ServicePointID),
		nullable(order.Location.LocationID), order.Status, order.Total.String(),
		order.AssignedStaff, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i, item := range order.Items {
		itemQuery := `
			INSERT INTO order_items (order_id, position, product_ref, quantity, notes)
			VALUES ($1, $2, $3, $4, $5)
		`
		if _, err := tx.Exec(ctx, itemQuery, order.ID, i, item.ProductRef, item.Quantity, item.Notes); err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := logStatus(ctx, tx, order.ID, order.Status, createdBy, order.CreatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *orderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	items, err := loadItems(ctx, r.db, []string{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	return order, nil
}

func (r *orderRepository) List(ctx context.Context, filter interfaces.OrderFilter) ([]*domain.Order, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.AssignedStaff != "" {
		args = append(args, filter.AssignedStaff)
		conditions = append(conditions, fmt.Sprintf("assigned_staff = $%d", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var (
		orders []*domain.Order
		ids    []string
	)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	if len(ids) == 0 {
		return orders, nil
	}
	items, err := loadItems(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		o.Items = items[o.ID]
	}
	return orders, nil
}

// CompareAndSwapStatus writes the new status only while updated_at still holds
// the value the caller read. The status log row commits in the same transaction.
func (r *orderRepository) CompareAndSwapStatus(ctx context.Context, change interfaces.StatusChange) (*domain.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE orders
		SET status = $1,
		    updated_at = $2,
		    assigned_staff = COALESCE(assigned_staff, NULLIF($3, ''))
		WHERE id = $4 AND updated_at = $5
		RETURNING ` + orderColumns

	order, err := scanOrder(tx.QueryRow(ctx, query,
		change.Status, change.UpdatedAt, change.ClaimBy, change.OrderID, change.ExpectedUpdatedAt,
	))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to update order status: %w", err)
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, change.OrderID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check order: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("order %s: %w", change.OrderID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("order %s: %w", change.OrderID, domain.ErrStaleWrite)
	}

	if err := logStatus(ctx, tx, order.ID, order.Status, change.ChangedBy, order.UpdatedAt); err != nil {
		return nil, err
	}

	items, err := loadItems(ctx, tx, []string{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit status change: %w", err)
	}
	return order, nil
}

func (r *orderRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *orderRepository) GetStatusHistory(ctx context.Context, orderID string) ([]*domain.StatusLog, error) {
	query := `
		SELECT id, order_id, status, changed_by, changed_at
		FROM order_status_log
		WHERE order_id = $1
		ORDER BY changed_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query status history: %w", err)
	}
	defer rows.Close()

	var logs []*domain.StatusLog
	for rows.Next() {
		var log domain.StatusLog
		if err := rows.Scan(&log.ID, &log.OrderID, &log.Status, &log.ChangedBy, &log.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status log: %w", err)
		}
		logs = append(logs, &log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query status history: %w", err)
	}

	if len(logs) == 0 {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	return logs, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (CommandTag, error)
}

func logStatus(ctx context.Context, tx execer, orderID string, status domain.Status, changedBy string, at time.Time) error {
	query := `
		INSERT INTO order_status_log (order_id, status, changed_by, changed_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.Exec(ctx, query, orderID, status, changedBy, at); err != nil {
		return fmt.Errorf("failed to log status: %w", err)
	}
	return nil
}

func loadItems(ctx context.Context, q querier, orderIDs []string) (map[string][]domain.OrderItem, error) {
	query := `
		SELECT order_id, product_ref, quantity, notes
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`
	rows, err := q.Query(ctx, query, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	items := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			item    domain.OrderItem
		)
		if err := rows.Scan(&orderID, &item.ProductRef, &item.Quantity, &item.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items[orderID] = append(items[orderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*domain.Order, error) {
	var (
		order                        domain.Order
		tableID, servicePoint, locID *string
		total                        string
	)
	err := row.Scan(
		&order.ID, &tableID, &servicePoint, &locID, &order.Status, &total,
		&order.AssignedStaff, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.Location = domain.LocationRef{
		TableID:        deref(tableID),
		ServicePointID: deref(servicePoint),
		LocationID:     deref(locID),
	}
	order.Total, err = decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("invalid total %q: %w", total, err)
	}
	order.CreatedAt = domain.Timestamp(order.CreatedAt)
	order.UpdatedAt = domain.Timestamp(order.UpdatedAt)
	return &order, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
