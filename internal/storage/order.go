package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/linemk/farmsync/internal/domain/models"
	"github.com/linemk/farmsync/internal/lib/listquery"
)

var ErrOrderNotFound = errors.New("order not found")

// OrderScope ограничивает список заказов покупателем или фермером
type OrderScope struct {
	BuyerID  int64
	FarmerID int64
}

// OrderStorage описывает методы для работы с заказами.
type OrderStorage interface {
	// CreateOrderTx сохраняет заказ, его позиции и начальную историю статусов.
	CreateOrderTx(ctx context.Context, tx *sql.Tx, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	// LockOrderByIDTx читает заказ с блокировкой строки до конца транзакции.
	LockOrderByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error)
	// UpdateOrderStatusTx меняет статус и флаги заказа и дописывает запись в историю.
	UpdateOrderStatusTx(ctx context.Context, tx *sql.Tx, order *models.Order, update models.StatusUpdate) error
	// MarkReviewedTx выставляет reviewed только при переходе false -> true.
	MarkReviewedTx(ctx context.Context, tx *sql.Tx, id int64) error
	ListOrders(ctx context.Context, scope OrderScope, q listquery.Query) ([]*models.Order, int, error)
	// ListFarmerOrdersBetween - неотменённые заказы с позициями фермера за период [from, to].
	ListFarmerOrdersBetween(ctx context.Context, farmerID int64, from, to time.Time) ([]*models.Order, error)
	CountFarmerOrdersByStatus(ctx context.Context, farmerID int64) (map[models.OrderStatus]int, error)
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт новый репозиторий заказов.
func NewOrderRepository(db *sql.DB) OrderStorage {
	return &orderRepository{db: db}
}

// querier общий интерфейс *sql.DB и *sql.Tx для чтения
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const orderColumns = `o.id, o.buyer_id, COALESCE(u.role, ''), o.shipping_street, o.shipping_city, o.shipping_state,
	o.shipping_postal_code, o.shipping_country, o.payment_method, o.total_price, o.status, o.is_paid, o.paid_at,
	o.is_delivered, o.delivered_at, o.reviewed, o.created_at`

const orderFrom = " FROM orders o LEFT JOIN users u ON u.id = o.buyer_id"

const farmerItemExists = "EXISTS (SELECT 1 FROM order_items fi WHERE fi.order_id = o.id AND fi.farmer_id = ?)"

var orderFields = columnSet{
	"id":            {expr: "o.id", sqlType: "bigint"},
	"buyer":         {expr: "o.buyer_id", sqlType: "bigint"},
	"status":        {expr: "o.status", sqlType: "text"},
	"paymentMethod": {expr: "o.payment_method", sqlType: "text"},
	"totalPrice":    {expr: "o.total_price", sqlType: "numeric"},
	"isPaid":        {expr: "o.is_paid", sqlType: "boolean"},
	"isDelivered":   {expr: "o.is_delivered", sqlType: "boolean"},
	"reviewed":      {expr: "o.reviewed", sqlType: "boolean"},
	"createdAt":     {expr: "o.created_at", sqlType: "timestamptz"},
}

func scanOrder(row interface{ Scan(...any) error }) (*models.Order, error) {
	o := &models.Order{}
	a := &o.ShippingAddress
	err := row.Scan(&o.ID, &o.BuyerID, &o.BuyerRole, &a.Street, &a.City, &a.State, &a.PostalCode, &a.Country,
		&o.PaymentMethod, &o.TotalPrice, &o.Status, &o.IsPaid, &o.PaidAt, &o.IsDelivered, &o.DeliveredAt,
		&o.Reviewed, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return o, nil
}

func (r *orderRepository) CreateOrderTx(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	a := order.ShippingAddress
	query := `INSERT INTO orders (buyer_id, shipping_street, shipping_city, shipping_state, shipping_postal_code,
	          shipping_country, payment_method, total_price, status)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, created_at`
	err := tx.QueryRowContext(ctx, query,
		order.BuyerID, a.Street, a.City, a.State, a.PostalCode, a.Country,
		order.PaymentMethod, order.TotalPrice, order.Status,
	).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		err := tx.QueryRowContext(ctx,
			`INSERT INTO order_items (order_id, crop_id, farmer_id, quantity, price) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			order.ID, item.CropID, item.FarmerID, item.Quantity, item.Price,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	for _, update := range order.StatusUpdates {
		if err := insertStatusUpdate(ctx, tx, order.ID, update); err != nil {
			return err
		}
	}
	return nil
}

func insertStatusUpdate(ctx context.Context, tx *sql.Tx, orderID int64, update models.StatusUpdate) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO order_status_updates (order_id, status, comment, updated_at) VALUES ($1, $2, $3, $4)`,
		orderID, update.Status, update.Comment, update.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append status update: %w", err)
	}
	return nil
}

func (r *orderRepository) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return getOrder(ctx, r.db, "SELECT "+orderColumns+orderFrom+" WHERE o.id = $1", id)
}

func (r *orderRepository) LockOrderByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	return getOrder(ctx, tx, "SELECT "+orderColumns+orderFrom+" WHERE o.id = $1 FOR UPDATE OF o", id)
}

func getOrder(ctx context.Context, q querier, query string, id int64) (*models.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := loadDetails(ctx, q, []*models.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) UpdateOrderStatusTx(ctx context.Context, tx *sql.Tx, order *models.Order, update models.StatusUpdate) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $1, is_paid = $2, paid_at = $3, is_delivered = $4, delivered_at = $5 WHERE id = $6`,
		order.Status, order.IsPaid, order.PaidAt, order.IsDelivered, order.DeliveredAt, order.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if err := expectAffected(res, ErrOrderNotFound); err != nil {
		return err
	}
	return insertStatusUpdate(ctx, tx, order.ID, update)
}

func (r *orderRepository) MarkReviewedTx(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, err := tx.ExecContext(ctx, "UPDATE orders SET reviewed = TRUE WHERE id = $1 AND reviewed = FALSE", id); err != nil {
		return fmt.Errorf("failed to mark order reviewed: %w", err)
	}
	return nil
}

func (r *orderRepository) ListOrders(ctx context.Context, scope OrderScope, q listquery.Query) ([]*models.Order, int, error) {
	var where whereBuilder
	if scope.BuyerID != 0 {
		where.add("o.buyer_id = ?", scope.BuyerID)
	}
	if scope.FarmerID != 0 {
		where.add(farmerItemExists, scope.FarmerID)
	}
	if err := where.applyFilters(orderFields, q.Filters); err != nil {
		return nil, 0, err
	}
	order, err := orderBy(orderFields, q.Sort, "o.created_at DESC")
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders o"+where.sql(), where.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	args := append(where.args, q.Limit, q.Offset())
	query := fmt.Sprintf("SELECT %s%s%s%s LIMIT $%d OFFSET $%d",
		orderColumns, orderFrom, where.sql(), order, len(where.args)+1, len(where.args)+2)
	orders, err := r.queryOrders(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *orderRepository) ListFarmerOrdersBetween(ctx context.Context, farmerID int64, from, to time.Time) ([]*models.Order, error) {
	var where whereBuilder
	where.add(farmerItemExists, farmerID)
	where.add("o.status <> ?", models.StatusCancelled)
	where.add("o.created_at >= ?", from)
	where.add("o.created_at <= ?", to)

	query := "SELECT " + orderColumns + orderFrom + where.sql() + " ORDER BY o.created_at"
	return r.queryOrders(ctx, query, where.args...)
}

func (r *orderRepository) CountFarmerOrdersByStatus(ctx context.Context, farmerID int64) (map[models.OrderStatus]int, error) {
	var where whereBuilder
	where.add(farmerItemExists, farmerID)
	rows, err := r.db.QueryContext(ctx, "SELECT o.status, COUNT(*) FROM orders o"+where.sql()+" GROUP BY o.status", where.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count orders by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.OrderStatus]int)
	for rows.Next() {
		var status models.OrderStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *orderRepository) queryOrders(ctx context.Context, query string, args ...any) ([]*models.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if err := loadDetails(ctx, r.db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// loadDetails дозагружает позиции и историю статусов двумя запросами на весь список
func loadDetails(ctx context.Context, q querier, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	byID := make(map[int64]*models.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
		o.Items = []models.OrderItem{}
		o.StatusUpdates = []models.StatusUpdate{}
	}

	rows, err := q.QueryContext(ctx, `
		SELECT oi.id, oi.order_id, COALESCE(oi.crop_id, 0), COALESCE(c.name, 'Unknown Crop'), oi.farmer_id, oi.quantity, oi.price
		FROM order_items oi
		LEFT JOIN crops c ON c.id = oi.crop_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query order items: %w", err)
	}
	for rows.Next() {
		var item models.OrderItem
		var orderID int64
		if err := rows.Scan(&item.ID, &orderID, &item.CropID, &item.CropName, &item.FarmerID, &item.Quantity, &item.Price); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	rows, err = q.QueryContext(ctx, `
		SELECT order_id, status, comment, updated_at
		FROM order_status_updates
		WHERE order_id = ANY($1)
		ORDER BY order_id, id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query status updates: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u models.StatusUpdate
		var orderID int64
		if err := rows.Scan(&orderID, &u.Status, &u.Comment, &u.UpdatedAt); err != nil {
			return fmt.Errorf("failed to scan status update: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.StatusUpdates = append(o.StatusUpdates, u)
		}
	}
	return rows.Err()
}
