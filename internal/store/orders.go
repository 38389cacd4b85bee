package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type orderRow struct {
	ID            int64           `db:"id"`
	OrderNumber   string          `db:"order_number"`
	CustomerID    int64           `db:"customer_id"`
	Status        string          `db:"status"`
	TotalAmount   decimal.Decimal `db:"total_amount"`
	ShipFirstName string          `db:"ship_first_name"`
	ShipLastName  string          `db:"ship_last_name"`
	ShipAddress   string          `db:"ship_address"`
	ShipCity      string          `db:"ship_city"`
	ShipZipCode   string          `db:"ship_zip_code"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func (r orderRow) toModel() models.Order {
	return models.Order{
		ID:          r.ID,
		OrderNumber: r.OrderNumber,
		CustomerID:  r.CustomerID,
		Status:      r.Status,
		Items:       []models.OrderItem{},
		TotalAmount: r.TotalAmount,
		ShippingAddress: models.ShippingAddress{
			FirstName:  r.ShipFirstName,
			LastName:   r.ShipLastName,
			Address:    r.ShipAddress,
			City:       r.ShipCity,
			PostalCode: r.ShipZipCode,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type orderItemRow struct {
	ID        int64           `db:"id"`
	OrderID   int64           `db:"order_id"`
	ProductID int64           `db:"product_id"`
	Quantity  int             `db:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price"`
}

const orderColumns = `id, order_number, customer_id, status, total_amount, ship_first_name,
	ship_last_name, ship_address, ship_city, ship_zip_code, created_at, updated_at`

// CreateOrder inserts an order and its items in one transaction. A taken
// order number yields ErrDuplicate.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (order_number, customer_id, status, total_amount, ship_first_name,
			ship_last_name, ship_address, ship_city, ship_zip_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	var row struct {
		ID        int64     `db:"id"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	addr := order.ShippingAddress
	err = tx.GetContext(ctx, &row, query,
		order.OrderNumber, order.CustomerID, order.Status, order.TotalAmount,
		addr.FirstName, addr.LastName, addr.Address, addr.City, addr.PostalCode)
	if isUniqueViolation(err) {
		return fmt.Errorf("order number %s: %w", order.OrderNumber, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		err := tx.GetContext(ctx, &item.ID,
			`INSERT INTO order_items (order_id, product_id, quantity, unit_price)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			row.ID, item.Product.ID(), item.Quantity, item.UnitPrice)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	order.ID = row.ID
	order.CreatedAt = row.CreatedAt
	order.UpdatedAt = row.UpdatedAt
	return nil
}

// GetOrderByID retrieves an order with its items
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	orders := []models.Order{row.toModel()}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListOrders returns one page of orders, newest first. A zero customerID
// lists every customer's orders.
func (s *Store) ListOrders(ctx context.Context, customerID int64, page, limit int) ([]models.Order, int, error) {
	page, limit = models.NormalizePaging(page, limit)

	var total int
	err := s.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM orders WHERE ($1 = 0 OR customer_id = $1)", customerID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	var rows []orderRow
	err = s.db.SelectContext(ctx, &rows,
		"SELECT "+orderColumns+` FROM orders WHERE ($1 = 0 OR customer_id = $1)
		 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		customerID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}

	orders := make([]models.Order, 0, len(rows))
	for _, r := range rows {
		orders = append(orders, r.toModel())
	}
	if err := s.attachItems(ctx, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (s *Store) attachItems(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	var rows []orderItemRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT id, order_id, product_id, quantity, unit_price FROM order_items WHERE order_id = ANY($1) ORDER BY id",
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}

	for _, r := range rows {
		i := index[r.OrderID]
		orders[i].Items = append(orders[i].Items, models.OrderItem{
			ID:        r.ID,
			Product:   models.Ref(r.ProductID),
			Quantity:  r.Quantity,
			UnitPrice: r.UnitPrice,
		})
	}
	return nil
}
