package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"
)

const cartColumns = `id, user_id, items, total_amount, item_count, version, created_at, updated_at`

// GetCartByUserID retrieves the cart owned by a user
func (s *Store) GetCartByUserID(ctx context.Context, userID int64) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart,
		"SELECT "+cartColumns+" FROM carts WHERE user_id = $1 LIMIT 1", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cart for user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// CreateCart inserts a new cart. A second cart for the same user violates
// the user_id constraint and yields ErrDuplicate.
func (s *Store) CreateCart(ctx context.Context, cart *models.Cart) error {
	query := `
		INSERT INTO carts (user_id, items, total_amount, item_count)
		VALUES ($1, $2, $3, $4)
		RETURNING id, version, created_at, updated_at`

	err := s.db.GetContext(ctx, cart, query,
		cart.UserID, cart.Items, cart.TotalAmount, cart.ItemCount)
	if isUniqueViolation(err) {
		return fmt.Errorf("cart for user %d: %w", cart.UserID, ErrDuplicate)
	}
	return err
}

// UpdateCart writes the cart if its version is unchanged since it was read,
// then advances cart.Version.
func (s *Store) UpdateCart(ctx context.Context, cart *models.Cart) error {
	query := `
		UPDATE carts
		SET items = $1, total_amount = $2, item_count = $3, version = version + 1, updated_at = NOW()
		WHERE id = $4 AND version = $5
		RETURNING version, updated_at`

	var row struct {
		Version   int64     `db:"version"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	err := s.db.GetContext(ctx, &row, query,
		cart.Items, cart.TotalAmount, cart.ItemCount, cart.ID, cart.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("cart %d at version %d: %w", cart.ID, cart.Version, ErrVersionConflict)
	}
	if err != nil {
		return err
	}

	cart.Version = row.Version
	cart.UpdatedAt = row.UpdatedAt
	return nil
}
