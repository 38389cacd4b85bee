package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicate       = errors.New("duplicate")
	ErrVersionConflict = errors.New("version conflict")
)

const uniqueViolation = "23505"

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema files in name order
func (s *Store) Migrate(ctx context.Context) error {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
	}
	return nil
}

const productColumns = `id, name, slug, short_description, price, compare_at_price, quantity,
	status, featured, images, tags, seo, created_at, updated_at`

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductBySlug retrieves a product by slug
func (s *Store) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT "+productColumns+" FROM products WHERE slug = $1", slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %q: %w", slug, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT "+productColumns+" FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// ListProducts returns one page of published products and the total match count
func (s *Store) ListProducts(ctx context.Context, q models.ProductQuery) ([]models.Product, int, error) {
	page, limit := models.NormalizePaging(q.Page, q.Limit)
	where, args := productFilter(q)

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM products WHERE "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf("SELECT %s FROM products WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d",
		productColumns, where, productOrderClause(q), len(args)-1, len(args))

	products := []models.Product{}
	if err := s.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return products, total, nil
}

// UpsertProduct inserts a product or replaces the one with the same slug
func (s *Store) UpsertProduct(ctx context.Context, p *models.Product) error {
	if p.Slug == "" {
		p.Slug = models.Slugify(p.Name)
	}
	if p.Status == "" {
		p.Status = models.ProductStatusDraft
	}

	query := `
		INSERT INTO products (name, slug, short_description, price, compare_at_price, quantity,
			status, featured, images, tags, seo)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			short_description = EXCLUDED.short_description,
			price = EXCLUDED.price,
			compare_at_price = EXCLUDED.compare_at_price,
			quantity = EXCLUDED.quantity,
			status = EXCLUDED.status,
			featured = EXCLUDED.featured,
			images = EXCLUDED.images,
			tags = EXCLUDED.tags,
			seo = EXCLUDED.seo,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, p, query,
		p.Name, p.Slug, p.ShortDescription, p.Price, p.CompareAtPrice, p.Quantity,
		p.Status, p.Featured, p.Images, p.Tags, p.SEO)
}

var productSortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"price":     "price",
	"name":      "name",
	"featured":  "featured",
}

// productOrderClause maps the public sort parameters onto whitelisted columns.
// Unless sorting by featured, featured products come first among equal keys.
func productOrderClause(q models.ProductQuery) string {
	sortBy := q.SortBy
	column, ok := productSortColumns[sortBy]
	if !ok {
		sortBy = "createdAt"
		column = productSortColumns[sortBy]
	}

	dir := "DESC"
	if strings.EqualFold(q.SortOrder, "asc") {
		dir = "ASC"
	}

	switch {
	case q.Featured:
		return "created_at " + dir + ", id " + dir
	case sortBy != "featured":
		return column + " " + dir + ", featured DESC, id " + dir
	default:
		return column + " " + dir + ", id " + dir
	}
}

func productFilter(q models.ProductQuery) (string, []interface{}) {
	conds := []string{"status = $1"}
	args := []interface{}{models.ProductStatusPublished}

	if q.Featured {
		conds = append(conds, "featured = TRUE")
	}

	if search := strings.TrimSpace(q.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(name ILIKE $%[1]d OR short_description ILIKE $%[1]d OR tags::text ILIKE $%[1]d OR seo->>'keywords' ILIKE $%[1]d)", n))
	}

	return strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
