package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Product/cart repository errors
var (
	ErrProductNotFound   = errors.New("product not found")
	ErrCartItemNotFound  = errors.New("product not found in cart")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ProductRepository defines catalog and cart data access
type ProductRepository interface {
	Create(ctx context.Context, product *Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	List(ctx context.Context) ([]*Product, error)
	Update(ctx context.Context, product *Product) error
	Delete(ctx context.Context, id uuid.UUID) error

	AddToCart(ctx context.Context, userID, productID uuid.UUID) error
	SetCartQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) error
	RemoveFromCart(ctx context.Context, userID, productID uuid.UUID) error
	GetCart(ctx context.Context, userID uuid.UUID) ([]*CartLine, error)
	// Checkout decrements stock for every cart line and clears the cart in
	// one transaction; fails with ErrInsufficientStock if any line exceeds stock
	Checkout(ctx context.Context, userID uuid.UUID) error

	AddFavorite(ctx context.Context, userID, productID uuid.UUID) error
	RemoveFavorite(ctx context.Context, userID, productID uuid.UUID) error
	ListFavorites(ctx context.Context, userID uuid.UUID) ([]*Product, error)
}

// productRepository implements ProductRepository using PostgreSQL
type productRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository creates a new ProductRepository instance
func NewProductRepository(pool *pgxpool.Pool) ProductRepository {
	return &productRepository{pool: pool}
}

const productColumns = `id, name, description, price_cents, stock, image_key, image_url, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	p := &Product{}
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Stock,
		&p.ImageKey, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *productRepository) Create(ctx context.Context, product *Product) error {
	query := `
		INSERT INTO products (name, description, price_cents, stock, image_key, image_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	return r.pool.QueryRow(ctx, query,
		product.Name, product.Description, product.PriceCents,
		product.Stock, product.ImageKey, product.ImageURL,
	).Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
}

func (r *productRepository) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	return scanProduct(r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (r *productRepository) List(ctx context.Context) ([]*Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *productRepository) Update(ctx context.Context, product *Product) error {
	query := `
		UPDATE products
		SET name = $2, description = $3, price_cents = $4, stock = $5,
		    image_key = $6, image_url = $7, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		product.ID, product.Name, product.Description, product.PriceCents,
		product.Stock, product.ImageKey, product.ImageURL,
	).Scan(&product.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrProductNotFound
	}
	return err
}

func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// AddToCart inserts the line or bumps quantity when it already exists
func (r *productRepository) AddToCart(ctx context.Context, userID, productID uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, productID,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrProductNotFound
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO cart_items (user_id, product_id, quantity)
		VALUES ($1, $2, 1)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + 1
	`, userID, productID)
	return err
}

func (r *productRepository) SetCartQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE cart_items SET quantity = $3 WHERE user_id = $1 AND product_id = $2
	`, userID, productID, quantity)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

func (r *productRepository) RemoveFromCart(ctx context.Context, userID, productID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID)
	return err
}

func (r *productRepository) GetCart(ctx context.Context, userID uuid.UUID) ([]*CartLine, error) {
	query := `
		SELECT c.user_id, c.product_id, c.quantity, c.added_at,
		       p.name, p.price_cents, p.stock
		FROM cart_items c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.added_at ASC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []*CartLine
	for rows.Next() {
		line := &CartLine{}
		if err := rows.Scan(
			&line.UserID, &line.ProductID, &line.Quantity, &line.AddedAt,
			&line.ProductName, &line.PriceCents, &line.Stock,
		); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// Checkout runs the whole purchase in one transaction. The conditional
// UPDATE guards against oversell under concurrent checkouts.
func (r *productRepository) Checkout(ctx context.Context, userID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT product_id, quantity FROM cart_items WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}

	type line struct {
		productID uuid.UUID
		quantity  int
	}
	var cart []line
	for rows.Next() {
		var l line
		if err := rows.Scan(&l.productID, &l.quantity); err != nil {
			rows.Close()
			return err
		}
		cart = append(cart, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(cart) == 0 {
		return ErrCartItemNotFound
	}

	for _, l := range cart {
		result, err := tx.Exec(ctx, `
			UPDATE products SET stock = stock - $2, updated_at = now()
			WHERE id = $1 AND stock >= $2
		`, l.productID, l.quantity)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return ErrInsufficientStock
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *productRepository) AddFavorite(ctx context.Context, userID, productID uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, productID,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrProductNotFound
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO favorites (user_id, product_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, product_id) DO NOTHING
	`, userID, productID)
	return err
}

func (r *productRepository) RemoveFavorite(ctx context.Context, userID, productID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM favorites WHERE user_id = $1 AND product_id = $2`, userID, productID)
	return err
}

func (r *productRepository) ListFavorites(ctx context.Context, userID uuid.UUID) ([]*Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products p
		JOIN favorites f ON f.product_id = p.id
		WHERE f.user_id = $1
		ORDER BY f.added_at ASC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}
