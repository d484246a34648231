package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrPathRequired is returned when the backing store path is missing.
	ErrPathRequired = errors.New("storage path must be configured")

	// ErrInvalidTransition is returned when a conditional update names a
	// status change the lifecycle graph does not permit.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Store wraps the storefront persistence layer. Orders are the single source
// of truth for fulfillment state and are never deleted.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS products (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    price TEXT NOT NULL,
    repo_owner TEXT NOT NULL,
    repo_name TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS orders (
    order_id TEXT PRIMARY KEY,
    product_id TEXT NOT NULL,
    buyer TEXT NOT NULL,
    amount TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    tx_hash TEXT,
    paid_at TIMESTAMP,
    granted_at TIMESTAMP,
    last_error TEXT
);
CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders(status, created_at);
`

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Product carries the collaborator-owned catalog attributes the engine
// needs: the expected price and the access-grant target.
type Product struct {
	ID        string
	Name      string
	Price     string
	RepoOwner string
	RepoName  string
	CreatedAt time.Time
}

// Order is the central persisted entity.
type Order struct {
	OrderID   string
	ProductID string
	Buyer     string
	Amount    string
	Status    Status
	CreatedAt time.Time
	TxHash    sql.NullString
	PaidAt    sql.NullTime
	GrantedAt sql.NullTime
	LastError sql.NullString
}

// InsertProduct stores a catalog entry.
func (s *Store) InsertProduct(ctx context.Context, p Product) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("product id required")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO products(id, name, price, repo_owner, repo_name, created_at)
        VALUES(?, ?, ?, ?, ?, ?)
    `, p.ID, p.Name, p.Price, p.RepoOwner, p.RepoName, p.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetProduct returns the product with the given id, or nil when absent.
func (s *Store) GetProduct(ctx context.Context, id string) (*Product, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, name, price, repo_owner, repo_name, created_at
        FROM products WHERE id = ?
    `, id)
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.RepoOwner, &p.RepoName, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// ListProducts returns the catalog ordered by creation time.
func (s *Store) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, name, price, repo_owner, repo_name, created_at
        FROM products ORDER BY created_at ASC
    `)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.RepoOwner, &p.RepoName, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertOrder persists a freshly initiated order. The expected amount is
// fixed here and never recomputed.
func (s *Store) InsertOrder(ctx context.Context, o Order) error {
	if strings.TrimSpace(o.OrderID) == "" {
		return fmt.Errorf("order id required")
	}
	if !o.Status.Valid() {
		return fmt.Errorf("invalid order status %q", o.Status)
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO orders(order_id, product_id, buyer, amount, status, created_at)
        VALUES(?, ?, ?, ?, ?, ?)
    `, o.OrderID, o.ProductID, o.Buyer, o.Amount, string(o.Status), o.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetOrder returns the order with the given id, or nil when absent.
func (s *Store) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT order_id, product_id, buyer, amount, status, created_at, tx_hash, paid_at, granted_at, last_error
        FROM orders WHERE order_id = ?
    `, orderID)
	return scanOrder(row)
}

// PendingOrders returns up to limit pending orders, oldest first.
func (s *Store) PendingOrders(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT order_id, product_id, buyer, amount, status, created_at, tx_hash, paid_at, granted_at, last_error
        FROM orders WHERE status = ? ORDER BY created_at ASC LIMIT ?
    `, string(StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("query pending orders: %w", err)
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.OrderID, &o.ProductID, &o.Buyer, &o.Amount, &o.Status, &o.CreatedAt, &o.TxHash, &o.PaidAt, &o.GrantedAt, &o.LastError); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row *sql.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.OrderID, &o.ProductID, &o.Buyer, &o.Amount, &o.Status, &o.CreatedAt, &o.TxHash, &o.PaidAt, &o.GrantedAt, &o.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &o, nil
}

// AttachTxHash records a client-submitted transaction hash on a still-pending
// order. It reports whether any row was updated; a false result means the
// order is unknown or already advanced.
func (s *Store) AttachTxHash(ctx context.Context, orderID, txHash string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
        UPDATE orders SET tx_hash = ? WHERE order_id = ? AND status = ?
    `, txHash, orderID, string(StatusPending))
	if err != nil {
		return false, fmt.Errorf("attach tx hash: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Patch describes the mutation applied by a conditional update. Status is
// mandatory; the remaining fields are written only when set.
type Patch struct {
	Status    Status
	TxHash    string
	PaidAt    *time.Time
	GrantedAt *time.Time
	LastError string
}

// UpdateIfStatus applies patch only if the order's status still equals
// expected at write time. It is the sole mutation path for order status: the
// sweep, the directed check, and the status poll may race on the same order,
// and the first writer wins while the loser's update is a harmless no-op
// (reported as applied=false). Transitions outside the lifecycle graph are
// rejected outright.
func (s *Store) UpdateIfStatus(ctx context.Context, orderID string, expected Status, patch Patch) (bool, error) {
	if !patch.Status.Valid() {
		return false, fmt.Errorf("invalid target status %q", patch.Status)
	}
	if !expected.CanTransition(patch.Status) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, expected, patch.Status)
	}
	set := []string{"status = ?"}
	args := []interface{}{string(patch.Status)}
	if patch.TxHash != "" {
		set = append(set, "tx_hash = ?")
		args = append(args, patch.TxHash)
	}
	if patch.PaidAt != nil {
		set = append(set, "paid_at = ?")
		args = append(args, patch.PaidAt.UTC())
	}
	if patch.GrantedAt != nil {
		set = append(set, "granted_at = ?")
		args = append(args, patch.GrantedAt.UTC())
	}
	if patch.LastError != "" {
		set = append(set, "last_error = ?")
		args = append(args, patch.LastError)
	}
	args = append(args, orderID, string(expected))
	stmt := fmt.Sprintf("UPDATE orders SET %s WHERE order_id = ? AND status = ?", strings.Join(set, ", "))
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("conditional update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
