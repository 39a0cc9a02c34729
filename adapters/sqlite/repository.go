package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/layer-3/agora/core"
	"github.com/layer-3/agora/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price_eth TEXT NOT NULL,
	seller_address TEXT NOT NULL,
	buyer_address TEXT,
	status TEXT NOT NULL CHECK(status IN ('available', 'sold')) DEFAULT 'available',
	image_url TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_status ON items(status);
CREATE INDEX IF NOT EXISTS idx_items_seller_address ON items(seller_address);
CREATE INDEX IF NOT EXISTS idx_items_buyer_address ON items(buyer_address);

CREATE TABLE IF NOT EXISTS transactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	item_id INTEGER NOT NULL,
	seller_address TEXT NOT NULL,
	buyer_address TEXT NOT NULL,
	price_eth TEXT NOT NULL,
	tx_hash TEXT UNIQUE,
	created_at INTEGER NOT NULL,
	FOREIGN KEY (item_id) REFERENCES items(id)
);
CREATE INDEX IF NOT EXISTS idx_transactions_seller_address ON transactions(seller_address);
CREATE INDEX IF NOT EXISTS idx_transactions_buyer_address ON transactions(buyer_address);
`

const itemColumns = "id, name, description, price_eth, seller_address, buyer_address, status, image_url, created_at"
const transactionColumns = "id, item_id, seller_address, buyer_address, price_eth, tx_hash, created_at"

// Repository stores items and transactions in SQLite. Addresses are stored in
// checksummed form so lookups do not depend on the caller's spelling.
type Repository struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

var _ ports.ItemRepository = (*Repository)(nil)

// Open creates or opens the marketplace database at path.
func Open(path string) (*Repository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps RecordPurchase transactions from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db, dbPath: path, now: time.Now}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return repo, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Path returns the database file path.
func (r *Repository) Path() string {
	return r.dbPath
}

func (r *Repository) CreateItem(ctx context.Context, item *core.Item) error {
	seller, err := core.CanonicalAddress(item.SellerAddress)
	if err != nil {
		return err
	}
	if item.Status == "" {
		item.Status = core.ItemAvailable
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = r.now()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO items (name, description, price_eth, seller_address, buyer_address, status, image_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Name, item.Description, item.PriceEth.String(), seller,
		nullString(item.BuyerAddress), string(item.Status), nullString(item.ImageURL), item.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read item id: %w", err)
	}
	item.ID = id
	item.SellerAddress = seller
	return nil
}

func (r *Repository) GetItem(ctx context.Context, id int64) (*core.Item, error) {
	return getItem(ctx, r.db, id)
}

func (r *Repository) ListItems(ctx context.Context, status core.ItemStatus) ([]core.Item, error) {
	if status == "" {
		return r.queryItems(ctx, "SELECT "+itemColumns+" FROM items ORDER BY id")
	}
	return r.queryItems(ctx, "SELECT "+itemColumns+" FROM items WHERE status = ? ORDER BY id", string(status))
}

func (r *Repository) ListItemsBySeller(ctx context.Context, seller string) ([]core.Item, error) {
	addr, err := core.CanonicalAddress(seller)
	if err != nil {
		return nil, err
	}
	return r.queryItems(ctx, "SELECT "+itemColumns+" FROM items WHERE seller_address = ? ORDER BY id", addr)
}

func (r *Repository) UpdateItem(ctx context.Context, id int64, update core.ItemUpdate) (*core.Item, error) {
	var sets []string
	var args []any
	if update.Name != nil {
		sets, args = append(sets, "name = ?"), append(args, *update.Name)
	}
	if update.Description != nil {
		sets, args = append(sets, "description = ?"), append(args, *update.Description)
	}
	if update.PriceEth != nil {
		sets, args = append(sets, "price_eth = ?"), append(args, update.PriceEth.String())
	}
	if update.ImageURL != nil {
		sets, args = append(sets, "image_url = ?"), append(args, nullString(*update.ImageURL))
	}

	if len(sets) > 0 {
		args = append(args, id)
		res, err := r.db.ExecContext(ctx, "UPDATE items SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
		if err != nil {
			return nil, fmt.Errorf("failed to update item: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, core.ErrItemNotFound
		}
	}
	return r.GetItem(ctx, id)
}

func (r *Repository) DeleteItem(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrItemNotFound
	}
	return nil
}

// RecordPurchase marks an available item sold and stores the transaction in one
// database transaction.
func (r *Repository) RecordPurchase(ctx context.Context, itemID int64, buyer, txHash string) (*core.Transaction, *core.Item, error) {
	buyerAddr, err := core.CanonicalAddress(buyer)
	if err != nil {
		return nil, nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	item, err := getItem(ctx, tx, itemID)
	if err != nil {
		return nil, nil, err
	}
	if item.Status != core.ItemAvailable {
		return nil, nil, core.ErrItemUnavailable
	}

	if txHash != "" {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM transactions WHERE tx_hash = ?", txHash).Scan(&exists)
		if err == nil {
			return nil, nil, core.ErrDuplicateTx
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("failed to check transaction: %w", err)
		}
	}

	now := r.now()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (item_id, seller_address, buyer_address, price_eth, tx_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, item.SellerAddress, buyerAddr, item.PriceEth.String(), nullString(txHash), now.UnixMilli())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to insert transaction: %w", err)
	}
	txID, err := res.LastInsertId()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read transaction id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE items SET status = ?, buyer_address = ? WHERE id = ?",
		string(core.ItemSold), buyerAddr, item.ID); err != nil {
		return nil, nil, fmt.Errorf("failed to mark item sold: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit purchase: %w", err)
	}

	item.Status = core.ItemSold
	item.BuyerAddress = buyerAddr
	return &core.Transaction{
		ID:            txID,
		ItemID:        item.ID,
		SellerAddress: item.SellerAddress,
		BuyerAddress:  buyerAddr,
		PriceEth:      item.PriceEth,
		TxHash:        txHash,
		CreatedAt:     time.UnixMilli(now.UnixMilli()),
	}, item, nil
}

func (r *Repository) ListTransactionsByBuyer(ctx context.Context, buyer string) ([]core.Transaction, error) {
	addr, err := core.CanonicalAddress(buyer)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE buyer_address = ? ORDER BY id", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		var t core.Transaction
		var txHash sql.NullString
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.ItemID, &t.SellerAddress, &t.BuyerAddress, &t.PriceEth, &txHash, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.TxHash = txHash.String
		t.CreatedAt = time.UnixMilli(createdAt)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func getItem(ctx context.Context, q querier, id int64) (*core.Item, error) {
	item, err := scanItem(q.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM items WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

func (r *Repository) queryItems(ctx context.Context, query string, args ...any) ([]core.Item, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []core.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func scanItem(s scanner) (*core.Item, error) {
	var item core.Item
	var buyer, image sql.NullString
	var status string
	var createdAt int64
	if err := s.Scan(&item.ID, &item.Name, &item.Description, &item.PriceEth, &item.SellerAddress,
		&buyer, &status, &image, &createdAt); err != nil {
		return nil, err
	}
	item.BuyerAddress = buyer.String
	item.Status = core.ItemStatus(status)
	item.ImageURL = image.String
	item.CreatedAt = time.UnixMilli(createdAt)
	return &item, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
