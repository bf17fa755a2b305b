package sqlite

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Times are unix milliseconds (UTC) so range filters compare integers.
// Money is TEXT so decimals round-trip exactly.
const schema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS medicines(
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  generic_name TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT '',
  manufacturer TEXT NOT NULL DEFAULT '',
  price TEXT NOT NULL,
  cost_price TEXT NOT NULL DEFAULT '0',
  stock_quantity INTEGER NOT NULL CHECK (stock_quantity >= 0),
  min_stock_level INTEGER NOT NULL DEFAULT 10,
  expiry_date TEXT,
  batch_number TEXT NOT NULL DEFAULT '',
  active INTEGER NOT NULL DEFAULT 1,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_medicines_name ON medicines(LOWER(name));

CREATE TABLE IF NOT EXISTS customers(
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  phone TEXT NOT NULL,
  email TEXT NOT NULL DEFAULT '',
  address TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_customers_phone ON customers(phone);

CREATE TABLE IF NOT EXISTS sales(
  id TEXT PRIMARY KEY,
  sale_date INTEGER NOT NULL,
  total_amount TEXT NOT NULL,
  payment_method TEXT NOT NULL,
  bill_number TEXT NOT NULL,
  customer_id TEXT NOT NULL REFERENCES customers(id)
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_sales_bill_number ON sales(bill_number);
CREATE INDEX IF NOT EXISTS idx_sales_sale_date ON sales(sale_date);

CREATE TABLE IF NOT EXISTS sale_items(
  id TEXT PRIMARY KEY,
  sale_id TEXT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  medicine_id TEXT NOT NULL REFERENCES medicines(id),
  medicine_name TEXT NOT NULL,
  quantity INTEGER NOT NULL CHECK (quantity > 0),
  unit_price TEXT NOT NULL,
  subtotal TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sale_items_sale ON sale_items(sale_id, position);

CREATE TABLE IF NOT EXISTS suppliers(
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  company TEXT NOT NULL DEFAULT '',
  email TEXT NOT NULL DEFAULT '',
  phone TEXT NOT NULL DEFAULT '',
  address TEXT NOT NULL DEFAULT '',
  notes TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_suppliers_email ON suppliers(LOWER(email)) WHERE email <> '';

CREATE TABLE IF NOT EXISTS users(
  email TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  phone TEXT NOT NULL DEFAULT '',
  address TEXT NOT NULL DEFAULT '',
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL,
  active INTEGER NOT NULL DEFAULT 1,
  created_at INTEGER NOT NULL
);
`

func ensureSchema(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
