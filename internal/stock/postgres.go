package stock

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-billing/internal/billing"
	"github.com/odyssey-erp/odyssey-billing/internal/platform/db"
)

const productsQuery = `SELECT UPPER(p.sku), p.name, p.price::text, COALESCE(u.code, '')
FROM products p
LEFT JOIN units u ON u.id = p.unit_id
WHERE p.deleted_at IS NULL AND p.is_active AND UPPER(p.sku) = ANY($1)`

const balancesQuery = `SELECT UPPER(p.sku), w.code, ib.qty::text
FROM inventory_balances ib
JOIN products p ON p.id = ib.product_id
JOIN warehouses w ON w.id = ib.warehouse_id
WHERE UPPER(p.sku) = ANY($1) AND ($2::text = '' OR w.code = $2::text)
ORDER BY w.code`

type productRow struct {
	SKU   string
	Name  string
	Price decimal.Decimal
	Unit  string
}

type balanceRow struct {
	SKU       string
	Warehouse string
	Qty       decimal.Decimal
}

// PostgresProvider reads stock from the inventory tables.
type PostgresProvider struct {
	pool *pgxpool.Pool
}

// NewPostgresProvider builds the provider.
func NewPostgresProvider(pool *pgxpool.Pool) *PostgresProvider {
	return &PostgresProvider{pool: pool}
}

// Snapshot reads the product master and balances in one read-only snapshot.
// Active products without a balance row are reported with zero quantity.
func (p *PostgresProvider) Snapshot(ctx context.Context, q Query) ([]billing.StockAvailability, error) {
	if len(q.ItemCodes) == 0 {
		return nil, nil
	}
	var (
		products []productRow
		balances []balanceRow
	)
	err := db.WithTx(ctx, p.pool, db.ReadSnapshot, func(tx pgx.Tx) error {
		var err error
		if products, err = queryProducts(ctx, tx, q.ItemCodes); err != nil {
			return err
		}
		balances, err = queryBalances(ctx, tx, q)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("stock: postgres snapshot: %w", err)
	}
	return assemble(products, balances), nil
}

func queryProducts(ctx context.Context, tx pgx.Tx, codes []string) ([]productRow, error) {
	rows, err := tx.Query(ctx, productsQuery, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []productRow
	for rows.Next() {
		var (
			row   productRow
			price string
		)
		if err := rows.Scan(&row.SKU, &row.Name, &price, &row.Unit); err != nil {
			return nil, err
		}
		if row.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("price of %s: %w", row.SKU, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func queryBalances(ctx context.Context, tx pgx.Tx, q Query) ([]balanceRow, error) {
	rows, err := tx.Query(ctx, balancesQuery, q.ItemCodes, q.Location)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []balanceRow
	for rows.Next() {
		var (
			row balanceRow
			qty string
		)
		if err := rows.Scan(&row.SKU, &row.Warehouse, &qty); err != nil {
			return nil, err
		}
		if row.Qty, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("quantity of %s at %s: %w", row.SKU, row.Warehouse, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// assemble joins product rows with their per-warehouse balances.
func assemble(products []productRow, balances []balanceRow) []billing.StockAvailability {
	byCode := make(map[string][]billing.LocationStock, len(products))
	for _, b := range balances {
		byCode[b.SKU] = append(byCode[b.SKU], billing.LocationStock{Location: b.Warehouse, Quantity: b.Qty})
	}
	out := make([]billing.StockAvailability, 0, len(products))
	for _, p := range products {
		locs := byCode[p.SKU]
		total := decimal.Zero
		for _, l := range locs {
			total = total.Add(l.Quantity)
		}
		out = append(out, billing.StockAvailability{
			ItemCode:          p.SKU,
			ItemName:          p.Name,
			AvailableQuantity: total,
			UnitPrice:         p.Price,
			Unit:              p.Unit,
			Locations:         locs,
		})
	}
	return out
}
