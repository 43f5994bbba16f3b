// Package dataset loads historical order records and exposes read-only
// aggregate views over them. Records are immutable after load; every
// analytics module consumes them through the Accessor.
package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainsight/chainsight/internal/database"
	"github.com/chainsight/chainsight/internal/domain"
)

const dateLayout = "2006-01-02"

// Repository persists order records in the orders database.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates an order repository over the given database.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "dataset-repository").Logger(),
	}
}

// InsertBatch writes records in a single transaction. Every record is
// validated before any row is written.
func (r *Repository) InsertBatch(ctx context.Context, records []domain.OrderRecord) error {
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return err
		}
	}

	err := database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO orders (
				order_id, order_date, delivery_date, category, region,
				shipping_mode, supplier_id, quantity, unit_price, discount,
				inventory_level, lead_time_days, late
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			late := 0
			if rec.Late {
				late = 1
			}
			_, err := stmt.ExecContext(ctx,
				rec.OrderID,
				rec.OrderDate.Format(dateLayout),
				rec.DeliveryDate.Format(dateLayout),
				rec.Category,
				rec.Region,
				rec.ShippingMode,
				rec.SupplierID,
				rec.Quantity,
				rec.UnitPrice,
				rec.Discount,
				rec.InventoryLevel,
				rec.LeadTimeDays,
				late,
			)
			if err != nil {
				return fmt.Errorf("failed to insert order %d: %w", rec.OrderID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Debug().Int("records", len(records)).Msg("Inserted order batch")
	return nil
}

// LoadAll reads every order ordered by order date. The first malformed
// row aborts the load with a typed error.
func (r *Repository) LoadAll(ctx context.Context) ([]domain.OrderRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, order_date, delivery_date, category, region,
		       shipping_mode, supplier_id, quantity, unit_price, discount,
		       inventory_level, lead_time_days, late
		FROM orders
		ORDER BY order_date, order_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var records []domain.OrderRecord
	for rows.Next() {
		var (
			rec          domain.OrderRecord
			orderDate    string
			deliveryDate string
			late         int
		)
		if err := rows.Scan(
			&rec.OrderID, &orderDate, &deliveryDate, &rec.Category,
			&rec.Region, &rec.ShippingMode, &rec.SupplierID, &rec.Quantity,
			&rec.UnitPrice, &rec.Discount, &rec.InventoryLevel,
			&rec.LeadTimeDays, &late,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}

		rec.OrderDate, err = parseDate(rec.OrderID, "order_date", orderDate)
		if err != nil {
			return nil, err
		}
		rec.DeliveryDate, err = parseDate(rec.OrderID, "delivery_date", deliveryDate)
		if err != nil {
			return nil, err
		}
		rec.Late = late != 0

		if err := rec.Validate(); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate order rows: %w", err)
	}

	r.log.Info().Int("records", len(records)).Msg("Loaded order history")
	return records, nil
}

// Count returns the number of stored orders.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return n, nil
}

func parseDate(orderID int64, field, value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, &domain.MalformedRecordError{
			OrderID: orderID,
			Field:   field,
			Reason:  fmt.Sprintf("unparseable date %q", value),
		}
	}
	return t, nil
}
