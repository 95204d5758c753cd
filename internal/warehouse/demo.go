package warehouse

import (
	"context"
	"database/sql"
	"fmt"
)

var demoRegions = []string{"North", "South", "East", "West"}

const demoCustomerCount = 10

// SeedDemo creates and fills the customers table the stub analysis backend
// generates queries for.
func SeedDemo(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("warehouse db is required")
	}
	statements := []string{
		`DROP TABLE IF EXISTS customers`,
		`CREATE TABLE customers (id INTEGER, name VARCHAR, revenue DOUBLE, region VARCHAR)`,
	}
	for _, statement := range statements {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("seed demo schema: %w", err)
		}
	}
	for _, customer := range DemoCustomers() {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO customers (id, name, revenue, region) VALUES ($1, $2, $3, $4)`,
			customer["id"], customer["name"], customer["revenue"], customer["region"],
		); err != nil {
			return fmt.Errorf("seed demo customer %v: %w", customer["id"], err)
		}
	}
	return nil
}

// DemoCustomers returns the deterministic rows SeedDemo inserts.
func DemoCustomers() []map[string]any {
	rows := make([]map[string]any, 0, demoCustomerCount)
	for i := 1; i <= demoCustomerCount; i++ {
		rows = append(rows, map[string]any{
			"id":      int32(i),
			"name":    fmt.Sprintf("Customer %d", i),
			"revenue": float64(i * 1000),
			"region":  demoRegions[(i-1)%len(demoRegions)],
		})
	}
	return rows
}
