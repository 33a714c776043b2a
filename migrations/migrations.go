package migrations

import (
	"database/sql"
	"fmt"
	"time"
)

var retryDelay = 1 * time.Second

// AutoMigrateReceipts creates the receipts table if it does not exist.
func AutoMigrateReceipts(retries int, dbs ...*sql.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS receipts (
			id INT AUTO_INCREMENT PRIMARY KEY,
			order_number VARCHAR(32) NOT NULL,
			reference VARCHAR(64) NOT NULL UNIQUE,
			customer_name VARCHAR(255) NOT NULL,
			contact VARCHAR(255) NOT NULL,
			payment_method VARCHAR(32) NOT NULL,
			branch VARCHAR(64) NOT NULL,
			total DECIMAL(18,4) NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_receipts_order_number (order_number)
		);
	`
	return migrate("receipts", query, retries, dbs)
}

// AutoMigrateReceiptItems creates the receipt_items table if it does not exist.
func AutoMigrateReceiptItems(retries int, dbs ...*sql.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS receipt_items (
			id INT AUTO_INCREMENT PRIMARY KEY,
			receipt_id INT NOT NULL,
			product_id VARCHAR(64) NOT NULL,
			variant VARCHAR(255) NOT NULL,
			quantity INT NOT NULL,
			price DECIMAL(18,4) NOT NULL,
			branch VARCHAR(64) NOT NULL,
			FOREIGN KEY (receipt_id) REFERENCES receipts(id) ON DELETE CASCADE
		);
	`
	return migrate("receipt_items", query, retries, dbs)
}

func migrate(table, query string, retries int, dbs []*sql.DB) error {
	for i, db := range dbs {
		_, err := db.Exec(query)
		// Retry creating the table
		for attempt := 0; err != nil && attempt < retries; attempt++ {
			time.Sleep(retryDelay)
			_, err = db.Exec(query)
		}
		if err != nil {
			return fmt.Errorf("migrate %s on shard %d: %w", table, i, err)
		}
	}
	return nil
}
