package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/entity"
	"storefront/internal/sharding"
)

// ReceiptRepository records submitted orders, sharded by order number.
type ReceiptRepository struct {
	dbShards []*sql.DB
	router   *sharding.ShardRouter
}

func NewReceiptRepository(dbShards []*sql.DB, router *sharding.ShardRouter) *ReceiptRepository {
	return &ReceiptRepository{dbShards, router}
}

func (r *ReceiptRepository) shard(orderNumber string) *sql.DB {
	return r.dbShards[r.router.GetShard(orderNumber)%len(r.dbShards)]
}

func (r *ReceiptRepository) CreateReceipt(ctx context.Context, receipt *entity.Receipt) (*entity.Receipt, error) {
	db := r.shard(receipt.OrderNumber)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	receiptQuery := `INSERT INTO receipts (order_number, reference, customer_name, contact, payment_method, branch, total) VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, receiptQuery, receipt.OrderNumber, receipt.Reference, receipt.CustomerName, receipt.Contact, string(receipt.PaymentMethod), receipt.Branch, receipt.Total.String())
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	receiptID, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if len(receipt.Items) > 0 {
		// Insert items with batch
		itemQuery := `INSERT INTO receipt_items (receipt_id, product_id, variant, quantity, price, branch) VALUES `

		var values []interface{}
		for _, item := range receipt.Items {
			itemQuery += "(?, ?, ?, ?, ?, ?),"
			values = append(values, receiptID, string(item.ProductID), item.Variant, item.Quantity, item.Price.String(), item.Branch)
		}
		itemQuery = itemQuery[:len(itemQuery)-1]

		_, err = tx.ExecContext(ctx, itemQuery, values...)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	receipt.ID = receiptID
	return receipt, nil
}

// GetReceipt returns the latest receipt recorded under orderNumber.
func (r *ReceiptRepository) GetReceipt(ctx context.Context, orderNumber string) (*entity.Receipt, error) {
	receiptQuery := `SELECT id, order_number, reference, customer_name, contact, payment_method, branch, total, created_at FROM receipts WHERE order_number = ? ORDER BY id DESC LIMIT 1`
	itemQuery := `SELECT product_id, variant, quantity, price, branch FROM receipt_items WHERE receipt_id = ? ORDER BY id`

	db := r.shard(orderNumber)

	receipt := &entity.Receipt{}
	var method string
	err := db.QueryRowContext(ctx, receiptQuery, orderNumber).Scan(&receipt.ID, &receipt.OrderNumber, &receipt.Reference, &receipt.CustomerName, &receipt.Contact, &method, &receipt.Branch, &receipt.Total, &receipt.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", entity.ErrOrderNotFound, orderNumber)
		}
		return nil, err
	}
	receipt.PaymentMethod = entity.PaymentMethod(method)

	rows, err := db.QueryContext(ctx, itemQuery, receipt.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		item := entity.OrderItem{}
		var productID string
		if err := rows.Scan(&productID, &item.Variant, &item.Quantity, &item.Price, &item.Branch); err != nil {
			return nil, err
		}
		item.ProductID = entity.ProductID(productID)
		receipt.Items = append(receipt.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return receipt, nil
}
