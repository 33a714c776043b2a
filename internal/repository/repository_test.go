package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/entity"
	"storefront/internal/sharding"
)

func newMockRepo(t *testing.T) (*ReceiptRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewReceiptRepository([]*sql.DB{db}, sharding.NewShardRouter(1)), mock
}

func testReceipt() *entity.Receipt {
	return &entity.Receipt{
		OrderNumber:   "ORD-250304130509",
		Reference:     "ref-1",
		CustomerName:  "Ana",
		Contact:       "0917",
		PaymentMethod: entity.PaymentCash,
		Branch:        "main",
		Total:         decimal.RequireFromString("30"),
		Items: []entity.OrderItem{
			{ProductID: "p-1", Variant: "Mint", Quantity: 2, Price: decimal.RequireFromString("10"), Branch: "main"},
			{ProductID: "p-1", Variant: "Grape", Quantity: 1, Price: decimal.RequireFromString("10"), Branch: "main"},
		},
	}
}

func TestCreateReceipt_BatchInsertsItems(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO receipts`)).
		WithArgs("ORD-250304130509", "ref-1", "Ana", "0917", "cash", "main", "30").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO receipt_items (receipt_id, product_id, variant, quantity, price, branch) VALUES (?, ?, ?, ?, ?, ?),(?, ?, ?, ?, ?, ?)`)).
		WithArgs(int64(7), "p-1", "Mint", 2, "10", "main", int64(7), "p-1", "Grape", 1, "10", "main").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	receipt, err := repo.CreateReceipt(context.Background(), testReceipt())
	require.NoError(t, err)
	assert.Equal(t, int64(7), receipt.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReceipt_RollsBackOnItemFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO receipts`)).WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO receipt_items`)).WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	_, err := repo.CreateReceipt(context.Background(), testReceipt())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReceipt(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2025, 3, 4, 13, 5, 10, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM receipts WHERE order_number = ?`)).
		WithArgs("ORD-250304130509").
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_number", "reference", "customer_name", "contact", "payment_method", "branch", "total", "created_at"}).
			AddRow(7, "ORD-250304130509", "ref-1", "Ana", "0917", "gcash", "main", "30.0000", created))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM receipt_items WHERE receipt_id = ?`)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "variant", "quantity", "price", "branch"}).
			AddRow("p-1", "Mint", 3, "10.0000", "main"))

	receipt, err := repo.GetReceipt(context.Background(), "ORD-250304130509")
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentGCash, receipt.PaymentMethod)
	assert.True(t, receipt.Total.Equal(decimal.NewFromInt(30)))
	assert.True(t, receipt.CreatedAt.Equal(created))
	require.Len(t, receipt.Items, 1)
	assert.Equal(t, entity.ProductID("p-1"), receipt.Items[0].ProductID)
	assert.Equal(t, 3, receipt.Items[0].Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReceipt_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM receipts`)).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetReceipt(context.Background(), "ORD-0")
	assert.True(t, errors.Is(err, entity.ErrOrderNotFound))
}
