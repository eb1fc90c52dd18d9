package order

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/database"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
)

var orderColumns = []string{
	"id", "shop_id", "preferred_shop_id", "provider", "customer_account_ref", "customer_email",
	"customer_phone", "customer_name", "billing_address", "delivery_address", "customer_group",
	"company_name", "vat_id", "is_guest", "force_company", "data", "customer_guid", "created_at",
}

func newTestRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewRepository(database.NewDatabaseInstance(sqlx.NewDb(raw, "postgres"), logger), logger), mock
}

func TestGet(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		mock.ExpectQuery("SELECT (.+) FROM orders WHERE id = \\$1").
			WithArgs("o1").
			WillReturnRows(sqlmock.NewRows(orderColumns).AddRow(
				"o1", "s1", nil, nil, "acc-1", "jana@example.com",
				nil, "Jana", []byte(`{"company":"Acme s.r.o."}`), nil, nil,
				nil, nil, false, false, nil, nil, created,
			))

		order, err := repo.Get(context.Background(), "o1")

		require.NoError(t, err)
		assert.Equal(t, "o1", order.ID)
		assert.Equal(t, "acc-1", order.CustomerAccountRef)
		assert.Equal(t, models.Address{"company": "Acme s.r.o."}, order.BillingAddress)
		assert.Empty(t, order.CustomerGUID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery("SELECT (.+) FROM orders").WillReturnRows(sqlmock.NewRows(orderColumns))

		_, err := repo.Get(context.Background(), "missing")

		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAttachCustomer(t *testing.T) {
	tests := []struct {
		name   string
		ids    []string
		result func(mock sqlmock.Sqlmock)
		want   int
	}{
		{
			name: "no orders runs no query",
			want: 0,
		},
		{
			name: "counts relinked orders",
			ids:  []string{"o1", "o2"},
			result: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE orders SET customer_guid = (.+) WHERE id IN").
					WillReturnResult(sqlmock.NewResult(0, 2))
			},
			want: 2,
		},
		{
			name: "unknown count is not an error",
			ids:  []string{"o1"},
			result: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("UPDATE orders").
					WillReturnResult(sqlmock.NewErrorResult(errors.New("driver cannot count rows")))
			},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newTestRepository(t)
			if tt.result != nil {
				tt.result(mock)
			}

			n, err := repo.AttachCustomer(context.Background(), tt.ids, "c1")

			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
