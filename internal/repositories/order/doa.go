package order

import (
	"database/sql"
	"time"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/database"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
)

const orderTable = "orders"

type OrderRow struct {
	ID                 string                         `db:"id"`
	ShopID             string                         `db:"shop_id"`
	PreferredShopID    sql.NullString                 `db:"preferred_shop_id"`
	Provider           sql.NullString                 `db:"provider"`
	CustomerAccountRef sql.NullString                 `db:"customer_account_ref"`
	CustomerEmail      sql.NullString                 `db:"customer_email"`
	CustomerPhone      sql.NullString                 `db:"customer_phone"`
	CustomerName       sql.NullString                 `db:"customer_name"`
	BillingAddress     database.JSONB[models.Address] `db:"billing_address"`
	DeliveryAddress    database.JSONB[models.Address] `db:"delivery_address"`
	CustomerGroup      sql.NullString                 `db:"customer_group"`
	CompanyName        sql.NullString                 `db:"company_name"`
	VATID              sql.NullString                 `db:"vat_id"`
	IsGuest            bool                           `db:"is_guest"`
	ForceCompany       bool                           `db:"force_company"`
	Data               database.JSONB[map[string]any] `db:"data"`
	CustomerGUID       sql.NullString                 `db:"customer_guid"`
	CreatedAt          time.Time                      `db:"created_at"`
}

var orderStruct = database.NewStruct(new(OrderRow))

func ToOrder(row *OrderRow) models.Order {
	return models.Order{
		ID:                 row.ID,
		ShopID:             row.ShopID,
		PreferredShopID:    row.PreferredShopID.String,
		Provider:           row.Provider.String,
		CustomerAccountRef: row.CustomerAccountRef.String,
		CustomerEmail:      row.CustomerEmail.String,
		CustomerPhone:      row.CustomerPhone.String,
		CustomerName:       row.CustomerName.String,
		BillingAddress:     row.BillingAddress.Data,
		DeliveryAddress:    row.DeliveryAddress.Data,
		CustomerGroup:      row.CustomerGroup.String,
		CompanyName:        row.CompanyName.String,
		VATID:              row.VATID.String,
		IsGuest:            row.IsGuest,
		ForceCompany:       row.ForceCompany,
		Data:               row.Data.Data,
		CustomerGUID:       row.CustomerGUID.String,
		CreatedAt:          row.CreatedAt,
	}
}
