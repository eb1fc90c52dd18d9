package customeraccount

import (
	"database/sql"
	"time"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/database"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/normalizers"
)

const accountTable = "customer_accounts"

type AccountRow struct {
	ID              string                         `db:"id"`
	CustomerGUID    string                         `db:"customer_guid"`
	ShopID          sql.NullString                 `db:"shop_id"`
	ExternalRef     sql.NullString                 `db:"external_ref"`
	Email           string                         `db:"email"`
	EmailNormalized string                         `db:"email_normalized"`
	Phone           sql.NullString                 `db:"phone"`
	IsMain          bool                           `db:"is_main"`
	IsAuthorized    bool                           `db:"is_authorized"`
	IsEmailVerified bool                           `db:"is_email_verified"`
	Data            database.JSONB[map[string]any] `db:"data"`
	CreatedAt       time.Time                      `db:"created_at"`
	UpdatedAt       time.Time                      `db:"updated_at"`
}

var accountStruct = database.NewStruct(new(AccountRow))

func FromAccount(a models.CustomerAccount) *AccountRow {
	data := a.Data
	if data == nil {
		data = map[string]any{}
	}
	return &AccountRow{
		ID:              a.ID,
		CustomerGUID:    a.CustomerGUID,
		ShopID:          sql.NullString{String: a.ShopID, Valid: a.ShopID != ""},
		ExternalRef:     sql.NullString{String: a.ExternalRef, Valid: a.ExternalRef != ""},
		Email:           a.Email,
		EmailNormalized: normalizers.EmailKey(a.Email),
		Phone:           sql.NullString{String: a.Phone, Valid: a.Phone != ""},
		IsMain:          a.IsMain,
		IsAuthorized:    a.IsAuthorized,
		IsEmailVerified: a.IsEmailVerified,
		Data:            database.NewJSONB(data),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func ToAccount(row *AccountRow) models.CustomerAccount {
	return models.CustomerAccount{
		ID:              row.ID,
		CustomerGUID:    row.CustomerGUID,
		ShopID:          row.ShopID.String,
		ExternalRef:     row.ExternalRef.String,
		Email:           row.Email,
		Phone:           row.Phone.String,
		IsMain:          row.IsMain,
		IsAuthorized:    row.IsAuthorized,
		IsEmailVerified: row.IsEmailVerified,
		Data:            row.Data.Data,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}
