package customer

import (
	"time"

	"github.com/lib/pq"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/database"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/normalizers"
)

const (
	customerTable = "customers"
	accountTable  = "customer_accounts"
)

type CustomerRow struct {
	GUID              string                           `db:"guid"`
	ShopID            string                           `db:"shop_id"`
	Provider          string                           `db:"provider"`
	Email             string                           `db:"email"`
	EmailNormalized   string                           `db:"email_normalized"`
	Phone             string                           `db:"phone"`
	NormalizedPhone   string                           `db:"normalized_phone"`
	FullName          string                           `db:"full_name"`
	BillingAddress    database.JSONB[models.Address]   `db:"billing_address"`
	DeliveryAddresses database.JSONB[[]models.Address] `db:"delivery_addresses"`
	CustomerGroup     string                           `db:"customer_group"`
	SourceGroup       string                           `db:"source_group"`
	IsVIP             bool                             `db:"is_vip"`
	Tags              pq.StringArray                   `db:"tags"`
	AutoTags          database.JSONB[[]models.AutoTag] `db:"auto_tags"`
	Data              database.JSONB[map[string]any]   `db:"data"`
	CreatedAt         time.Time                        `db:"created_at"`
	UpdatedAt         time.Time                        `db:"updated_at"`
}

var customerStruct = database.NewStruct(new(CustomerRow))

func FromCustomer(c models.Customer) *CustomerRow {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	autoTags := c.AutoTags
	if autoTags == nil {
		autoTags = []models.AutoTag{}
	}
	data := c.Data
	if data == nil {
		data = map[string]any{}
	}
	return &CustomerRow{
		GUID:              c.GUID,
		ShopID:            c.ShopID,
		Provider:          c.Provider,
		Email:             c.Email,
		EmailNormalized:   normalizers.EmailKey(c.Email),
		Phone:             c.Phone,
		NormalizedPhone:   c.NormalizedPhone,
		FullName:          c.FullName,
		BillingAddress:    database.NewJSONB(c.BillingAddress),
		DeliveryAddresses: database.NewJSONB(c.DeliveryAddresses),
		CustomerGroup:     string(c.CustomerGroup),
		SourceGroup:       c.SourceGroup,
		IsVIP:             c.IsVIP,
		Tags:              pq.StringArray(tags),
		AutoTags:          database.NewJSONB(autoTags),
		Data:              database.NewJSONB(data),
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

func ToCustomer(row *CustomerRow) models.Customer {
	return models.Customer{
		GUID:              row.GUID,
		ShopID:            row.ShopID,
		Provider:          row.Provider,
		Email:             row.Email,
		Phone:             row.Phone,
		NormalizedPhone:   row.NormalizedPhone,
		FullName:          row.FullName,
		BillingAddress:    row.BillingAddress.Data,
		DeliveryAddresses: row.DeliveryAddresses.Data,
		CustomerGroup:     models.ParseCustomerGroup(row.CustomerGroup),
		SourceGroup:       row.SourceGroup,
		IsVIP:             row.IsVIP,
		Tags:              []string(row.Tags),
		AutoTags:          row.AutoTags.Data,
		Data:              row.Data.Data,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
}
