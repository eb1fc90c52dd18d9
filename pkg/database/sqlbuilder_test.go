package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type accountRow struct {
	ID    string `db:"id"`
	Email string `db:"email"`
	Phone string `db:"phone"`
}

func TestKeepExisting(t *testing.T) {
	assert.Equal(t, "phone = COALESCE(customer_accounts.phone, EXCLUDED.phone)", KeepExisting("customer_accounts", "phone"))
	assert.Equal(t, "(customer_accounts.phone IS NULL AND EXCLUDED.phone IS NOT NULL)", FillsMissing("customer_accounts", "phone"))
}

func TestTouchWhen(t *testing.T) {
	got := TouchWhen("customer_accounts", "updated_at", "a", "b")

	assert.Equal(t, "updated_at = CASE WHEN a OR b THEN EXCLUDED.updated_at ELSE customer_accounts.updated_at END", got)
}

func TestInsertOnConflict(t *testing.T) {
	ib := NewStruct(new(accountRow)).InsertInto("customer_accounts", accountRow{ID: "a1", Email: "a@b.cz"})
	set := ib.OnConflict("id")
	set.Set(KeepExisting("customer_accounts", "phone"), TouchWhen("customer_accounts", "email", FillsMissing("customer_accounts", "phone")))

	query, args := ib.Build()

	assert.Contains(t, query, "INSERT INTO customer_accounts (id, email, phone) VALUES ($1, $2, $3)")
	assert.Contains(t, query, "ON CONFLICT (id) DO UPDATE")
	assert.Contains(t, query, "SET phone = COALESCE(customer_accounts.phone, EXCLUDED.phone), email = CASE WHEN")
	assert.Equal(t, []any{"a1", "a@b.cz", ""}, args)
}

func TestSelectForUpdate(t *testing.T) {
	sb := NewStruct(new(accountRow)).SelectFrom("customer_accounts")
	sb.Where(sb.Equal("id", "a1"))
	sb.ForUpdate()

	query, args := sb.Build()

	assert.Contains(t, query, "FROM customer_accounts WHERE id = $1 FOR UPDATE")
	assert.Equal(t, []any{"a1"}, args)
}
