package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

var flavor = sqlbuilder.PostgreSQL

// KeepExisting is an upsert assignment that only fills column when the stored
// row has no value yet.
func KeepExisting(table, column string) string {
	return fmt.Sprintf("%[2]s = COALESCE(%[1]s.%[2]s, EXCLUDED.%[2]s)", table, column)
}

// FillsMissing is an upsert predicate that holds when KeepExisting on the same
// column would change the stored row.
func FillsMissing(table, column string) string {
	return fmt.Sprintf("(%[1]s.%[2]s IS NULL AND EXCLUDED.%[2]s IS NOT NULL)", table, column)
}

// TouchWhen is an upsert assignment that moves column to the proposed value
// only when changed holds, leaving the stored value otherwise.
func TouchWhen(table, column string, changed ...string) string {
	return fmt.Sprintf("%[2]s = CASE WHEN %[3]s THEN EXCLUDED.%[2]s ELSE %[1]s.%[2]s END",
		table, column, strings.Join(changed, " OR "))
}

type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
}

// OnConflict turns the insert into an upsert on the given unique columns.
// The returned builder holds the DO UPDATE SET clause.
func (ib *InsertBuilder) OnConflict(columns ...string) *UpdateBuilder {
	set := NewUpdateBuilder()
	ib.SQL("ON CONFLICT (" + strings.Join(columns, ", ") + ") DO UPDATE " + ib.Var(set))
	return set
}

type UpdateBuilder struct {
	*sqlbuilder.UpdateBuilder
}

func NewUpdateBuilder() *UpdateBuilder {
	return &UpdateBuilder{flavor.NewUpdateBuilder()}
}

type SelectBuilder struct {
	*sqlbuilder.SelectBuilder
}

func NewSelectBuilder() *SelectBuilder {
	return &SelectBuilder{flavor.NewSelectBuilder()}
}

// ForUpdate locks the selected rows until the transaction ends.
func (sb *SelectBuilder) ForUpdate() *SelectBuilder {
	sb.SQL("FOR UPDATE")
	return sb
}

// Struct maps a row type's `db` tags onto PostgreSQL statements.
type Struct struct {
	*sqlbuilder.Struct
}

func NewStruct(row any) *Struct {
	return &Struct{sqlbuilder.NewStruct(row).For(flavor)}
}

func (s *Struct) SelectFrom(table string) *SelectBuilder {
	return &SelectBuilder{s.Struct.SelectFrom(table)}
}

func (s *Struct) InsertInto(table string, rows ...any) *InsertBuilder {
	return &InsertBuilder{s.Struct.InsertInto(table, rows...)}
}
