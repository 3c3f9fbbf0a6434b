package database

import (
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// Builders are the go-sqlbuilder types bound to the PostgreSQL flavor by the constructors below.
type (
	UpdateBuilder = sqlbuilder.UpdateBuilder
	SelectBuilder = sqlbuilder.SelectBuilder
	Struct        = sqlbuilder.Struct
)

// InsertBuilder adds upsert support to sqlbuilder.InsertBuilder.
type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
}

func NewInsertBuilder() *InsertBuilder {
	return &InsertBuilder{sqlbuilder.PostgreSQL.NewInsertBuilder()}
}

func NewUpdateBuilder() *UpdateBuilder {
	return sqlbuilder.PostgreSQL.NewUpdateBuilder()
}

// NewStruct maps a db-tagged model to columns and values.
func NewStruct(model any) *Struct {
	return sqlbuilder.NewStruct(model).For(sqlbuilder.PostgreSQL)
}

// OnConflictUpdate appends "ON CONFLICT (cols) DO UPDATE" and returns the builder for its SET
// clause. Call it after Values and before Returning.
func (b *InsertBuilder) OnConflictUpdate(conflictCols ...string) *UpdateBuilder {
	set := NewUpdateBuilder()
	b.SQL("ON CONFLICT (" + strings.Join(conflictCols, ", ") + ") DO UPDATE " + b.Var(set))
	return set
}

// Excluded references the row proposed for insertion inside an ON CONFLICT clause.
func Excluded(column string) any {
	return sqlbuilder.Raw("EXCLUDED." + column)
}

func Now() any {
	return sqlbuilder.Raw("NOW()")
}

// Chunk splits rows into consecutive slices of at most size elements. A non-positive size
// yields a single chunk.
func Chunk[T any](rows []T, size int) [][]T {
	if len(rows) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(rows)
	}

	var chunks [][]T
	for len(rows) > size {
		chunks = append(chunks, rows[:size])
		rows = rows[size:]
	}
	return append(chunks, rows)
}
