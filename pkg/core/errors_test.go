package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCategories(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		config     bool
		connection bool
		query      bool
		sentinel   error
	}{
		{
			name:     "config error",
			err:      NewConfigError("Blog", "update", ErrNoPrimaryKey, ""),
			config:   true,
			sentinel: ErrNoPrimaryKey,
		},
		{
			name:       "connection error",
			err:        &ConnectionError{Name: "main", Err: ErrConnectionNotFound},
			connection: true,
			sentinel:   ErrConnectionNotFound,
		},
		{
			name:     "query error",
			err:      NewQueryError("SELECT x", ErrUnknownField),
			query:    true,
			sentinel: ErrUnknownField,
		},
		{
			name:     "wrapped query error",
			err:      fmt.Errorf("select blog: %w", NewQueryError("SELECT 1", ErrBind)),
			query:    true,
			sentinel: ErrBind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.config, IsConfigError(tt.err))
			assert.Equal(t, tt.connection, IsConnectionError(tt.err))
			assert.Equal(t, tt.query, IsQueryError(tt.err))
			assert.ErrorIs(t, tt.err, tt.sentinel)
		})
	}
}

func TestNewConfigError_Message(t *testing.T) {
	err := NewConfigError("Blog", "delete", ErrImmutableTable, "table %s", "blog")

	assert.Equal(t, "config error: Blog: delete: table is immutable: table blog", err.Error())
	assert.True(t, errors.Is(err, ErrImmutableTable))
}

func TestQueryError_Message(t *testing.T) {
	err := NewQueryError("", errors.New("boom"))
	assert.Equal(t, "query failed: boom", err.Error())

	err = NewQueryError("SELECT 1", errors.New("boom"))
	assert.Contains(t, err.Error(), "[sql: SELECT 1]")
}
