package pgerr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/m3rciful/starterbot/core/database/pgerr"
)

func TestCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain error", err: errors.New("boom"), want: ""},
		{name: "pq error", err: &pq.Error{Code: "23505"}, want: pgerr.UniqueViolation},
		{name: "wrapped pq error", err: fmt.Errorf("insert: %w", &pq.Error{Code: "42P01"}), want: "42P01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, pgerr.Code(tt.err))
		})
	}
}

func TestClassifiers(t *testing.T) {
	t.Parallel()

	unique := fmt.Errorf("record: %w", &pq.Error{Code: "23505", Constraint: "schema_migrations_pkey"})
	assert.True(t, pgerr.IsUniqueViolation(unique))
	assert.False(t, pgerr.IsUniqueViolation(&pq.Error{Code: pgerr.DuplicateTable}))

	assert.True(t, pgerr.IsTimeout(&pq.Error{Code: "57014"}))
	assert.True(t, pgerr.IsTimeout(&pq.Error{Code: "55P03"}))
	assert.False(t, pgerr.IsTimeout(errors.New("timeout")))
}
