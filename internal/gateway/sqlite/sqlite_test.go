package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edarah/dbgateway/internal/errs"
	"github.com/edarah/dbgateway/internal/gateway"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		pred func(error) bool
	}{
		{name: "deadline", err: context.DeadlineExceeded, pred: errs.IsTimeout},
		{name: "no rows", err: sql.ErrNoRows, pred: errs.IsNotFound},
		{name: "missing file", err: errors.New("unable to open database file"), pred: errs.IsConnectionFailed},
		{name: "bad statement", err: errors.New("no such table: orders"), pred: errs.IsQueryFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.pred(mapError(tt.err, "op failed")))
		})
	}
}

func TestTag(t *testing.T) {
	assert.Equal(t, gateway.EngineSQLite, New(nil).Tag())
}
