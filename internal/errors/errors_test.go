package errors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredicates(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantNotFound  bool
		wantMalformed bool
		wantPermanent bool
		wantDegraded  bool
		wantInternal  bool
	}{
		{name: "not found", err: NewNotFound("user %s", "u1"), wantNotFound: true},
		{name: "malformed", err: NewMalformed("missing %s", "vendor_id"), wantMalformed: true},
		{name: "invalid argument", err: NewInvalid("limit %d", -1)},
		{name: "permanent keeps cause", err: Permanent(context.Canceled), wantPermanent: true, wantInternal: true},
		{name: "degraded", err: Degraded(errors.New("db down")), wantDegraded: true, wantInternal: true},
		{name: "plain", err: errors.New("boom"), wantInternal: true},
		{name: "nil", err: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantNotFound, IsNotFound(tt.err))
			assert.Equal(t, tt.wantMalformed, IsMalformed(tt.err))
			assert.Equal(t, tt.wantPermanent, IsPermanent(tt.err))
			assert.Equal(t, tt.wantDegraded, IsDegraded(tt.err))
			assert.Equal(t, tt.wantInternal, IsInternal(tt.err))
		})
	}
}

func TestPermanentUnwrapsCause(t *testing.T) {
	err := Permanent(context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, Permanent(nil))
}
