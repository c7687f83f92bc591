package fault

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	sentinel := errors.New("boom")
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", sentinel, KindUnknown},
		{"defect", Defect("op", "bad %d", 1), KindDefect},
		{"exhausted", Exhausted("op", sentinel), KindResourceExhausted},
		{"misconfigured", Misconfigured("op", "heap"), KindMisconfiguration},
		{"cancelled", Cancelled("op", context.Canceled), KindCancelled},
		{"bare deadline", context.DeadlineExceeded, KindCancelled},
		{"wrapped", fmt.Errorf("outer: %w", Exhausted("op", sentinel)), KindResourceExhausted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestError_UnwrapAndMessage(t *testing.T) {
	sentinel := errors.New("limit")
	err := Exhausted("registry.register", sentinel)

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, "registry.register: resource_exhausted: limit", err.Error())
	assert.True(t, Is(err, KindResourceExhausted))
	assert.False(t, Is(err, KindDefect))
}
