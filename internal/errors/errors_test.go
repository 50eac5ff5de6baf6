package errors_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/victornm/quizarena/internal/errors"
)

func TestConvert(t *testing.T) {
	notFound := errors.Newf(errors.CodeNotFound, "lobby not found: code=%s", "ABC123")

	tests := map[string]struct {
		err      error
		wantCode errors.Code
		wantHTTP int
	}{
		"error": {
			err:      notFound,
			wantCode: errors.CodeNotFound,
			wantHTTP: http.StatusNotFound,
		},
		"wrapped error": {
			err:      fmt.Errorf("start game: %w", notFound),
			wantCode: errors.CodeNotFound,
			wantHTTP: http.StatusNotFound,
		},
		"plain error": {
			err:      stderrors.New("boom"),
			wantCode: errors.CodeInternal,
			wantHTTP: http.StatusInternalServerError,
		},
		"deadline": {
			err:      fmt.Errorf("query: %w", context.DeadlineExceeded),
			wantCode: errors.CodeDeadlineExceeded,
			wantHTTP: http.StatusGatewayTimeout,
		},
		"canceled": {
			err:      context.Canceled,
			wantCode: errors.CodeCanceled,
			wantHTTP: 499,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			e := errors.Convert(tc.err)
			assert.Equal(t, tc.wantCode, e.Code)
			assert.Equal(t, tc.wantHTTP, e.HTTPStatusCode())
		})
	}
}

func TestError_Is(t *testing.T) {
	sentinel := errors.Newf(errors.CodeFailedPrecondition, "game not active")

	assert.True(t, stderrors.Is(fmt.Errorf("answer: %w", errors.Newf(errors.CodeFailedPrecondition, "game not active")), sentinel))
	assert.False(t, stderrors.Is(errors.Newf(errors.CodeFailedPrecondition, "question closed"), sentinel))
	assert.False(t, stderrors.Is(errors.Newf(errors.CodeNotFound, "game not active"), sentinel))
}

func TestError_Cause(t *testing.T) {
	cause := stderrors.New("connection refused")
	e := errors.New(errors.CodeUnavailable, errors.WithCause(cause), errors.WithMessagef("redis down"))

	assert.ErrorIs(t, e, cause)
	assert.Equal(t, "code: 14, message: redis down, err: connection refused", e.Error())
	assert.Equal(t, http.StatusServiceUnavailable, e.HTTPStatusCode())

	s, ok := status.FromError(e)
	assert.True(t, ok)
	assert.Equal(t, codes.Unavailable, s.Code())
	assert.Equal(t, "redis down", s.Message())
}
