package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("put cart item: %w", New(CodeCartQuantityInvalid, "quantity must be positive"))

	if !stderrors.Is(err, New(CodeCartQuantityInvalid, "")) {
		t.Fatal("expected wrapped error to match by code")
	}
	if stderrors.Is(err, New(CodeOrderEmpty, "")) {
		t.Fatal("expected different code not to match")
	}
}

func TestWrapUnwrapsCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(CodeUnknown, "store operation", cause)

	if !stderrors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
	if err.Error() != "store operation" {
		t.Fatalf("Error() = %q, want %q", err.Error(), "store operation")
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: http.StatusOK},
		{name: "plain error", err: stderrors.New("boom"), want: http.StatusInternalServerError},
		{name: "validation", err: New(CodeOperationKindInvalid, "bad kind"), want: http.StatusBadRequest},
		{name: "wrapped validation", err: fmt.Errorf("enqueue: %w", New(CodeOperationEntityMissing, "missing")), want: http.StatusBadRequest},
		{name: "unauthenticated", err: New(CodeUnauthenticated, "no token"), want: http.StatusUnauthorized},
		{name: "forbidden", err: New(CodeForbidden, "admin only"), want: http.StatusForbidden},
		{name: "not found", err: New(CodeNotFound, "missing"), want: http.StatusNotFound},
		{name: "conflict", err: New(CodeInsufficientStock, "short"), want: http.StatusConflict},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := HTTPStatus(tc.err); got != tc.want {
				t.Fatalf("HTTPStatus() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(nil); got != "" {
		t.Fatalf("CodeOf(nil) = %q, want empty", got)
	}
	if got := CodeOf(stderrors.New("x")); got != CodeUnknown {
		t.Fatalf("CodeOf(plain) = %q, want %q", got, CodeUnknown)
	}
	meta := WithMetadata(CodeProductIDEmpty, "product id is required", map[string]string{"field": "id"})
	if got := CodeOf(meta); got != CodeProductIDEmpty {
		t.Fatalf("CodeOf(meta) = %q, want %q", got, CodeProductIDEmpty)
	}
}
