package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "github.com/wholesale-storefront/storefront/internal/platform/errors"
)

func TestWriteErrorUsesDomainCode(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, apperrors.New(apperrors.CodeCartQuantityInvalid, "quantity must be positive"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Code != string(apperrors.CodeCartQuantityInvalid) || body.Error != "quantity must be positive" {
		t.Fatalf("body = %+v", body)
	}
}

func TestWriteErrorHidesInternalMessages(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("database is locked"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if strings.Contains(rec.Body.String(), "locked") {
		t.Fatalf("internal message leaked: %s", rec.Body.String())
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		Quantity int `json:"quantity"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid", body: `{"quantity":3}`},
		{name: "empty", body: ``, wantErr: true},
		{name: "unknown field", body: `{"qty":3}`, wantErr: true},
		{name: "malformed", body: `{"quantity":`, wantErr: true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(tc.body))
			var got payload
			err := DecodeJSON(req, &got)
			if tc.wantErr {
				if apperrors.CodeOf(err) != apperrors.CodeInvalidJSON {
					t.Fatalf("DecodeJSON() error = %v, want invalid json", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeJSON() error = %v", err)
			}
			if got.Quantity != 3 {
				t.Fatalf("quantity = %d, want 3", got.Quantity)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		want   string
	}{
		{header: "Bearer abc.def", want: "abc.def"},
		{header: "bearer  abc", want: "abc"},
		{header: "Basic abc", want: ""},
		{header: "", want: ""},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		if got := BearerToken(req); got != tc.want {
			t.Fatalf("BearerToken(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}

func TestRecoverPanic(t *testing.T) {
	handler := RecoverPanic()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cart", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}
