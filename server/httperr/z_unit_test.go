package httperr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zintix-labs/flipvault/errs"
)

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{errs.NewCode(errs.Warn, "Unauthenticated", "x"), http.StatusUnauthorized},
		{errs.NewCode(errs.Warn, "AccessDenied", "x"), http.StatusForbidden},
		{errs.Wrap(errs.NewCode(errs.Warn, "UnknownRequest", "x"), "wrapped"), http.StatusNotFound},
		{errs.NewCode(errs.Warn, "InsufficientReserve", "x"), http.StatusConflict},
		{errs.NewCode(errs.Warn, "PayoutTransferFailed", "x"), http.StatusBadGateway},
		{errs.NewWarn("bad input"), http.StatusBadRequest},
		{errs.NewFatal("boom"), http.StatusInternalServerError},
		{errs.Wrap(context.DeadlineExceeded, "slow"), http.StatusGatewayTimeout},
	}
	for _, c := range cases {
		if got := StatusCode(c.err); got != c.want {
			t.Fatalf("%v: got %d want %d", c.err, got, c.want)
		}
	}
}

func TestErrsWritesJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	Errs(rec, errs.NewCode(errs.Warn, "NotExpired", "wager has not expired"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
	var b Body
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.Code != "NotExpired" || b.Error == "" {
		t.Fatalf("body = %+v", b)
	}
}
