package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/tbourn/go-donation-backend/internal/services"
)

func TestCleanup_ReportsSweepCounts(t *testing.T) {
	sweep := &stubSweepSvc{rep: services.SweepReport{Checked: 4, Verified: 2, Restored: 1, Failed: 1}}
	r := newTestRouter(New(&stubAllocSvc{}, nil, sweep, nil, false))

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		w := doJSON(t, r, method, "/api/cleanup", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s status = %d; body = %s", method, w.Code, w.Body.String())
		}

		var resp CleanupResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Status != "success" || resp.Checked != 4 || resp.Verified != 2 || resp.Restored != 1 || resp.Failed != 1 {
			t.Fatalf("unexpected response: %+v", resp)
		}
	}
}

func TestCleanup_SweepFailure(t *testing.T) {
	sweep := &stubSweepSvc{err: errors.New("pool store unreachable")}
	r := newTestRouter(New(&stubAllocSvc{}, nil, sweep, nil, false))

	w := doJSON(t, r, http.MethodPost, "/api/cleanup", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d; want 500", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != ErrCodeSweepFailed {
		t.Fatalf("code = %q; want %q", resp.Code, ErrCodeSweepFailed)
	}
}
