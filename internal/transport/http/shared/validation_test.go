package shared

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type samplePayload struct {
	Code   string  `json:"code" validate:"required,max=10"`
	Method string  `json:"accrualMethod" validate:"omitempty,oneof=MONTHLY YEARLY"`
	Rate   float64 `json:"monthlyRate" validate:"gte=0"`
}

func TestValidatorStructUsesJSONNames(t *testing.T) {
	v := NewValidator()
	v.Struct(samplePayload{Method: "WEEKLY", Rate: -1})

	issues := v.Issues()
	if len(issues) != 3 {
		t.Fatalf("expected 3 issues, got %+v", issues)
	}
	want := map[string]string{
		"accrualMethod": "must be one of: MONTHLY YEARLY",
		"code":          "is required",
		"monthlyRate":   "must be at least 0",
	}
	for _, issue := range issues {
		if want[issue.Field] != issue.Reason {
			t.Fatalf("unexpected issue %+v", issue)
		}
	}
}

func TestValidatorRejectWritesEnvelope(t *testing.T) {
	v := NewValidator()
	from, _ := v.Date("fromDate", "2026-03-10")
	to, _ := v.Date("toDate", "2026-03-01")
	v.DateOrder("fromDate", from, "toDate", to)

	rec := httptest.NewRecorder()
	if !v.Reject(rec, "req-1") {
		t.Fatal("expected reject")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestValidatorDateRejectsGarbage(t *testing.T) {
	v := NewValidator()
	if _, ok := v.Date("fromDate", "10/03/2026"); ok {
		t.Fatal("expected invalid date")
	}
	if !v.HasIssues() {
		t.Fatal("expected issue recorded")
	}
}

func TestParsePaginationClamps(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500&offset=-3", nil)
	p := ParsePagination(req, 50, 200)
	if p.Limit != 200 || p.Offset != 0 {
		t.Fatalf("unexpected pagination %+v", p)
	}
}

func TestPaginateWindows(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	page := Paginate(items, Pagination{Limit: 2, Offset: 3})
	if page.Total != 5 || len(page.Items) != 2 || page.Items[0] != 4 {
		t.Fatalf("unexpected page %+v", page)
	}
	empty := Paginate(items, Pagination{Limit: 2, Offset: 10})
	if empty.Items == nil || len(empty.Items) != 0 {
		t.Fatalf("expected empty non-nil window, got %#v", empty.Items)
	}
}

func TestParseDateTruncatesToUTCDay(t *testing.T) {
	got, err := ParseDate("2026-03-09T23:30:00-02:00")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %s want %s", got, want)
	}
	if _, err := ParseDate("09/03/2026"); err == nil {
		t.Fatal("expected error for non ISO date")
	}
}
