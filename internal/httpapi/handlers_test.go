package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"notif/internal/cache"
	"notif/internal/domain"
	"notif/internal/pipeline"
	"notif/internal/store"
	"notif/internal/store/memstore"
)

func TestMetricsHandlerListForApplication(t *testing.T) {
	st := memstore.New()
	if err := st.CreatePushJob(context.Background(), store.PushJobInsert{ID: "job1", AppID: "app1", RawJSONMessage: `{"alert":"hi"}`}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	mc := cache.New()
	mc.Set("app1", cache.KindTotalReceivers, 42)

	h := &MetricsHandler{Store: st, Cache: mc}
	srv := New()
	RegisterMetrics(srv, h)

	req := httptest.NewRequest(http.MethodGet, "/rest/metrics/messages/application/app1", nil)
	rr := httptest.NewRecorder()
	srv.Mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("receivers"); got != "42" {
		t.Fatalf("receivers header = %q, want 42", got)
	}
	if got := rr.Header().Get("total"); got != "1" {
		t.Fatalf("total header = %q, want 1", got)
	}

	var jobs []domain.PushMessageInformation
	if err := json.Unmarshal(rr.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "job1" {
		t.Fatalf("unexpected jobs in response: %+v", jobs)
	}
}

func TestMetricsHandlerMissingIDReturns404(t *testing.T) {
	// Calls the handler directly (bypassing the router, whose {id} route
	// segment never matches an empty path component anyway) to exercise
	// ListForApplication's own missing-id guard.
	h := &MetricsHandler{Store: memstore.New(), Cache: cache.New()}

	req := httptest.NewRequest(http.MethodGet, "/rest/metrics/messages/application/", nil)
	rr := httptest.NewRecorder()
	h.ListForApplication(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

type fakeSplitter struct {
	id  string
	err error
}

func (f fakeSplitter) Split(ctx context.Context, app domain.PushApplication, msg domain.UnifiedPushMessage, meta pipeline.SubmitterMeta) (string, error) {
	return f.id, f.err
}

func TestSplitHandlerSubmit(t *testing.T) {
	h := &SplitHandler{Splitter: fakeSplitter{id: "job1"}}
	srv := New()
	RegisterSplit(srv, h)

	body, err := json.Marshal(map[string]any{
		"Application": domain.PushApplication{Name: "myapp"},
		"Message":     domain.UnifiedPushMessage{Alert: "hi"},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/rest/messages/app1", bytes.NewReader(body))
	req.RemoteAddr = "10.0.0.1:54321"
	rr := httptest.NewRecorder()
	srv.Mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rr.Code, rr.Body.String())
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.ID != "job1" {
		t.Fatalf("ID = %q, want job1", resp.ID)
	}
}

func TestSplitHandlerBadBodyReturns400(t *testing.T) {
	h := &SplitHandler{Splitter: fakeSplitter{id: "job1"}}
	srv := New()
	RegisterSplit(srv, h)

	req := httptest.NewRequest(http.MethodPost, "/rest/messages/app1", bytes.NewReader([]byte("not json")))
	rr := httptest.NewRecorder()
	srv.Mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestSplitHandlerDependencyErrorReturns500(t *testing.T) {
	h := &SplitHandler{Splitter: fakeSplitter{err: errDependencyFailed}}
	srv := New()
	RegisterSplit(srv, h)

	body, _ := json.Marshal(map[string]any{"Application": domain.PushApplication{}, "Message": domain.UnifiedPushMessage{}})
	req := httptest.NewRequest(http.MethodPost, "/rest/messages/app1", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	srv.Mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
}

var errDependencyFailed = &splitError{"store unavailable"}

type splitError struct{ msg string }

func (e *splitError) Error() string { return e.msg }
