package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/jnana/internal/adapters/http/api"
	service "github.com/okian/jnana/internal/app"
	"github.com/okian/jnana/internal/domain/agreement"
	"github.com/okian/jnana/internal/domain/model"
	"github.com/okian/jnana/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

type mockDeps struct {
	nextErr   error
	submitErr error
	skipErr   error
	pingErr   error

	submitted []types.SubmitRequest
	skipped   []types.SkipRequest
	doneIDs   []string
	lastEdit  string
	released  []string
}

func (m *mockDeps) Next(_ context.Context, workerID string) (types.WorkView, error) {
	if m.nextErr != nil {
		return types.WorkView{}, m.nextErr
	}
	if workerID == "idlexx" {
		return types.WorkView{Status: types.StatusNoneAvailable}, nil
	}
	return types.WorkView{Status: types.StatusAssigned, ItemID: "item-1", SecondsLeft: 420}, nil
}

func (m *mockDeps) Submit(_ context.Context, _ string, req types.SubmitRequest) (types.SubmitResult, error) {
	if m.submitErr != nil {
		return types.SubmitResult{}, m.submitErr
	}
	m.submitted = append(m.submitted, req)
	return types.SubmitResult{ItemID: req.ItemID, Recorded: len(req.Labels)}, nil
}

func (m *mockDeps) Skip(_ context.Context, _ string, req types.SkipRequest) error {
	if m.skipErr != nil {
		return m.skipErr
	}
	m.skipped = append(m.skipped, req)
	return nil
}

func (m *mockDeps) Onboard(_ context.Context, req types.OnboardRequest) (model.Worker, error) {
	if req.ID == "takenx" {
		return model.Worker{}, fmt.Errorf("%w: takenx", service.ErrWorkerExists)
	}
	return model.Worker{ID: req.ID, FirstName: req.FirstName}, nil
}

func (m *mockDeps) IDOptions(_ context.Context, first, last string) (types.IDOptions, error) {
	if first == "" {
		return types.IDOptions{}, service.ErrInvalidRequest
	}
	return types.IDOptions{Options: []string{"ravshx", "rashax"}}, nil
}

func (m *mockDeps) Activity(_ context.Context, workerID string, limit int) ([]model.Activity, error) {
	return []model.Activity{{WorkerID: workerID, Action: model.ActionAllocated, Detail: map[string]string{"limit": fmt.Sprint(limit)}}}, nil
}

func (m *mockDeps) ReleaseSession(workerID string) {
	m.released = append(m.released, workerID)
}

func (m *mockDeps) AddNote(_ context.Context, workerID string, req types.NoteRequest) (model.Note, error) {
	if req.ItemID == "missing" {
		return model.Note{}, service.ErrUnknownItem
	}
	return model.Note{ItemID: req.ItemID, WorkerID: workerID, Text: req.Text, SubIndex: -1}, nil
}

func (m *mockDeps) Notes(_ context.Context, itemID string) ([]model.Note, error) {
	if itemID == "missing" {
		return nil, service.ErrUnknownItem
	}
	return nil, nil
}

func (m *mockDeps) Report(context.Context) (types.Report, error) {
	return types.Report{Quota: 5, Threshold: 0.4}, nil
}

func (m *mockDeps) Export(context.Context) ([]agreement.ExportRecord, error) {
	return []agreement.ExportRecord{{ItemID: "item-1", SubIndex: 0, Question: "q", Answer: "a", Score: 1}}, nil
}

func (m *mockDeps) EditQueue(_ context.Context, status string) ([]model.EditRequest, error) {
	m.lastEdit = status
	return nil, nil
}

func (m *mockDeps) MarkEditDone(_ context.Context, itemID string) error {
	if itemID == "missing" {
		return service.ErrUnknownItem
	}
	m.doneIDs = append(m.doneIDs, itemID)
	return nil
}

func (m *mockDeps) Ping(context.Context) error { return m.pingErr }

func (m *mockDeps) Stats(context.Context) map[string]any {
	return map[string]any{"started": true}
}

func newMux(deps *mockDeps, opts ...api.ServerOption) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, opts...).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path, worker, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if worker != "" {
		req.Header.Set(api.WorkerHeader, worker)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func errorCode(w *httptest.ResponseRecorder) string {
	var body struct {
		Code   string `json:"code"`
		Action string `json:"action"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body.Code
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux(&mockDeps{})

		Convey("Then infrastructure endpoints answer", func() {
			So(do(mux, "GET", "/healthz", "", "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, "GET", "/stats", "", "").Code, ShouldEqual, http.StatusOK)
			So(do(mux, "GET", "/metrics", "", "").Code, ShouldEqual, http.StatusOK)

			w := do(mux, "GET", "/dashboard", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "/api/admin/report")
		})

		Convey("Then unknown paths are 404", func() {
			So(do(mux, "GET", "/unknown", "", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then wrong methods are 404", func() {
			So(do(mux, "GET", "/api/work/next", "wrkone", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})

	Convey("Given a store that does not answer", t, func() {
		mux := newMux(&mockDeps{pingErr: errors.New("database is locked")})

		Convey("Then /healthz reports 503", func() {
			So(do(mux, "GET", "/healthz", "", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestWorkEndpoints(t *testing.T) {
	Convey("Given the work endpoints", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps)

		Convey("When no worker header is sent", func() {
			w := do(mux, "POST", "/api/work/next", "", "")
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
			So(errorCode(w), ShouldEqual, "MISSING_WORKER_ID")
		})

		Convey("When a worker asks for work", func() {
			w := do(mux, "POST", "/api/work/next", "wrkone", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var view types.WorkView
			So(json.Unmarshal(w.Body.Bytes(), &view), ShouldBeNil)
			So(view.ItemID, ShouldEqual, "item-1")
			So(view.SecondsLeft, ShouldEqual, 420)
		})

		Convey("When nothing is left", func() {
			w := do(mux, "POST", "/api/work/next", "idlexx", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, `{"status":"none_available"}`)
		})

		Convey("When a submission is sent", func() {
			w := do(mux, "POST", "/api/work/submit", "wrkone", `{"item_id":"item-1","labels":["Correct","Doubt"]}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.submitted, ShouldHaveLength, 1)
			So(deps.submitted[0].Labels, ShouldResemble, []string{"Correct", "Doubt"})
		})

		Convey("When the body is malformed", func() {
			w := do(mux, "POST", "/api/work/submit", "wrkone", `{"item_id":`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(errorCode(w), ShouldEqual, "INVALID_REQUEST")

			w = do(mux, "POST", "/api/work/skip", "wrkone", `{"item_id":"a","surprise":1}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a skip is sent", func() {
			w := do(mux, "POST", "/api/work/skip", "wrkone", `{"item_id":"item-1","reason":"invalid_content"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.skipped[0].Reason, ShouldEqual, "invalid_content")
		})
	})

	Convey("Given service errors", t, func() {
		cases := []struct {
			err    error
			status int
			code   string
		}{
			{fmt.Errorf("%w: nobody", service.ErrNotOnboarded), http.StatusForbidden, "WORKER_NOT_ONBOARDED"},
			{service.ErrIncompleteSubmission, http.StatusBadRequest, "INCOMPLETE_SUBMISSION"},
			{fmt.Errorf("%w: a", service.ErrReservationExpired), http.StatusConflict, "RESERVATION_EXPIRED"},
			{service.ErrNoReservation, http.StatusConflict, "NO_RESERVATION"},
			{service.ErrSubmissionInFlight, http.StatusConflict, "SUBMISSION_IN_FLIGHT"},
			{fmt.Errorf("%w: disk I/O error", service.ErrUnavailable), http.StatusServiceUnavailable, "RETRY_LATER"},
			{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
		}
		for _, c := range cases {
			Convey(fmt.Sprintf("Then %s maps to %d", c.code, c.status), func() {
				mux := newMux(&mockDeps{submitErr: c.err})
				w := do(mux, "POST", "/api/work/submit", "wrkone", `{"item_id":"a","labels":[]}`)
				So(w.Code, ShouldEqual, c.status)
				So(errorCode(w), ShouldEqual, c.code)
			})
		}

		Convey("Then an expired reservation tells the client to fetch the next item", func() {
			mux := newMux(&mockDeps{submitErr: service.ErrReservationExpired})
			w := do(mux, "POST", "/api/work/submit", "wrkone", `{"item_id":"a","labels":[]}`)
			So(w.Body.String(), ShouldContainSubstring, `"action":"fetch_next"`)
		})
	})
}

func TestWorkerAndNoteEndpoints(t *testing.T) {
	Convey("Given the worker and note endpoints", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps)

		Convey("Then onboarding creates workers", func() {
			w := do(mux, "POST", "/api/workers", "", `{"id":"ravshx","first_name":"Ravi","last_name":"Shah","phone":"1"}`)
			So(w.Code, ShouldEqual, http.StatusCreated)

			w = do(mux, "POST", "/api/workers", "", `{"id":"takenx","first_name":"T","last_name":"X","phone":"1"}`)
			So(w.Code, ShouldEqual, http.StatusConflict)
			So(errorCode(w), ShouldEqual, "WORKER_EXISTS")
		})

		Convey("Then id options are offered", func() {
			w := do(mux, "GET", "/api/workers/id-options?first=Ravi&last=Shah", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "ravshx")

			w = do(mux, "GET", "/api/workers/id-options?last=Shah", "", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then activity honours the limit", func() {
			w := do(mux, "GET", "/api/workers/me/activity?limit=7", "wrkone", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"limit":"7"`)

			w = do(mux, "GET", "/api/workers/me/activity?limit=-1", "wrkone", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then a worker can sign out", func() {
			w := do(mux, "POST", "/api/workers/me/sign-out", "wrkone", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"signed_out"`)
			So(deps.released, ShouldResemble, []string{"wrkone"})

			w = do(mux, "POST", "/api/workers/me/sign-out", "", "")
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
			So(do(mux, "GET", "/api/workers/me/sign-out", "wrkone", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Then notes are added and listed", func() {
			w := do(mux, "POST", "/api/notes", "wrkone", `{"item_id":"item-1","text":"typo"}`)
			So(w.Code, ShouldEqual, http.StatusCreated)

			w = do(mux, "POST", "/api/notes", "wrkone", `{"item_id":"missing","text":"typo"}`)
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(errorCode(w), ShouldEqual, "UNKNOWN_ITEM")

			w = do(mux, "GET", "/api/items/item-1/notes", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
		})
	})
}

func TestAdminEndpoints(t *testing.T) {
	Convey("Given the admin endpoints", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps)

		Convey("Then the export is offered as a download", func() {
			w := do(mux, "GET", "/api/admin/export", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Disposition"), ShouldStartWith, "attachment; filename=")
			var recs []agreement.ExportRecord
			So(json.Unmarshal(w.Body.Bytes(), &recs), ShouldBeNil)
			So(recs, ShouldHaveLength, 1)
		})

		Convey("Then the report answers", func() {
			w := do(mux, "GET", "/api/admin/report", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"quota":5`)
		})

		Convey("Then the edit queue defaults to pending", func() {
			So(do(mux, "GET", "/api/admin/edit-queue", "", "").Code, ShouldEqual, http.StatusOK)
			So(deps.lastEdit, ShouldEqual, model.EditPending)

			So(do(mux, "GET", "/api/admin/edit-queue?status=all", "", "").Code, ShouldEqual, http.StatusOK)
			So(deps.lastEdit, ShouldEqual, "")
		})

		Convey("Then edit requests can be closed", func() {
			So(do(mux, "POST", "/api/admin/edit-queue/item-1/done", "", "").Code, ShouldEqual, http.StatusOK)
			So(deps.doneIDs, ShouldResemble, []string{"item-1"})
			So(do(mux, "POST", "/api/admin/edit-queue/missing/done", "", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestWorkerLimiter(t *testing.T) {
	Convey("Given a limiter with a burst of two and a negligible refill", t, func() {
		mux := newMux(&mockDeps{}, api.WithLimiter(api.NewWorkerLimiter(0.001, 2)))

		Convey("When one worker sends three requests", func() {
			codes := make([]int, 3)
			for i := range codes {
				codes[i] = do(mux, "POST", "/api/work/next", "wrkone", "").Code
			}

			Convey("Then the third is rejected", func() {
				So(codes, ShouldResemble, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests})
				w := do(mux, "POST", "/api/work/next", "wrkone", "")
				So(errorCode(w), ShouldEqual, "RATE_LIMITED")
				So(w.Body.String(), ShouldContainSubstring, "wrkone")
			})

			Convey("Then other workers are unaffected", func() {
				So(do(mux, "POST", "/api/work/next", "wrktwo", "").Code, ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestWorkerLimiterIdle(t *testing.T) {
	Convey("Given a limiter that forgets buckets after 200ms", t, func() {
		l := api.NewWorkerLimiter(0.001, 1, api.WithLimiterIdle(200*time.Millisecond))
		So(l.Allow("wrkone"), ShouldBeTrue)
		So(l.Allow("wrkone"), ShouldBeFalse)

		Convey("Then a worker that keeps asking stays limited", func() {
			for i := 0; i < 4; i++ {
				time.Sleep(50 * time.Millisecond)
				So(l.Allow("wrkone"), ShouldBeFalse)
			}
		})

		Convey("Then an idle worker starts over with a fresh bucket", func() {
			time.Sleep(400 * time.Millisecond)
			So(l.Allow("wrkone"), ShouldBeTrue)
		})
	})
}

func TestRequestID(t *testing.T) {
	Convey("Given a handler behind RequestID", t, func() {
		var seen string
		h := api.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = r.Header.Get(api.RequestIDHeader)
		}))

		Convey("A caller id is echoed", func() {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.Header.Set(api.RequestIDHeader, "abc-123")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			So(seen, ShouldEqual, "abc-123")
			So(rec.Header().Get(api.RequestIDHeader), ShouldEqual, "abc-123")
		})

		Convey("A missing id is generated", func() {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			So(seen, ShouldHaveLength, 36)
			So(rec.Header().Get(api.RequestIDHeader), ShouldEqual, seen)
		})
	})
}
