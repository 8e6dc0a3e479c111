package resourcecache

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-resource-cache/apierror"
	"github.com/goliatone/go-resource-cache/cache"
	"github.com/goliatone/go-resource-cache/endpoint"
	"github.com/goliatone/go-resource-cache/invalidation"
	"github.com/goliatone/go-resource-cache/pkg/testsupport"
	"github.com/goliatone/go-resource-cache/query"
	"github.com/goliatone/go-resource-cache/registry"
	"github.com/goliatone/go-resource-cache/session"
	"github.com/goliatone/go-resource-cache/transport"
)

const departmentsPath = "/api/config/acme/departments/"

var acme = session.Session{Token: "secret", Scope: "acme"}

type department struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	backend  *testsupport.Backend
	store    *Store
	executor *transport.Executor
	resolver *endpoint.Resolver
}

func newHarness(t *testing.T, defs []registry.Definition, opts ...Option) *harness {
	t.Helper()

	backend := testsupport.NewBackend(t)

	svc, err := cache.NewCacheService(cache.DefaultConfig())
	if err != nil {
		t.Fatalf("cache service: %v", err)
	}
	reg, err := registry.New(defs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	executor, err := transport.New(transport.Config{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("executor: %v", err)
	}

	return &harness{
		backend:  backend,
		store:    NewStore(svc, append([]Option{WithRegistry(reg)}, opts...)...),
		executor: executor,
		resolver: endpoint.NewResolver(backend.URL()),
	}
}

func newDepartments(t *testing.T, h *harness, def registry.Definition) *Client[department] {
	t.Helper()
	c, err := NewClient[department](h.store, h.executor, h.resolver, def)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func noRetry() *registry.RetryPolicy { return &registry.RetryPolicy{} }

func departmentsDef() registry.Definition {
	return registry.Definition{Name: "departments", Retry: noRetry()}
}

func departmentsPage(total int) map[string]any {
	return testsupport.PageEnvelope([]department{{ID: "d-11", Name: "Operations"}}, total, 2, 10)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestList_DepartmentsScenario(t *testing.T) {
	h := newHarness(t, []registry.Definition{departmentsDef()})
	h.backend.JSON(http.MethodGet, departmentsPath, http.StatusOK, departmentsPage(35))
	h.backend.Handle(http.MethodPost, departmentsPath, func(r *http.Request, body []byte) (int, any) {
		var in department
		_ = json.Unmarshal(body, &in)
		in.ID = "d-36"
		return http.StatusCreated, testsupport.RecordEnvelope(in)
	})
	departments := newDepartments(t, h, departmentsDef())

	ctx := context.Background()
	params := query.Params{Search: "ops", Page: query.Int(2), PerPage: query.Int(10)}

	page, err := departments.List(ctx, acme, params)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Paginate != (query.Pagination{Total: 35, Page: 2, PerPage: 10, Pages: 4}) {
		t.Fatalf("unexpected pagination %+v", page.Paginate)
	}
	if len(page.Data) != 1 || page.Data[0].Name != "Operations" {
		t.Fatalf("unexpected data %+v", page.Data)
	}

	req, _ := h.backend.LastRequest()
	if req.Query != "page=2&perpage=10&search=ops" {
		t.Errorf("query = %q", req.Query)
	}

	// same key: served from cache
	if _, err := departments.List(ctx, acme, params); err != nil {
		t.Fatal(err)
	}
	if got := h.backend.Calls(http.MethodGet, departmentsPath); got != 1 {
		t.Fatalf("expected 1 GET before the write, got %d", got)
	}

	created, err := departments.Create(ctx, acme, department{Name: "Ops Night Shift"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != "d-36" {
		t.Errorf("created = %+v", created)
	}

	if _, err := departments.List(ctx, acme, params); err != nil {
		t.Fatal(err)
	}
	if got := h.backend.Calls(http.MethodGet, departmentsPath); got != 2 {
		t.Fatalf("expected refetch after create, got %d GETs", got)
	}
}

func TestList_ConcurrentIdenticalReadsShareOneRequest(t *testing.T) {
	h := newHarness(t, []registry.Definition{departmentsDef()})
	h.backend.JSON(http.MethodGet, departmentsPath, http.StatusOK, departmentsPage(35))
	departments := newDepartments(t, h, departmentsDef())

	release := h.backend.Hold()
	params := query.Params{Page: query.Int(2), PerPage: query.Int(10)}

	var wg sync.WaitGroup
	var failures int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := departments.List(context.Background(), acme, params); err != nil {
				atomic.AddInt32(&failures, 1)
			}
		}()
	}

	waitFor(t, "first request", func() bool { return h.backend.TotalCalls() >= 1 })
	time.Sleep(20 * time.Millisecond)
	release()
	wg.Wait()

	if failures != 0 {
		t.Fatalf("%d readers failed", failures)
	}
	if got := h.backend.TotalCalls(); got != 1 {
		t.Fatalf("expected one network call, got %d", got)
	}
}

func TestList_DifferentScopesDoNotShare(t *testing.T) {
	h := newHarness(t, []registry.Definition{departmentsDef()})
	h.backend.JSON(http.MethodGet, departmentsPath, http.StatusOK, departmentsPage(35))
	h.backend.JSON(http.MethodGet, "/api/config/acme2/departments/", http.StatusOK, departmentsPage(3))
	departments := newDepartments(t, h, departmentsDef())

	a, err := departments.List(context.Background(), acme, query.Params{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := departments.List(context.Background(), session.Session{Token: "secret", Scope: "acme2"}, query.Params{})
	if err != nil {
		t.Fatal(err)
	}
	if a.Paginate.Total != 35 || b.Paginate.Total != 3 {
		t.Fatalf("scopes mixed up: %d / %d", a.Paginate.Total, b.Paginate.Total)
	}
}

func TestList_DistinctURLsDoNotShareEntries(t *testing.T) {
	lines := registry.Definition{Name: "purchase-orders/lines", Retry: noRetry()}
	flat := registry.Definition{Name: "purchase-orders-lines", Retry: noRetry()}
	h := newHarness(t, []registry.Definition{departmentsDef(), lines, flat})
	h.backend.JSON(http.MethodGet, departmentsPath, http.StatusOK, departmentsPage(35))
	h.backend.JSON(http.MethodGet, "/api/config/ acme/departments/", http.StatusOK, departmentsPage(2))
	h.backend.JSON(http.MethodGet, "/api/config/acme/purchase-orders/lines/", http.StatusOK, departmentsPage(7))
	h.backend.JSON(http.MethodGet, "/api/config/acme/purchase-orders-lines/", http.StatusOK, departmentsPage(9))
	ctx := context.Background()

	departments := newDepartments(t, h, departmentsDef())
	if _, err := departments.List(ctx, acme, query.Params{}); err != nil {
		t.Fatal(err)
	}
	padded, err := departments.List(ctx, session.Session{Token: "secret", Scope: " acme"}, query.Params{})
	if err != nil {
		t.Fatal(err)
	}
	if padded.Paginate.Total != 2 {
		t.Errorf("scope %q served another tenant's page: total %d", " acme", padded.Paginate.Total)
	}
	if got := h.backend.Calls(http.MethodGet, "/api/config/ acme/departments/"); got != 1 {
		t.Errorf("scope %q must fetch its own page, got %d calls", " acme", got)
	}

	a, err := newDepartments(t, h, lines).List(ctx, acme, query.Params{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := newDepartments(t, h, flat).List(ctx, acme, query.Params{})
	if err != nil {
		t.Fatal(err)
	}
	if a.Paginate.Total != 7 || b.Paginate.Total != 9 {
		t.Errorf("resources mixed up: %d / %d", a.Paginate.Total, b.Paginate.Total)
	}
}

func TestList_RecordTypesKeepSeparateEntries(t *testing.T) {
	h := newHarness(t, []registry.Definition{departmentsDef()})
	h.backend.JSON(http.MethodGet, departmentsPath, http.StatusOK, departmentsPage(35))
	ctx := context.Background()

	typed := newDepartments(t, h, departmentsDef())
	generic, err := NewClient[map[string]any](h.store, h.executor, h.resolver, departmentsDef())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	for range 2 {
		page, err := typed.List(ctx, acme, query.Params{})
		if err != nil {
			t.Fatalf("typed list: %v", err)
		}
		if page.Data[0].Name != "Operations" {
			t.Errorf("typed list: %+v", page.Data)
		}
		raw, err := generic.List(ctx, acme, query.Params{})
		if err != nil {
			t.Fatalf("map list: %v", err)
		}
		if raw.Data[0]["name"] != "Operations" {
			t.Errorf("map list: %+v", raw.Data)
		}
	}
	if got := h.backend.Calls(http.MethodGet, departmentsPath); got != 2 {
		t.Errorf("expected one fetch per record type, got %d", got)
	}

	if err := typed.Invalidate(ctx, acme.Scope); err != nil {
		t.Fatal(err)
	}
	if _, err := generic.List(ctx, acme, query.Params{}); err != nil {
		t.Fatal(err)
	}
	if got := h.backend.Calls(http.MethodGet, departmentsPath); got != 3 {
		t.Errorf("invalidation must reach every record type, got %d calls", got)
	}
}

func TestUse_DisabledWithoutSession(t *testing.T) {
	h := newHarness(t, []registry.Definition{departmentsDef()})
	departments := newDepartments(t, h, departmentsDef())
	ctx := context.Background()

	for _, sess := range []session.Session{{Scope: "acme"}, {Token: "secret"}, {}} {
		state := departments.UseList(ctx, sess, query.Params{})
		if !state.Disabled || state.IsLoading || state.Err != nil {
			t.Errorf("session %+v: state %+v", sess, state)
		}

		record := departments.UseRecord(ctx, sess, "d-1")
		if !record.Disabled || record.IsLoading || record.Err != nil {
			t.Errorf("session %+v: record state %+v", sess, record)
		}

		obs := departments.WatchList(ctx, sess, query.Params{})
		select {
		case <-obs.Done():
		default:
			t.Error("disabled observer must be resolved")
		}
		if s := obs.State(); !s.Disabled || s.IsLoading {
			t.Errorf("observer state %+v", s)
		}
	}

	if got := h.backend.TotalCalls(); got != 0 {
		t.Fatalf("disabled reads made %d calls", got)
	}

	_, err := departments.List(ctx, session.Session{Scope: "acme"}, query.Params{})
	if !apierror.IsPrecondition(err) {
		t.Fatalf("imperative read without token must fail with precondition, got %v", err)
	}
}

func TestList_EmptyBodyIsADecodeFailure(t *testing.T) {
	h := newHarness(t, []registry.Definition{departmentsDef()})
	h.backend.JSON(http.MethodGet, departmentsPath, http.StatusOK, nil)
	h.backend.JSON(http.MethodGet, departmentsPath+"d-1", http.StatusOK, nil)
	departments := newDepartments(t, h, departmentsDef())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		page, err := departments.List(ctx, acme, query.Params{})
		if apierror.KindOf(err) != apierror.KindDecode {
			t.Fatalf("expected decode failure, got %v (page %+v)", err, page)
		}
	}
	if got := h.backend.Calls(http.MethodGet, departmentsPath); got != 2 {
		t.Errorf("an empty page must not be cached, got %d calls", got)
	}

	if _, err := departments.Get(ctx, acme, "d-1"); apierror.KindOf(err) != apierror.KindDecode {
		t.Errorf("expected decode failure for an empty record, got %v", err)
	}
}

func TestGet_UnauthorizedIsTypedAndNotCached(t *testing.T) {
	h := newHarness(t, []registry.Definition{departmentsDef()})
	h.backend.JSON(http.MethodGet, departmentsPath+"d-1", http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
	departments := newDepartments(t, h, departmentsDef())

	state := departments.UseRecord(context.Background(), acme, "d-1")
	if !apierror.IsUnauthorized(state.Err) {
		t.Fatalf("expected unauthorized, got %v", state.Err)
	}
	if state.IsLoading || state.Disabled {
		t.Fatalf("unexpected state %+v", state)
	}

	_, err := departments.Get(context.Background(), acme, "d-1")
	if !apierror.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if got := h.backend.TotalCalls(); got != 2 {
		t.Fatalf("failures must not be cached, got %d calls", got)
	}
}

func TestGet_RecordShapes(t *testing.T) {
	h := newHarness(t, []registry.Definition{departmentsDef()})
	h.backend.JSON(http.MethodGet, departmentsPath+"d-1", http.StatusOK, testsupport.RecordEnvelope(department{ID: "d-1", Name: "Kitchen"}))
	h.backend.JSON(http.MethodGet, departmentsPath+"d-2", http.StatusOK, department{ID: "d-2", Name: "Laundry"})
	departments := newDepartments(t, h, departmentsDef())

	for id, want := range map[string]string{"d-1": "Kitchen", "d-2": "Laundry"} {
		got, err := departments.Get(context.Background(), acme, id)
		if err != nil {
			t.Fatalf("Get(%s): %v", id, err)
		}
		if got.Name != want {
			t.Errorf("Get(%s) = %+v", id, got)
		}
	}

	if _, err := departments.Get(context.Background(), acme, ""); !apierror.IsPrecondition(err) {
		t.Errorf("empty id must be a precondition error, got %v", err)
	}
}

func TestStaleness(t *testing.T) {
	clock := newFakeClock()
	def := registry.Definition{Name: "departments", StaleTime: time.Minute, Retry: noRetry()}
	h := newHarness(t, []registry.Definition{def}, WithClock(clock.Now))
	h.backend.JSON(http.MethodGet, departmentsPath, http.StatusOK, departmentsPage(35))
	departments := newDepartments(t, h, def)
	ctx := context.Background()

	first := departments.UseList(ctx, acme, query.Params{})
	if first.Err != nil {
		t.Fatal(first.Err)
	}
	if !first.FetchedAt.Equal(clock.Now()) {
		t.Errorf("FetchedAt = %v", first.FetchedAt)
	}

	clock.Advance(59 * time.Second)
	departments.List(ctx, acme, query.Params{})
	if got := h.backend.TotalCalls(); got != 1 {
		t.Fatalf("fresh read must not hit the network, got %d calls", got)
	}

	clock.Advance(2 * time.Second)
	again := departments.UseList(ctx, acme, query.Params{})
	if again.Err != nil {
		t.Fatal(again.Err)
	}
	if got := h.backend.TotalCalls(); got != 2 {
		t.Fatalf("stale read must refetch, got %d calls", got)
	}
	if !again.FetchedAt.After(first.FetchedAt) {
		t.Errorf("FetchedAt not advanced: %v", again.FetchedAt)
	}
}

func TestRetryPolicy(t *testing.T) {
	def := registry.Definition{Name: "departments", Retry: &registry.RetryPolicy{MaxRetries: 1, Delay: 10 * time.Millisecond}}
	h := newHarness(t, []registry.Definition{def})

	var calls int32
	h.backend.Handle(http.MethodGet, departmentsPath, func(*http.Request, []byte) (int, any) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return http.StatusBadGateway, map[string]string{"message": "upstream"}
		}
		return http.StatusOK, departmentsPage(35)
	})
	h.backend.JSON(http.MethodGet, departmentsPath+"missing", http.StatusNotFound, nil)
	departments := newDepartments(t, h, def)

	page, err := departments.List(context.Background(), acme, query.Params{})
	if err != nil {
		t.Fatalf("retryable failure should be retried: %v", err)
	}
	if page.Paginate.Total != 35 || calls != 2 {
		t.Fatalf("total=%d calls=%d", page.Paginate.Total, calls)
	}

	_, err = departments.Get(context.Background(), acme, "missing")
	if !apierror.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if got := h.backend.Calls(http.MethodGet, departmentsPath+"missing"); got != 1 {
		t.Fatalf("client errors must not be retried, got %d calls", got)
	}
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	def := registry.Definition{Name: "departments", Retry: &registry.RetryPolicy{MaxRetries: 2, Delay: time.Millisecond}}
	h := newHarness(t, []registry.Definition{def})
	h.backend.JSON(http.MethodGet, departmentsPath, http.StatusInternalServerError, map[string]string{"message": "boom"})
	departments := newDepartments(t, h, def)

	_, err := departments.List(context.Background(), acme, query.Params{})
	if apierror.KindOf(err) != apierror.KindServer {
		t.Fatalf("expected server error, got %v", err)
	}
	if got := h.backend.TotalCalls(); got != 3 {
		t.Fatalf("expected 1 attempt + 2 retries, got %d", got)
	}
}

func TestMutation_FailureLeavesCacheUntouched(t *testing.T) {
	h := newHarness(t, []registry.Definition{departmentsDef()})
	h.backend.JSON(http.MethodGet, departmentsPath, http.StatusOK, departmentsPage(35))
	h.backend.JSON(http.MethodPost, departmentsPath, http.StatusUnprocessableEntity, map[string]any{"error": map[string]string{"message": "name is required"}})
	departments := newDepartments(t, h, departmentsDef())
	ctx := context.Background()

	departments.List(ctx, acme, query.Params{})

	m := departments.Mutation(OpCreate)
	_, err := m.Execute(ctx, acme, "", department{})
	if apierror.KindOf(err) != apierror.KindValidation {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if m.Status() != StatusIdle || m.Err() == nil {
		t.Fatalf("failed mutation must return to idle with an error, got %s / %v", m.Status(), m.Err())
	}
	if apierror.MessageOf(m.Err()) != "name is required" {
		t.Errorf("message = %q", apierror.MessageOf(m.Err()))
	}

	departments.List(ctx, acme, query.Params{})
	if got := h.backend.Calls(http.MethodPost, departmentsPath); got != 1 {
		t.Fatalf("writes are never retried, got %d POSTs", got)
	}
	if got := h.backend.Calls(http.MethodGet, departmentsPath); got != 1 {
		t.Fatalf("cache must survive a failed write, got %d GETs", got)
	}
}

func TestMutation_Lifecycle(t *testing.T) {
	h := newHarness(t, []registry.Definition{departmentsDef()})
	h.backend.JSON(http.MethodPut, departmentsPath+"d-1", http.StatusOK, department{ID: "d-1", Name: "Renamed"})
	departments := newDepartments(t, h, departmentsDef())

	m := departments.Mutation(OpUpdate)
	if m.Status() != StatusIdle {
		t.Fatalf("new mutation status %s", m.Status())
	}

	release := h.backend.Hold()
	done := make(chan error, 1)
	go func() {
		_, err := m.Execute(context.Background(), acme, "d-1", department{Name: "Renamed"})
		done <- err
	}()

	waitFor(t, "pending write", func() bool { return h.backend.TotalCalls() == 1 })
	if m.Status() != StatusPending {
		t.Fatalf("expected pending, got %s", m.Status())
	}
	if _, err := m.Execute(context.Background(), acme, "d-1", department{}); !apierror.IsPrecondition(err) {
		t.Fatalf("second execute while pending must fail, got %v", err)
	}

	release()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if m.Status() != StatusInvalidated || m.Result().Name != "Renamed" {
		t.Fatalf("status %s result %+v", m.Status(), m.Result())
	}

	m.Reset()
	if m.Status() != StatusIdle {
		t.Fatalf("reset status %s", m.Status())
	}
}

func TestMutation_Verbs(t *testing.T) {
	h := newHarness(t, []registry.Definition{departmentsDef()})
	h.backend.JSON(http.MethodPatch, departmentsPath+"d-1", http.StatusOK, department{ID: "d-1", Name: "Patched"})
	h.backend.JSON(http.MethodDelete, departmentsPath+"d-1", http.StatusNoContent, nil)
	departments := newDepartments(t, h, departmentsDef())
	ctx := context.Background()

	patched, err := departments.Patch(ctx, acme, "d-1", map[string]string{"name": "Patched"})
	if err != nil || patched.Name != "Patched" {
		t.Fatalf("Patch = %+v, %v", patched, err)
	}
	if err := departments.Delete(ctx, acme, "d-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if err := departments.Delete(ctx, acme, ""); !apierror.IsPrecondition(err) {
		t.Errorf("delete without id: %v", err)
	}
	if _, err := departments.Update(ctx, acme, "d-1", nil); !apierror.IsPrecondition(err) {
		t.Errorf("update without payload: %v", err)
	}
	if _, err := departments.Create(ctx, session.Session{Scope: "acme"}, department{}); !apierror.IsPrecondition(err) {
		t.Errorf("create without token: %v", err)
	}
	if got := h.backend.TotalCalls(); got != 2 {
		t.Fatalf("precondition failures must not reach the backend, got %d calls", got)
	}
}

func TestMutation_UnknownOpIsRejected(t *testing.T) {
	h := newHarness(t, []registry.Definition{departmentsDef()})
	h.backend.JSON(http.MethodGet, departmentsPath, http.StatusOK, departmentsPage(35))
	departments := newDepartments(t, h, departmentsDef())
	ctx := context.Background()

	if _, err := departments.List(ctx, acme, query.Params{}); err != nil {
		t.Fatal(err)
	}

	m := departments.Mutation(MutationOp("archive"))
	if _, err := m.Execute(ctx, acme, "d-1", map[string]string{"name": "x"}); !apierror.IsPrecondition(err) {
		t.Fatalf("expected precondition, got %v", err)
	}
	if m.Status() != StatusIdle {
		t.Errorf("status %s", m.Status())
	}
	if got := h.backend.TotalCalls(); got != 1 {
		t.Errorf("unknown write reached the backend: %d calls", got)
	}

	if _, err := departments.List(ctx, acme, query.Params{}); err != nil {
		t.Fatal(err)
	}
	if got := h.backend.Calls(http.MethodGet, departmentsPath); got != 1 {
		t.Errorf("rejected write must not invalidate, got %d list calls", got)
	}
}

type validatedDepartment struct {
	Name string `json:"name"`
}

func (d validatedDepartment) Validate() error {
	if d.Name == "" {
		return errors.New("name: cannot be blank")
	}
	return nil
}

func TestMutation_PayloadValidation(t *testing.T) {
	h := newHarness(t, []registry.Definition{departmentsDef()})
	departments := newDepartments(t, h, departmentsDef())

	_, err := departments.Create(context.Background(), acme, validatedDepartment{})
	if apierror.KindOf(err) != apierror.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if h.backend.TotalCalls() != 0 {
		t.Fatal("invalid payload must not be sent")
	}
}

func TestMutation_InvalidatesDependents(t *testing.T) {
	grn := registry.Definition{Name: "goods-received-notes", Template: registry.TemplateScoped, Retry: noRetry()}
	inventory := registry.Definition{Name: "inventory-adjustments", Template: registry.TemplateScoped, Retry: noRetry(), DependsOn: []string{"goods-received-notes"}}
	h := newHarness(t, []registry.Definition{grn, inventory})

	h.backend.JSON(http.MethodGet, "/api/acme/inventory-adjustments", http.StatusOK, testsupport.PageEnvelope([]department{}, 0, 1, 10))
	h.backend.JSON(http.MethodPost, "/api/acme/goods-received-notes", http.StatusCreated, department{ID: "g-1"})

	grnClient := newDepartments(t, h, grn)
	inventoryClient := newDepartments(t, h, inventory)
	ctx := context.Background()

	inventoryClient.List(ctx, acme, query.Params{})
	inventoryClient.List(ctx, acme, query.Params{})
	if got := h.backend.Calls(http.MethodGet, "/api/acme/inventory-adjustments"); got != 1 {
		t.Fatalf("expected cached inventory, got %d GETs", got)
	}

	if _, err := grnClient.Create(ctx, acme, map[string]string{"po": "po-1"}); err != nil {
		t.Fatal(err)
	}

	inventoryClient.List(ctx, acme, query.Params{})
	if got := h.backend.Calls(http.MethodGet, "/api/acme/inventory-adjustments"); got != 2 {
		t.Fatalf("dependent resource must refetch after write, got %d GETs", got)
	}
}

func TestInvalidationDuringFlightDiscardsResult(t *testing.T) {
	h := newHarness(t, []registry.Definition{departmentsDef()})

	var calls int32
	h.backend.Handle(http.MethodGet, departmentsPath, func(*http.Request, []byte) (int, any) {
		n := atomic.AddInt32(&calls, 1)
		return http.StatusOK, departmentsPage(int(n))
	})
	departments := newDepartments(t, h, departmentsDef())

	release := h.backend.Hold()
	result := make(chan query.Page[department], 1)
	go func() {
		page, _ := departments.List(context.Background(), acme, query.Params{})
		result <- page
	}()

	waitFor(t, "request in flight", func() bool { return h.backend.TotalCalls() == 1 })
	if err := departments.Invalidate(context.Background(), "acme"); err != nil {
		t.Fatal(err)
	}
	release()

	page := <-result
	if page.Paginate.Total != 2 {
		t.Fatalf("expected the post-invalidation fetch, got total %d", page.Paginate.Total)
	}

	again, err := departments.List(context.Background(), acme, query.Params{})
	if err != nil {
		t.Fatal(err)
	}
	if again.Paginate.Total != 2 || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("refetched result must be cached: total=%d calls=%d", again.Paginate.Total, calls)
	}
}

func TestWatchList(t *testing.T) {
	h := newHarness(t, []registry.Definition{departmentsDef()})
	h.backend.JSON(http.MethodGet, departmentsPath, http.StatusOK, departmentsPage(35))
	departments := newDepartments(t, h, departmentsDef())

	release := h.backend.Hold()
	obs := departments.WatchList(context.Background(), acme, query.Params{})
	if !obs.State().IsLoading {
		t.Fatal("observer must be loading until resolved")
	}
	release()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state := obs.Wait(ctx)
	if state.IsLoading || state.Err != nil || state.Data.Paginate.Total != 35 {
		t.Fatalf("resolved state %+v", state)
	}
}

func TestWatchRecord_CloseDropsLateResult(t *testing.T) {
	h := newHarness(t, []registry.Definition{departmentsDef()})
	h.backend.JSON(http.MethodGet, departmentsPath+"d-1", http.StatusOK, department{ID: "d-1", Name: "Kitchen"})
	departments := newDepartments(t, h, departmentsDef())

	release := h.backend.Hold()
	obs := departments.WatchRecord(context.Background(), acme, "d-1")
	waitFor(t, "request in flight", func() bool { return h.backend.TotalCalls() == 1 })

	obs.Close()
	<-obs.Done()
	release()

	state := obs.State()
	if !obs.Closed() || state.IsLoading || state.Data.Name != "" || state.Err != nil {
		t.Fatalf("closed observer state %+v", state)
	}
}

func TestDocument(t *testing.T) {
	def := registry.Definition{Name: "dashboard", Template: registry.TemplateScoped, Retry: noRetry()}
	h := newHarness(t, []registry.Definition{def})

	type summary struct {
		PendingApprovals int `json:"pendingApprovals"`
	}
	h.backend.JSON(http.MethodGet, "/api/acme/dashboard", http.StatusOK, testsupport.RecordEnvelope(summary{PendingApprovals: 4}))

	dashboard, err := NewClient[summary](h.store, h.executor, h.resolver, def)
	if err != nil {
		t.Fatal(err)
	}

	state := dashboard.UseDocument(context.Background(), acme, query.Params{})
	if state.Err != nil || state.Data.PendingApprovals != 4 {
		t.Fatalf("state %+v", state)
	}
	dashboard.Document(context.Background(), acme, query.Params{})
	if h.backend.TotalCalls() != 1 {
		t.Fatalf("document read must be cached, got %d calls", h.backend.TotalCalls())
	}
}

func TestRemoteInvalidation(t *testing.T) {
	bus := invalidation.NewLocal()
	t.Cleanup(func() { bus.Close() })

	writer := newHarness(t, []registry.Definition{departmentsDef()}, WithBroadcaster(bus))
	reader := newHarness(t, []registry.Definition{departmentsDef()}, WithBroadcaster(bus))

	reader.backend.JSON(http.MethodGet, departmentsPath, http.StatusOK, departmentsPage(35))
	writer.backend.JSON(http.MethodPost, departmentsPath, http.StatusCreated, department{ID: "d-2"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reader.store.Listen(ctx)
	go writer.store.Listen(ctx)
	waitFor(t, "subscriptions", func() bool { return bus.Subscribers() == 2 })

	readerClient := newDepartments(t, reader, departmentsDef())
	writerClient := newDepartments(t, writer, departmentsDef())

	readerClient.List(ctx, acme, query.Params{})
	if _, err := writerClient.Create(ctx, acme, department{Name: "Spa"}); err != nil {
		t.Fatal(err)
	}

	readerClient.List(ctx, acme, query.Params{})
	if got := reader.backend.Calls(http.MethodGet, departmentsPath); got != 2 {
		t.Fatalf("remote write must invalidate the reader cache, got %d GETs", got)
	}
}

func TestList_CallerCancellation(t *testing.T) {
	h := newHarness(t, []registry.Definition{departmentsDef()})
	h.backend.JSON(http.MethodGet, departmentsPath, http.StatusOK, departmentsPage(35))
	departments := newDepartments(t, h, departmentsDef())

	release := h.backend.Hold()
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := departments.List(ctx, acme, query.Params{})
	if !apierror.IsTimeout(err) {
		t.Fatalf("expected timeout kind, got %v", err)
	}
}
