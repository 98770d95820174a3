package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/screener-client/internal/testutil"
	"github.com/Sternrassler/screener-client/pkg/client"
	"github.com/Sternrassler/screener-client/pkg/criteria"
	"github.com/Sternrassler/screener-client/pkg/record"
	"github.com/Sternrassler/screener-client/pkg/sentinel"
)

// scriptedDispatcher serves canned responses by page number.
type scriptedDispatcher struct {
	mu     sync.Mutex
	bodies map[int]string
	errs   map[int]error
	pages  []int
	hook   func(page int)
}

func (d *scriptedDispatcher) Dispatch(ctx context.Context, form url.Values) ([]byte, error) {
	page, err := strconv.Atoi(form.Get(criteria.PageField))
	if err != nil {
		return nil, fmt.Errorf("bad page field %q", form.Get(criteria.PageField))
	}

	d.mu.Lock()
	d.pages = append(d.pages, page)
	hook := d.hook
	d.mu.Unlock()

	if hook != nil {
		hook(page)
	}
	if err := d.errs[page]; err != nil {
		return nil, err
	}
	body, ok := d.bodies[page]
	if !ok {
		return nil, fmt.Errorf("unexpected page %d", page)
	}
	return []byte(body), nil
}

func (d *scriptedDispatcher) calls() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int, len(d.pages))
	copy(out, d.pages)
	return out
}

func pageBody(t *testing.T, total int, ids ...int) string {
	t.Helper()

	hits := make([]map[string]any, len(ids))
	for i, id := range ids {
		hits[i] = map[string]any{"pair_ID": id, "name_trans": fmt.Sprintf("Instrument %d", id)}
	}
	b, err := json.Marshal(map[string]any{"totalCount": total, "hits": hits})
	if err != nil {
		t.Fatalf("marshal page: %v", err)
	}
	return string(b)
}

func seq(first, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = first + i
	}
	return out
}

func testRequest(t *testing.T) *criteria.Request {
	t.Helper()

	req, err := criteria.NewBuilder(5).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return req
}

func ids(records []record.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID()
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestController_Retrieve(t *testing.T) {
	tests := []struct {
		name        string
		target      int
		bodies      func(t *testing.T) map[int]string
		wantIDs     []int
		wantPages   []int
		wantStopped string
	}{
		{
			name:   "two pages until target",
			target: 10,
			bodies: func(t *testing.T) map[int]string {
				return map[int]string{
					1: pageBody(t, 10, seq(1, 8)...),
					2: pageBody(t, 10, seq(9, 2)...),
				}
			},
			wantIDs:     seq(1, 10),
			wantPages:   []int{1, 2},
			wantStopped: StopTargetReached,
		},
		{
			name:   "total below default target",
			target: 0,
			bodies: func(t *testing.T) map[int]string {
				return map[int]string{1: pageBody(t, 3, 1, 2, 3)}
			},
			wantIDs:     []int{1, 2, 3},
			wantPages:   []int{1},
			wantStopped: StopTargetReached,
		},
		{
			name:   "empty first page stops",
			target: 100,
			bodies: func(t *testing.T) map[int]string {
				return map[int]string{1: pageBody(t, 50)}
			},
			wantIDs:     []int{},
			wantPages:   []int{1},
			wantStopped: StopEmptyPage,
		},
		{
			name:   "zero total",
			target: 20,
			bodies: func(t *testing.T) map[int]string {
				return map[int]string{1: pageBody(t, 0)}
			},
			wantIDs:     []int{},
			wantPages:   []int{1},
			wantStopped: StopEmptyPage,
		},
		{
			name:   "empty page before target",
			target: 20,
			bodies: func(t *testing.T) map[int]string {
				return map[int]string{
					1: pageBody(t, 20, seq(1, 5)...),
					2: pageBody(t, 20),
				}
			},
			wantIDs:     seq(1, 5),
			wantPages:   []int{1, 2},
			wantStopped: StopEmptyPage,
		},
		{
			name:   "surplus hits truncated",
			target: 5,
			bodies: func(t *testing.T) map[int]string {
				return map[int]string{1: pageBody(t, 100, seq(1, 8)...)}
			},
			wantIDs:     seq(1, 5),
			wantPages:   []int{1},
			wantStopped: StopTargetReached,
		},
		{
			name:   "duplicates preserved",
			target: 4,
			bodies: func(t *testing.T) map[int]string {
				return map[int]string{
					1: pageBody(t, 4, 7, 8),
					2: pageBody(t, 4, 8, 9),
				}
			},
			wantIDs:     []int{7, 8, 8, 9},
			wantPages:   []int{1, 2},
			wantStopped: StopTargetReached,
		},
		{
			name:   "shrinking total lowers bound",
			target: 100,
			bodies: func(t *testing.T) map[int]string {
				return map[int]string{
					1: pageBody(t, 30, seq(1, 10)...),
					2: pageBody(t, 12, seq(11, 10)...),
				}
			},
			wantIDs:     seq(1, 12),
			wantPages:   []int{1, 2},
			wantStopped: StopTargetReached,
		},
		{
			name:   "growing total ignored",
			target: 100,
			bodies: func(t *testing.T) map[int]string {
				return map[int]string{
					1: pageBody(t, 4, 1, 2),
					2: pageBody(t, 40, 3, 4),
				}
			},
			wantIDs:     []int{1, 2, 3, 4},
			wantPages:   []int{1, 2},
			wantStopped: StopTargetReached,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &scriptedDispatcher{bodies: tt.bodies(t)}
			c := NewController(d, record.NewAdapter(), DefaultConfig())

			records, stats, err := c.RetrieveWithStats(context.Background(), testRequest(t), tt.target)
			if err != nil {
				t.Fatalf("RetrieveWithStats() error = %v", err)
			}
			if records == nil {
				t.Fatal("RetrieveWithStats() records = nil, want empty slice")
			}

			got := ids(records)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("len(records) = %d, want %d (%v)", len(got), len(tt.wantIDs), got)
			}
			for i, id := range tt.wantIDs {
				if got[i] != strconv.Itoa(id) {
					t.Errorf("records[%d].ID() = %q, want %d", i, got[i], id)
				}
			}

			if calls := d.calls(); !equalInts(calls, tt.wantPages) {
				t.Errorf("pages requested = %v, want %v", calls, tt.wantPages)
			}
			if stats.StoppedBy != tt.wantStopped {
				t.Errorf("stats.StoppedBy = %q, want %q", stats.StoppedBy, tt.wantStopped)
			}
			if stats.Records != len(tt.wantIDs) {
				t.Errorf("stats.Records = %d, want %d", stats.Records, len(tt.wantIDs))
			}
			if stats.RetrievalID == "" {
				t.Error("stats.RetrievalID is empty")
			}
		})
	}
}

func TestController_Retrieve_NilRequest(t *testing.T) {
	d := &scriptedDispatcher{}
	c := NewController(d, record.NewAdapter(), DefaultConfig())

	_, err := c.Retrieve(context.Background(), nil, 10)
	if !errors.Is(err, sentinel.ErrInvalidArgument) {
		t.Fatalf("Retrieve() error = %v, want ErrInvalidArgument", err)
	}
	if calls := d.calls(); len(calls) != 0 {
		t.Errorf("pages requested = %v, want none", calls)
	}
}

func TestController_Retrieve_UnbuiltRequest(t *testing.T) {
	d := &scriptedDispatcher{bodies: map[int]string{1: pageBody(t, 1, 1)}}
	c := NewController(d, record.NewAdapter(), DefaultConfig())

	records, err := c.Retrieve(context.Background(), &criteria.Request{}, 10)
	if !errors.Is(err, sentinel.ErrInvalidArgument) {
		t.Fatalf("Retrieve() error = %v, want ErrInvalidArgument", err)
	}
	if records != nil {
		t.Errorf("Retrieve() records = %v, want nil", records)
	}
	if calls := d.calls(); len(calls) != 0 {
		t.Errorf("pages requested = %v, want none", calls)
	}
}

func TestController_Retrieve_MaxDuration(t *testing.T) {
	d := &scriptedDispatcher{
		bodies: map[int]string{
			1: pageBody(t, 10, 1, 2),
			2: pageBody(t, 10, 3, 4),
			3: pageBody(t, 10, 5, 6),
		},
		hook: func(page int) {
			if page == 1 {
				time.Sleep(50 * time.Millisecond)
			}
		},
	}
	c := NewController(d, record.NewAdapter(), Config{MaxDuration: 10 * time.Millisecond})

	records, err := c.Retrieve(context.Background(), testRequest(t), 10)
	if !errors.Is(err, ErrPolicyExceeded) {
		t.Fatalf("Retrieve() error = %v, want ErrPolicyExceeded", err)
	}
	if records != nil {
		t.Errorf("Retrieve() records = %v, want nil", records)
	}
	if calls := d.calls(); !equalInts(calls, []int{1}) {
		t.Errorf("pages requested = %v, want [1]", calls)
	}
}

func TestController_Retrieve_Errors(t *testing.T) {
	statusErr := &client.StatusError{StatusCode: 500, ErrorClass: client.ErrorClassServer, Message: "500 Internal Server Error"}

	tests := []struct {
		name      string
		bodies    func(t *testing.T) map[int]string
		errs      map[int]error
		config    Config
		wantErr   error
		wantPages []int
	}{
		{
			name:      "first page status error",
			errs:      map[int]error{1: statusErr},
			wantErr:   sentinel.ErrConnectivity,
			wantPages: []int{1},
		},
		{
			name: "second page status error discards partial records",
			bodies: func(t *testing.T) map[int]string {
				return map[int]string{1: pageBody(t, 10, seq(1, 5)...)}
			},
			errs:      map[int]error{2: statusErr},
			wantErr:   sentinel.ErrConnectivity,
			wantPages: []int{1, 2},
		},
		{
			name: "malformed body",
			bodies: func(t *testing.T) map[int]string {
				return map[int]string{1: `{"totalCount": 3, "hits": [`}
			},
			wantErr:   sentinel.ErrDecoding,
			wantPages: []int{1},
		},
		{
			name: "hit without identifier",
			bodies: func(t *testing.T) map[int]string {
				return map[int]string{1: `{"totalCount": 2, "hits": [{"pair_ID": 1}, {"name_trans": "x"}]}`}
			},
			wantErr:   sentinel.ErrDecoding,
			wantPages: []int{1},
		},
		{
			name: "max pages exceeded",
			bodies: func(t *testing.T) map[int]string {
				return map[int]string{
					1: pageBody(t, 10, 1, 2),
					2: pageBody(t, 10, 3, 4),
				}
			},
			config:    Config{MaxPages: 2},
			wantErr:   ErrPolicyExceeded,
			wantPages: []int{1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &scriptedDispatcher{errs: tt.errs}
			if tt.bodies != nil {
				d.bodies = tt.bodies(t)
			}
			c := NewController(d, record.NewAdapter(), tt.config)

			records, err := c.Retrieve(context.Background(), testRequest(t), 10)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Retrieve() error = %v, want %v", err, tt.wantErr)
			}
			if records != nil {
				t.Errorf("Retrieve() records = %v, want nil", records)
			}
			if calls := d.calls(); !equalInts(calls, tt.wantPages) {
				t.Errorf("pages requested = %v, want %v", calls, tt.wantPages)
			}
		})
	}
}

func TestController_Retrieve_StatusCodePreserved(t *testing.T) {
	d := &scriptedDispatcher{
		errs: map[int]error{1: &client.StatusError{StatusCode: 503, ErrorClass: client.ErrorClassServer}},
	}
	c := NewController(d, record.NewAdapter(), DefaultConfig())

	_, err := c.Retrieve(context.Background(), testRequest(t), 10)

	var statusErr *client.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Retrieve() error = %v, want *client.StatusError", err)
	}
	if statusErr.StatusCode != 503 {
		t.Errorf("StatusCode = %d, want 503", statusErr.StatusCode)
	}
}

func TestController_Retrieve_CancelledBetweenPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := &scriptedDispatcher{
		bodies: map[int]string{
			1: pageBody(t, 10, seq(1, 5)...),
			2: pageBody(t, 10, seq(6, 5)...),
		},
		hook: func(page int) {
			if page == 1 {
				cancel()
			}
		},
	}
	c := NewController(d, record.NewAdapter(), DefaultConfig())

	_, err := c.Retrieve(ctx, testRequest(t), 10)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Retrieve() error = %v, want context.Canceled", err)
	}
	if calls := d.calls(); !equalInts(calls, []int{1}) {
		t.Errorf("pages requested = %v, want [1]", calls)
	}
}

func TestController_Retrieve_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &scriptedDispatcher{}
	c := NewController(d, record.NewAdapter(), DefaultConfig())

	if _, err := c.Retrieve(ctx, testRequest(t), 10); !errors.Is(err, context.Canceled) {
		t.Fatalf("Retrieve() error = %v, want context.Canceled", err)
	}
	if calls := d.calls(); len(calls) != 0 {
		t.Errorf("pages requested = %v, want none", calls)
	}
}

func TestController_Retrieve_PageTimeout(t *testing.T) {
	d := DispatchFunc(func(ctx context.Context, form url.Values) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	c := NewController(d, record.NewAdapter(), Config{PageTimeout: 20 * time.Millisecond})

	_, err := c.Retrieve(context.Background(), testRequest(t), 10)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Retrieve() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestController_Retrieve_FormCarriesCriteria(t *testing.T) {
	req, err := criteria.NewBuilder(5).Exchanges(1, 2).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	var mu sync.Mutex
	var forms []url.Values
	d := DispatchFunc(func(ctx context.Context, form url.Values) ([]byte, error) {
		mu.Lock()
		forms = append(forms, form)
		mu.Unlock()
		if form.Get(criteria.PageField) == "1" {
			return []byte(pageBody(t, 3, 1, 2)), nil
		}
		return []byte(pageBody(t, 3, 3)), nil
	})
	c := NewController(d, record.NewAdapter(), DefaultConfig())

	if _, err := c.Retrieve(context.Background(), req, 10); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	if len(forms) != 2 {
		t.Fatalf("dispatches = %d, want 2", len(forms))
	}
	for i, form := range forms {
		if got, want := form.Get(criteria.PageField), strconv.Itoa(i+1); got != want {
			t.Errorf("form[%d] pn = %q, want %q", i, got, want)
		}
		if got := form.Get("country[]"); got != "5" {
			t.Errorf("form[%d] country[] = %q, want 5", i, got)
		}
	}
	if got := req.Form(1).Get(criteria.PageField); got != "1" {
		t.Errorf("request form pn = %q, want 1", got)
	}
}

func TestController_Retrieve_Concurrent(t *testing.T) {
	d := &scriptedDispatcher{
		bodies: map[int]string{
			1: pageBody(t, 6, 1, 2, 3),
			2: pageBody(t, 6, 4, 5, 6),
		},
	}
	c := NewController(d, record.NewAdapter(), DefaultConfig())
	req := testRequest(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			records, err := c.Retrieve(context.Background(), req, 6)
			if err != nil {
				errs <- err
				return
			}
			if len(records) != 6 {
				errs <- fmt.Errorf("len(records) = %d, want 6", len(records))
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestController_WithClientAndMockScreener(t *testing.T) {
	mock := testutil.NewMockScreener(
		testutil.NewPage(10, testutil.Hits(1, 8)),
		testutil.NewPage(10, testutil.Hits(9, 2)),
	)
	defer mock.Close()

	cfg := client.DefaultConfig()
	cfg.Endpoint = mock.URL()
	cfg.UserAgents = client.FixedUserAgent("TestApp/1.0.0")
	cl, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	c := NewController(cl, record.NewAdapter(), DefaultConfig())
	records, err := c.Retrieve(context.Background(), testRequest(t), 10)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	if len(records) != 10 {
		t.Fatalf("len(records) = %d, want 10", len(records))
	}
	if got := records[9].ID(); got != "10" {
		t.Errorf("records[9].ID() = %q, want 10", got)
	}
	if v, ok := records[0].Get("viewData.flag"); !ok || v != "USA" {
		t.Errorf("records[0] viewData.flag = %v (%v), want USA", v, ok)
	}
	if got := mock.PagesRequested(); !equalInts(got, []int{1, 2}) {
		t.Errorf("PagesRequested() = %v, want [1 2]", got)
	}
}

func TestController_WithClient_ServerError(t *testing.T) {
	mock := testutil.NewMockScreener(
		testutil.NewServerErrorPage(),
		testutil.NewPage(10, testutil.Hits(1, 10)),
	)
	defer mock.Close()

	cfg := client.DefaultConfig()
	cfg.Endpoint = mock.URL()
	cfg.UserAgents = client.FixedUserAgent("TestApp/1.0.0")
	cl, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	c := NewController(cl, record.NewAdapter(), DefaultConfig())
	_, err = c.Retrieve(context.Background(), testRequest(t), 10)

	var statusErr *client.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Retrieve() error = %v, want *client.StatusError", err)
	}
	if statusErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", statusErr.StatusCode)
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("GetRequestCount() = %d, want 1", got)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", sentinel.ErrInvalidArgument), "invalid_argument"},
		{&client.StatusError{StatusCode: 500}, "connectivity"},
		{fmt.Errorf("x: %w", sentinel.ErrDecoding), "decoding"},
		{fmt.Errorf("x: %w", ErrPolicyExceeded), "policy"},
		{fmt.Errorf("x: %w", context.Canceled), "cancelled"},
		{errors.New("other"), "error"},
	}

	for _, tt := range tests {
		if got := outcome(tt.err); got != tt.want {
			t.Errorf("outcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
