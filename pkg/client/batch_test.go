package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"reflect"
	"testing"
	"time"

	"github.com/civicsource/fetch-helpers/internal/testutil"
	"github.com/civicsource/fetch-helpers/pkg/batch"
	"github.com/civicsource/fetch-helpers/pkg/status"
)

type user struct {
	Username string `json:"username"`
	Age      int    `json:"age"`
}

func newUserCoordinator(t *testing.T, mock *testutil.MockAPI, cfg batch.Config) *batch.Coordinator[string, user] {
	t.Helper()

	c := newTestClient(t, mock.URL())
	fetch := BatchFetch[string, user](c, QueryBuilder[string]("/users", "username"))

	coord := batch.New(func(u user) string { return u.Username }, fetch, cfg)
	t.Cleanup(coord.Close)
	return coord
}

func testConfig() batch.Config {
	cfg := batch.DefaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	return cfg
}

func TestBatchFetch_CoalescesOverHTTP(t *testing.T) {
	mock := testutil.NewMockAPI("/users", "username", "username")
	defer mock.Close()
	mock.AddItem(map[string]any{"username": "homer", "age": 42})
	mock.AddItem(map[string]any{"username": "marge", "age": 36})

	coord := newUserCoordinator(t, mock, testConfig())

	homer := coord.Request("homer")
	marge := coord.Request("marge")
	bart := coord.Request("bart")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if u, err := homer.Wait(ctx); err != nil || u.Age != 42 {
		t.Errorf("homer = %+v, %v", u, err)
	}
	if u, err := marge.Wait(ctx); err != nil || u.Age != 36 {
		t.Errorf("marge = %+v, %v", u, err)
	}

	_, err := bart.Wait(ctx)
	if !errors.Is(err, batch.ErrNotFound) {
		t.Fatalf("bart error = %v, want not found", err)
	}
	if code, _ := status.StatusCode(err); code != http.StatusNotFound {
		t.Errorf("bart status = %d, want 404", code)
	}

	requests := mock.Requests()
	if len(requests) != 1 {
		t.Fatalf("Request count = %d, want 1", len(requests))
	}
	if !reflect.DeepEqual(requests[0], []string{"homer", "marge", "bart"}) {
		t.Errorf("Requested keys = %v", requests[0])
	}
}

func TestBatchFetch_SingleItemBody(t *testing.T) {
	mock := testutil.NewMockAPI("/users", "username", "username")
	defer mock.Close()
	mock.AddItem(map[string]any{"username": "lisa", "age": 7})
	mock.SetSingleItemResponses(true)

	coord := newUserCoordinator(t, mock, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	u, err := coord.Load(ctx, "lisa")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if u.Username != "lisa" || u.Age != 7 {
		t.Errorf("Load() = %+v", u)
	}
}

func TestBatchFetch_FailureSharedByChunk(t *testing.T) {
	mock := testutil.NewMockAPI("/users", "username", "username")
	defer mock.Close()
	mock.SetResponse(testutil.NewServerErrorResponse("SHIT JUST WENT DOWN"))

	coord := newUserCoordinator(t, mock, testConfig())

	futures := []*batch.Future[user]{
		coord.Request("homer"),
		coord.Request("marge"),
		coord.Request("bart"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	for _, f := range futures {
		_, err := f.Wait(ctx)
		errs = append(errs, err)
	}

	var se *status.Error
	if !errors.As(errs[0], &se) {
		t.Fatalf("Expected *status.Error, got %T: %v", errs[0], errs[0])
	}
	if se.Message != "SHIT JUST WENT DOWN" {
		t.Errorf("Message = %q", se.Message)
	}
	if se.Response.Status != 500 {
		t.Errorf("Status = %d, want 500", se.Response.Status)
	}
	for i, err := range errs[1:] {
		if err != errs[0] {
			t.Errorf("error %d is not the same value as error 0", i+1)
		}
	}
}

func TestQueryBuilder_MergesExtraValues(t *testing.T) {
	c := newTestClient(t, "http://api.example.com")
	build := QueryBuilder[int]("/regions", "id")

	req, err := build(context.Background(), c, []int{1, 2}, url.Values{"expand": []string{"stats"}}, "ignored")
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}

	q := req.URL.Query()
	if !reflect.DeepEqual(q["id"], []string{"1", "2"}) {
		t.Errorf("id = %v", q["id"])
	}
	if q.Get("expand") != "stats" {
		t.Errorf("expand = %q", q.Get("expand"))
	}
}
