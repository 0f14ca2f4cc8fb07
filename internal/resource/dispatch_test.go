package resource

import (
	"context"
	"net/http"
	"testing"

	"github.com/starford/justwrite/internal/checksum"
	"github.com/starford/justwrite/internal/record"
)

func TestDispatch_StatusTable(t *testing.T) {
	seed := `[{"id":"t1","name":"Tag1","slug":"tag1"}]`

	cases := []struct {
		name   string
		req    Request
		status int
	}{
		{"list", Request{Method: http.MethodGet}, http.StatusOK},
		{"get", Request{Method: http.MethodGet, ID: "t1"}, http.StatusOK},
		{"get missing", Request{Method: http.MethodGet, ID: "nope"}, http.StatusNotFound},
		{"create", Request{Method: http.MethodPost, Body: record.Record{"name": "Tag2", "slug": "tag2"}}, http.StatusCreated},
		{"create with id", Request{Method: http.MethodPost, ID: "t1", Body: record.Record{"name": "x", "slug": "x"}}, http.StatusMethodNotAllowed},
		{"create invalid", Request{Method: http.MethodPost, Body: record.Record{"name": "x"}}, http.StatusBadRequest},
		{"create nil body", Request{Method: http.MethodPost}, http.StatusBadRequest},
		{"replace", Request{Method: http.MethodPut, ID: "t1", Body: record.Record{"name": "New"}}, http.StatusOK},
		{"replace no id", Request{Method: http.MethodPut, Body: record.Record{"name": "New"}}, http.StatusBadRequest},
		{"replace missing", Request{Method: http.MethodPut, ID: "nope", Body: record.Record{"name": "New"}}, http.StatusNotFound},
		{"delete", Request{Method: http.MethodDelete, ID: "t1"}, http.StatusOK},
		{"delete no id", Request{Method: http.MethodDelete}, http.StatusBadRequest},
		{"delete missing", Request{Method: http.MethodDelete, ID: "nope"}, http.StatusNotFound},
		{"patch", Request{Method: http.MethodPatch, ID: "t1"}, http.StatusMethodNotAllowed},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e, _ := testEngine(t, "tags", tagPolicy, seed)
			resp := e.Dispatch(context.Background(), c.req)
			if resp.Status != c.status {
				t.Fatalf("status = %d, want %d (payload %v)", resp.Status, c.status, resp.Payload)
			}
			if c.status >= 400 {
				if resp.Err == nil {
					t.Error("error response without Err")
				}
				if _, ok := resp.Payload.(string); !ok {
					t.Errorf("error payload = %T, want string", resp.Payload)
				}
			}
		})
	}
}

func TestDispatch_GetIgnoresFilters(t *testing.T) {
	e, _ := testEngine(t, "tags", tagPolicy, `[{"id":"t1","name":"Tag1","slug":"tag1"}]`)
	resp := e.Dispatch(context.Background(), Request{
		Method: http.MethodGet,
		ID:     "t1",
		Query:  map[string]any{"slug": "other"},
	})
	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d", resp.Status)
	}
	rec, ok := resp.Payload.(record.Record)
	if !ok || rec.ID() != "t1" {
		t.Errorf("payload = %#v", resp.Payload)
	}
}

func TestDispatch_ListFilters(t *testing.T) {
	e, _ := testEngine(t, "tags", tagPolicy, `[{"id":"t1","name":"A","slug":"a"},{"id":"t2","name":"B","slug":"b"}]`)
	resp := e.Dispatch(context.Background(), Request{Method: http.MethodGet, Query: map[string]any{"slug": "b"}})
	data, ok := resp.Payload.([]record.Record)
	if !ok || len(data) != 1 || data[0].ID() != "t2" {
		t.Errorf("payload = %#v", resp.Payload)
	}
}

func TestDispatch_Payloads(t *testing.T) {
	e, _ := testEngine(t, "tags", tagPolicy, `[{"id":"t1","name":"A","slug":"a"}]`, WithIDGenerator(sequence("t2")))
	ctx := context.Background()

	resp := e.Dispatch(ctx, Request{Method: http.MethodPost, Body: record.Record{"name": "B", "slug": "b"}})
	if rec, ok := resp.Payload.(record.Record); !ok || rec.ID() != "t2" {
		t.Errorf("create payload = %#v", resp.Payload)
	}

	resp = e.Dispatch(ctx, Request{Method: http.MethodDelete, ID: "t1"})
	data, ok := resp.Payload.([]record.Record)
	if !ok || len(data) != 1 || data[0].ID() != "t2" {
		t.Errorf("delete payload = %#v", resp.Payload)
	}
}

func TestDispatch_ReadsCarrySnapshotChecksum(t *testing.T) {
	e, store := testEngine(t, "pages", pagePolicy, `[{"id":"p1","title":"A","content":"x","tags":"t1"}]`)
	ctx := context.Background()

	reqs := []Request{
		{Method: http.MethodGet},
		{Method: http.MethodGet, ID: "p1"},
		{Method: http.MethodGet, Tags: []string{"t1"}},
	}
	for _, req := range reqs {
		e.Invalidate()
		resp := e.Dispatch(ctx, req)
		if resp.Status != http.StatusOK {
			t.Fatalf("%+v: status = %d", req, resp.Status)
		}
		raw, _ := store.Read("pages.json")
		if want := checksum.Sum(raw); resp.Checksum != want {
			t.Errorf("%+v: checksum = %q, want %q", req, resp.Checksum, want)
		}
	}

	resp := e.Dispatch(ctx, Request{Method: http.MethodPut, ID: "p1", Body: record.Record{"title": "B"}})
	if resp.Checksum != "" {
		t.Errorf("mutation checksum = %q, want empty", resp.Checksum)
	}
	resp = e.Dispatch(ctx, Request{Method: http.MethodGet})
	raw, _ := store.Read("pages.json")
	if resp.Checksum != checksum.Sum(raw) {
		t.Error("checksum after write does not match persisted bytes")
	}
}

func TestDispatch_TaggedEmptySet(t *testing.T) {
	e, _ := testEngine(t, "pages", pagePolicy, `[{"id":"p1","title":"A","content":"x","tags":"t1"}]`)
	resp := e.Dispatch(context.Background(), Request{Method: http.MethodGet, Tags: []string{}})
	if resp.Status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.Status)
	}
}
