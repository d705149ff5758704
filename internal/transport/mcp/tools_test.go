package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mschirtzinger/teamboard/internal/schema"
	"github.com/mschirtzinger/teamboard/internal/service"
)

func newTools(t *testing.T) *tools {
	t.Helper()
	app, err := service.Open(context.Background(), service.Options{DataDir: t.TempDir(), FailFast: true})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { app.Close() })
	return &tools{app: app, user: DefaultUser}
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content %T", res.Content[0])
	}
	return tc.Text
}

func TestCreateUpdateDelete(t *testing.T) {
	tl := newTools(t)
	ctx := context.Background()

	res, err := tl.create(ctx, call(map[string]any{
		"kind": "label",
		"data": map[string]any{"id": "bug", "name": "Bug", "color": "#ff0000"},
	}))
	if err != nil || res.IsError {
		t.Fatalf("create failed: %v %s", err, text(t, res))
	}

	res, _ = tl.update(ctx, call(map[string]any{
		"kind": "labels",
		"id":   "bug",
		"data": `{"name":"Defect"}`,
	}))
	if res.IsError {
		t.Fatalf("update failed: %s", text(t, res))
	}
	var label schema.Label
	if err := json.Unmarshal([]byte(text(t, res)), &label); err != nil || label.Name != "Defect" || label.Color != "#ff0000" {
		t.Errorf("unexpected label %+v (%v)", label, err)
	}

	res, _ = tl.list(ctx, call(map[string]any{"kind": "label"}))
	if !strings.Contains(text(t, res), "Defect") {
		t.Errorf("list missing label: %s", text(t, res))
	}

	res, _ = tl.delete(ctx, call(map[string]any{"kind": "label", "id": "bug"}))
	if res.IsError {
		t.Fatalf("delete failed: %s", text(t, res))
	}
	res, _ = tl.get(ctx, call(map[string]any{"kind": "label", "id": "bug"}))
	if !res.IsError {
		t.Error("expected tool error for deleted label")
	}

	res, _ = tl.audit(ctx, call(map[string]any{"entityType": "label"}))
	out := text(t, res)
	if strings.Count(out, "label/bug") != 3 || !strings.Contains(out, "by mcp") {
		t.Errorf("unexpected audit output:\n%s", out)
	}
}

func TestToolErrors(t *testing.T) {
	tl := newTools(t)
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() (*mcp.CallToolResult, error)
	}{
		{"unknown kind", func() (*mcp.CallToolResult, error) {
			return tl.list(ctx, call(map[string]any{"kind": "spaceship"}))
		}},
		{"missing data", func() (*mcp.CallToolResult, error) {
			return tl.create(ctx, call(map[string]any{"kind": "label"}))
		}},
		{"invalid entity", func() (*mcp.CallToolResult, error) {
			return tl.create(ctx, call(map[string]any{"kind": "label", "data": map[string]any{"name": ""}}))
		}},
		{"missing entity", func() (*mcp.CallToolResult, error) {
			return tl.delete(ctx, call(map[string]any{"kind": "task", "id": "nope"}))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.run()
			if err != nil {
				t.Fatalf("domain failures must not be protocol errors: %v", err)
			}
			if !res.IsError {
				t.Errorf("expected tool error, got %s", text(t, res))
			}
		})
	}
}
