// Package mcp exposes the service context as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mschirtzinger/teamboard/internal/auditindex"
	"github.com/mschirtzinger/teamboard/internal/ctxutil"
	"github.com/mschirtzinger/teamboard/internal/schema"
	"github.com/mschirtzinger/teamboard/internal/service"
)

// DefaultUser is recorded as the acting user of MCP mutations.
const DefaultUser = "mcp"

// NewServer returns an MCP server with every teamboard tool registered.
func NewServer(app *service.App, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"teamboard",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	Register(s, app, DefaultUser)
	return s
}

// Register adds the teamboard tools to s. Mutations are attributed to user.
func Register(s *server.MCPServer, app *service.App, user string) {
	t := &tools{app: app, user: user}
	s.AddTool(listTool(), t.list)
	s.AddTool(getTool(), t.get)
	s.AddTool(createTool(), t.create)
	s.AddTool(updateTool(), t.update)
	s.AddTool(deleteTool(), t.delete)
	s.AddTool(auditTool(), t.audit)
}

type tools struct {
	app  *service.App
	user string
}

func kindNames() []string {
	names := make([]string, len(schema.BusinessKinds))
	for i, k := range schema.BusinessKinds {
		names[i] = string(k)
	}
	return names
}

func kindArg() mcp.ToolOption {
	return mcp.WithString("kind",
		mcp.Description("Entity kind"),
		mcp.Enum(kindNames()...),
		mcp.Required(),
	)
}

func idArg() mcp.ToolOption {
	return mcp.WithString("id", mcp.Description("Entity id"), mcp.Required())
}

func (t *tools) collection(req mcp.CallToolRequest) (service.Collection, error) {
	name := req.GetString("kind", "")
	kind := schema.Kind(name)
	if !kind.Valid() {
		if k, ok := schema.KindFromPlural(name); ok {
			kind = k
		}
	}
	c, ok := t.app.Collection(kind)
	if !ok {
		return nil, fmt.Errorf("unknown kind %q (expected one of %s)", name, strings.Join(kindNames(), ", "))
	}
	return c, nil
}

func (t *tools) ctx(ctx context.Context) context.Context {
	return ctxutil.WithUserID(ctx, t.user)
}

// --- list ---

func listTool() mcp.Tool {
	return mcp.NewTool("list_entities",
		mcp.WithDescription("List every entity of a kind as JSON."),
		kindArg(),
	)
}

func (t *tools) list(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := t.collection(req)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(c.ListEntities())
}

// --- get ---

func getTool() mcp.Tool {
	return mcp.NewTool("get_entity",
		mcp.WithDescription("Fetch one entity by id."),
		kindArg(),
		idArg(),
	)
}

func (t *tools) get(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := t.collection(req)
	if err != nil {
		return toolError(err)
	}
	e, err := c.GetEntity(req.GetString("id", ""))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(e)
}

// --- create ---

func createTool() mcp.Tool {
	return mcp.NewTool("create_entity",
		mcp.WithDescription("Create an entity. The id is generated when omitted."),
		kindArg(),
		mcp.WithObject("data", mcp.Description("Entity fields (camelCase)"), mcp.Required()),
	)
}

func (t *tools) create(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := t.collection(req)
	if err != nil {
		return toolError(err)
	}
	raw, err := dataArg(req)
	if err != nil {
		return toolError(err)
	}
	e, err := c.CreateJSON(t.ctx(ctx), raw)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(e)
}

// --- update ---

func updateTool() mcp.Tool {
	return mcp.NewTool("update_entity",
		mcp.WithDescription("Change fields of an existing entity. Fields not given keep their value."),
		kindArg(),
		idArg(),
		mcp.WithObject("data", mcp.Description("Fields to change (camelCase)"), mcp.Required()),
	)
}

func (t *tools) update(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := t.collection(req)
	if err != nil {
		return toolError(err)
	}
	raw, err := dataArg(req)
	if err != nil {
		return toolError(err)
	}
	e, err := c.PatchJSON(t.ctx(ctx), req.GetString("id", ""), raw)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(e)
}

// --- delete ---

func deleteTool() mcp.Tool {
	return mcp.NewTool("delete_entity",
		mcp.WithDescription("Delete an entity. Dependent entities are cleaned up (deleting a task removes its assignments)."),
		kindArg(),
		idArg(),
	)
}

func (t *tools) delete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := t.collection(req)
	if err != nil {
		return toolError(err)
	}
	id := req.GetString("id", "")
	if err := c.Delete(t.ctx(ctx), id); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Deleted %s %s", c.Kind(), id)), nil
}

// --- audit ---

func auditTool() mcp.Tool {
	return mcp.NewTool("audit_log",
		mcp.WithDescription("Query the audit log, newest first."),
		mcp.WithString("entityType", mcp.Description("Only this kind")),
		mcp.WithString("entityId", mcp.Description("Only this entity")),
		mcp.WithString("userId", mcp.Description("Only this user")),
		mcp.WithNumber("limit", mcp.Description("Maximum records (default 50)")),
	)
}

func (t *tools) audit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries, err := t.app.QueryAudit(ctx, auditindex.Filter{
		EntityType: schema.Kind(req.GetString("entityType", "")),
		EntityID:   req.GetString("entityId", ""),
		UserID:     req.GetString("userId", ""),
		Limit:      req.GetInt("limit", 50),
	})
	if err != nil {
		return toolError(err)
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("No results."), nil
	}
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s  %-6s  %s/%s  by %s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, e.EntityType, e.TargetID, e.UserID)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func dataArg(req mcp.CallToolRequest) ([]byte, error) {
	data, ok := req.GetArguments()["data"]
	if !ok || data == nil {
		return nil, fmt.Errorf("data is required")
	}
	if s, ok := data.(string); ok {
		// Some clients send objects as JSON text.
		return []byte(s), nil
	}
	return json.Marshal(data)
}

func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
