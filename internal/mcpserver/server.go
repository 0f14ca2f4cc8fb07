// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the content collections as tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/justwrite/internal/apperr"
	"github.com/starford/justwrite/internal/record"
	"github.com/starford/justwrite/internal/resource"
)

const collectionsURI = "justwrite://collections"

// Server wraps the MCP server with collection tools.
type Server struct {
	mcp *server.MCPServer
	reg *resource.Registry
}

// New creates an MCP server with every collection tool registered.
func New(reg *resource.Registry, version string) *Server {
	s := &Server{reg: reg}

	s.mcp = server.NewMCPServer(
		"justwrite",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	collection := mcp.WithString("collection", mcp.Required(), mcp.Description("Collection name, e.g. pages or tags"))

	s.mcp.AddTool(mcp.NewTool("list_collections",
		mcp.WithDescription("List the configured collections with their required, unique and tag fields."),
	), s.listCollections)

	s.mcp.AddTool(mcp.NewTool("list_records",
		mcp.WithDescription("List records in a collection, optionally filtered by exact field values."),
		collection,
		mcp.WithString("filters", mcp.Description(`JSON object of field/value pairs, e.g. {"title":"Hello"}`)),
	), s.listRecords)

	s.mcp.AddTool(mcp.NewTool("get_record",
		mcp.WithDescription("Read a single record by id."),
		collection,
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
	), s.getRecord)

	s.mcp.AddTool(mcp.NewTool("create_record",
		mcp.WithDescription("Create a record. The id is assigned by the server. "+
			"Read the record format first via get_record_contract or the "+collectionsURI+" resource."),
		collection,
		mcp.WithString("body", mcp.Required(), mcp.Description("JSON object with the record fields")),
	), s.createRecord)

	s.mcp.AddTool(mcp.NewTool("replace_record",
		mcp.WithDescription("Merge fields into an existing record. The id cannot change."),
		collection,
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
		mcp.WithString("body", mcp.Required(), mcp.Description("JSON object with the fields to set")),
	), s.replaceRecord)

	s.mcp.AddTool(mcp.NewTool("delete_record",
		mcp.WithDescription("Delete a record by id and return the remaining records."),
		collection,
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
	), s.deleteRecord)

	s.mcp.AddTool(mcp.NewTool("list_tagged",
		mcp.WithDescription("List records carrying every one of the given tag ids."),
		collection,
		mcp.WithString("tags", mcp.Required(), mcp.Description("Comma-separated tag ids")),
		mcp.WithString("filters", mcp.Description("Optional JSON object of field/value pairs")),
	), s.listTagged)

	s.mcp.AddTool(mcp.NewTool("get_record_contract",
		mcp.WithDescription("Returns the record format contract. Call this before creating or replacing records."),
	), s.getRecordContract)

	s.mcp.AddResource(
		mcp.NewResource(collectionsURI, "Collections",
			mcp.WithResourceDescription("Configured collections and their field policies."),
			mcp.WithMIMEType("application/json"),
		),
		s.readCollectionsResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) engine(req mcp.CallToolRequest) (*resource.Engine, *mcp.CallToolResult) {
	name, err := req.RequireString("collection")
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	e, ok := s.reg.Get(name)
	if !ok {
		return nil, mcp.NewToolResultError(fmt.Sprintf("unknown collection: %s", name))
	}
	return e, nil
}

func (s *Server) listCollections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(describe(s.reg))
}

func (s *Server) listRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	e, res := s.engine(req)
	if res != nil {
		return res, nil
	}
	filters, err := optionalObject(req, "filters")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := e.List(ctx, filters)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(data)
}

func (s *Server) getRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	e, res := s.engine(req)
	if res != nil {
		return res, nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := e.Get(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(rec)
}

func (s *Server) createRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	e, res := s.engine(req)
	if res != nil {
		return res, nil
	}
	body, err := requireObject(req, "body")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	created, _, err := e.Create(ctx, body)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(created)
}

func (s *Server) replaceRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	e, res := s.engine(req)
	if res != nil {
		return res, nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	body, err := requireObject(req, "body")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	updated, _, err := e.Replace(ctx, id, body)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(updated)
}

func (s *Server) deleteRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	e, res := s.engine(req)
	if res != nil {
		return res, nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	remaining, err := e.Delete(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(remaining)
}

func (s *Server) listTagged(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	e, res := s.engine(req)
	if res != nil {
		return res, nil
	}
	tags, err := req.RequireString("tags")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filters, err := optionalObject(req, "filters")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := e.Tagged(ctx, record.SplitTags(tags), filters)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(data)
}

func (s *Server) getRecordContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(RecordFormatContract), nil
}

func (s *Server) readCollectionsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	out, err := json.MarshalIndent(describe(s.reg), "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      collectionsURI,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// errorResult reports an engine error with its HTTP-equivalent status.
func errorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%d: %s", apperr.StatusOf(err), apperr.MessageOf(err)))
}

func requireObject(req mcp.CallToolRequest, key string) (record.Record, error) {
	raw, err := req.RequireString(key)
	if err != nil {
		return nil, err
	}
	return parseObject(key, raw)
}

// optionalObject returns nil when key is absent or empty.
func optionalObject(req mcp.CallToolRequest, key string) (map[string]any, error) {
	raw, err := req.RequireString(key)
	if err != nil || raw == "" {
		return nil, nil
	}
	return parseObject(key, raw)
}

func parseObject(key, raw string) (record.Record, error) {
	var obj record.Record
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("%s must be a JSON object", key)
	}
	return obj, nil
}
