package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"dev.helix.recall/internal/models"
)

// MemoryService is the slice of the memory service the tools need.
type MemoryService interface {
	Create(ctx context.Context, params *models.CreateMemoryParams) (*models.Memory, error)
	Search(ctx context.Context, params *models.SearchParams) ([]*models.SearchResult, error)
	List(ctx context.Context, params *models.ListParams) (*models.ListResult, error)
}

// Dispatcher routes protocol methods and tool calls to the memory
// service and maps service errors onto JSON-RPC error codes.
type Dispatcher struct {
	service MemoryService
	logger  *logrus.Logger
	name    string
	version string
}

// NewDispatcher builds a dispatcher over the given service.
func NewDispatcher(service MemoryService, name, version string, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	if name == "" {
		name = "recall"
	}
	return &Dispatcher{service: service, logger: logger, name: name, version: version}
}

// toolCatalog is the static tool list. It never varies per session.
func toolCatalog() []Tool {
	return []Tool{
		{
			Name:        "memory_create",
			Description: "Store a new memory. Content is embedded for similarity search.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"type":       map[string]any{"type": "string", "description": "Memory category, e.g. note or fact"},
					"content":    map[string]any{"type": "object", "description": "Structured content; a 'text' key is used verbatim for embedding"},
					"source":     map[string]any{"type": "string", "description": "Origin of the memory"},
					"tags":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
					"metadata":   map[string]any{"type": "object"},
				},
				"required": []string{"type", "content"},
			},
		},
		{
			Name:        "memory_search",
			Description: "Find memories semantically similar to a query text.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":     map[string]any{"type": "string", "description": "Text to search for"},
					"type":      map[string]any{"type": "string", "description": "Restrict to one memory category"},
					"tags":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"limit":     map[string]any{"type": "integer", "minimum": 1, "maximum": models.MaxLimit},
					"threshold": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        "memory_list",
			Description: "List memories with filters, ordering, and pagination.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"type":     map[string]any{"type": "string"},
					"tags":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"since":    map[string]any{"type": "string", "format": "date-time"},
					"until":    map[string]any{"type": "string", "format": "date-time"},
					"limit":    map[string]any{"type": "integer", "minimum": 1, "maximum": models.MaxLimit},
					"offset":   map[string]any{"type": "integer", "minimum": 0},
					"order_by": map[string]any{"type": "string", "enum": []string{"created_at", "updated_at", "confidence", "type"}},
					"desc":     map[string]any{"type": "boolean"},
				},
			},
		},
	}
}

// Dispatch handles one request and returns its response. Notifications
// return nil.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *Response {
	if req == nil {
		return errorResponse(nil, CodeInvalidRequest, "empty request")
	}
	if req.JSONRPC != "2.0" {
		return errorResponse(req.ID, CodeInvalidRequest, "jsonrpc version must be 2.0")
	}
	if req.Method == "" {
		return errorResponse(req.ID, CodeInvalidRequest, "method is required")
	}

	var resp *Response
	switch req.Method {
	case "initialize":
		resp = d.handleInitialize(req)
	case "ping":
		resp = resultResponse(req.ID, map[string]any{})
	case "tools/list", "listTools":
		resp = resultResponse(req.ID, map[string]any{"tools": toolCatalog()})
	case "tools/call", "callTool":
		resp = d.handleToolCall(ctx, req)
	case "notifications/initialized":
		// Handshake acknowledgement, nothing to do.
		return nil
	default:
		resp = errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method))
	}

	if req.IsNotification() {
		return nil
	}
	return resp
}

func (d *Dispatcher) handleInitialize(req *Request) *Response {
	return resultResponse(req.ID, map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    d.name,
			"version": d.version,
		},
	})
}

// callParams is the params shape of tools/call.
type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (d *Dispatcher) handleToolCall(ctx context.Context, req *Request) *Response {
	var params callParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, fmt.Sprintf("malformed tool call params: %v", err))
	}
	if params.Name == "" {
		return errorResponse(req.ID, CodeInvalidParams, "tool name is required")
	}

	var (
		payload any
		err     error
	)
	switch params.Name {
	case "memory_create":
		payload, err = d.callCreate(ctx, params.Arguments)
	case "memory_search":
		payload, err = d.callSearch(ctx, params.Arguments)
	case "memory_list":
		payload, err = d.callList(ctx, params.Arguments)
	default:
		// An unrecognized tool is an addressing failure, not an internal
		// one.
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown tool %q", params.Name))
	}
	if err != nil {
		return d.errorFor(req.ID, params.Name, err)
	}

	return resultResponse(req.ID, toolResult(payload))
}

func (d *Dispatcher) callCreate(ctx context.Context, arguments json.RawMessage) (any, error) {
	var params models.CreateMemoryParams
	if err := unmarshalArguments(arguments, &params); err != nil {
		return nil, err
	}
	m, err := d.service.Create(ctx, &params)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (d *Dispatcher) callSearch(ctx context.Context, arguments json.RawMessage) (any, error) {
	var params models.SearchParams
	if err := unmarshalArguments(arguments, &params); err != nil {
		return nil, err
	}
	results, err := d.service.Search(ctx, &params)
	if err != nil {
		return nil, err
	}
	return map[string]any{"results": results, "count": len(results)}, nil
}

func (d *Dispatcher) callList(ctx context.Context, arguments json.RawMessage) (any, error) {
	var params models.ListParams
	if err := unmarshalArguments(arguments, &params); err != nil {
		return nil, err
	}
	return d.service.List(ctx, &params)
}

// unmarshalArguments decodes tool arguments, treating malformed JSON as
// a validation failure so it surfaces as invalid params.
func unmarshalArguments(arguments json.RawMessage, dest any) error {
	if len(arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(arguments, dest); err != nil {
		return models.NewValidationError("arguments", err.Error())
	}
	return nil
}

// errorFor maps a service error onto the protocol error space by type,
// never by message text.
func (d *Dispatcher) errorFor(id json.RawMessage, tool string, err error) *Response {
	switch {
	case models.IsValidation(err):
		return errorResponse(id, CodeInvalidParams, err.Error())
	case models.IsVectorizer(err), models.IsStorage(err):
		d.logger.WithError(err).WithField("tool", tool).Error("tool call failed")
		return errorResponse(id, CodeInternalError, err.Error())
	default:
		d.logger.WithError(err).WithField("tool", tool).Error("tool call failed unexpectedly")
		return errorResponse(id, CodeInternalError, err.Error())
	}
}
