package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.helix.recall/internal/models"
)

// fakeService returns canned values and records the last params seen.
type fakeService struct {
	createErr  error
	searchErr  error
	listErr    error
	lastCreate *models.CreateMemoryParams
	lastSearch *models.SearchParams
}

func (f *fakeService) Create(_ context.Context, params *models.CreateMemoryParams) (*models.Memory, error) {
	f.lastCreate = params
	if f.createErr != nil {
		return nil, f.createErr
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &models.Memory{ID: "11111111-1111-1111-1111-111111111111", Type: params.Type, Content: params.Content}, nil
}

func (f *fakeService) Search(_ context.Context, params *models.SearchParams) ([]*models.SearchResult, error) {
	f.lastSearch = params
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return []*models.SearchResult{
		{Memory: &models.Memory{ID: "22222222-2222-2222-2222-222222222222", Type: "note"}, Similarity: 0.93},
	}, nil
}

func (f *fakeService) List(_ context.Context, params *models.ListParams) (*models.ListResult, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &models.ListResult{Memories: []*models.Memory{}, Total: 0}, nil
}

func newTestDispatcher(svc MemoryService) *Dispatcher {
	return NewDispatcher(svc, "recall", "test", nil)
}

func request(t *testing.T, id, method, params string) *Request {
	t.Helper()
	req := &Request{JSONRPC: "2.0", Method: method}
	if id != "" {
		req.ID = json.RawMessage(id)
	}
	if params != "" {
		req.Params = json.RawMessage(params)
	}
	return req
}

func TestDispatcher_Initialize(t *testing.T) {
	d := newTestDispatcher(&fakeService{})

	resp := d.Dispatch(context.Background(), request(t, "1", "initialize", ""))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, ProtocolVersion, result["protocolVersion"])

	capabilities, ok := result["capabilities"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, capabilities, "tools")
}

func TestDispatcher_Ping(t *testing.T) {
	d := newTestDispatcher(&fakeService{})

	resp := d.Dispatch(context.Background(), request(t, "7", "ping", ""))
	require.NotNil(t, resp)
	assert.Nil(t, resp.Error)
	assert.NotNil(t, resp.Result)
}

func TestDispatcher_ToolsList(t *testing.T) {
	d := newTestDispatcher(&fakeService{})

	for _, method := range []string{"tools/list", "listTools"} {
		resp := d.Dispatch(context.Background(), request(t, "2", method, ""))
		require.NotNil(t, resp, method)
		require.Nil(t, resp.Error, method)

		result, ok := resp.Result.(map[string]any)
		require.True(t, ok, method)
		tools, ok := result["tools"].([]Tool)
		require.True(t, ok, method)
		require.Len(t, tools, 3, method)

		names := make([]string, 0, len(tools))
		for _, tool := range tools {
			names = append(names, tool.Name)
			assert.NotEmpty(t, tool.Description)
			assert.NotNil(t, tool.InputSchema)
		}
		assert.ElementsMatch(t, []string{"memory_create", "memory_search", "memory_list"}, names)
	}
}

func TestDispatcher_CallCreate(t *testing.T) {
	svc := &fakeService{}
	d := newTestDispatcher(svc)

	params := `{"name":"memory_create","arguments":{"type":"note","content":{"text":"milk"},"tags":["groceries"]}}`
	resp := d.Dispatch(context.Background(), request(t, "3", "tools/call", params))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	created, ok := result["toolResult"].(*models.Memory)
	require.True(t, ok)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", created.ID)

	require.NotNil(t, svc.lastCreate)
	assert.Equal(t, "note", svc.lastCreate.Type)
	assert.Equal(t, []string{"groceries"}, svc.lastCreate.Tags)
}

func TestDispatcher_CallSearch_AliasMethod(t *testing.T) {
	svc := &fakeService{}
	d := newTestDispatcher(svc)

	params := `{"name":"memory_search","arguments":{"query":"milk","limit":5}}`
	resp := d.Dispatch(context.Background(), request(t, "4", "callTool", params))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	payload, ok := result["toolResult"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, payload["count"])

	require.NotNil(t, svc.lastSearch)
	assert.Equal(t, "milk", svc.lastSearch.Query)
	assert.Equal(t, 5, svc.lastSearch.Limit)
}

func TestDispatcher_UnknownToolIsMethodNotFound(t *testing.T) {
	d := newTestDispatcher(&fakeService{})

	params := `{"name":"memory_destroy_all","arguments":{}}`
	resp := d.Dispatch(context.Background(), request(t, "5", "tools/call", params))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestDispatcher_UnknownMethod(t *testing.T) {
	d := newTestDispatcher(&fakeService{})

	resp := d.Dispatch(context.Background(), request(t, "6", "resources/list", ""))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestDispatcher_ValidationErrorIsInvalidParams(t *testing.T) {
	d := newTestDispatcher(&fakeService{})

	params := `{"name":"memory_create","arguments":{"content":{"text":"no type"}}}`
	resp := d.Dispatch(context.Background(), request(t, "8", "tools/call", params))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestDispatcher_StorageErrorIsInternal(t *testing.T) {
	svc := &fakeService{searchErr: models.NewStorageError("search", errors.New("connection reset"))}
	d := newTestDispatcher(svc)

	params := `{"name":"memory_search","arguments":{"query":"milk"}}`
	resp := d.Dispatch(context.Background(), request(t, "9", "tools/call", params))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInternalError, resp.Error.Code)
}

func TestDispatcher_VectorizerErrorIsInternal(t *testing.T) {
	svc := &fakeService{searchErr: models.NewVectorizerError(errors.New("sidecar down"))}
	d := newTestDispatcher(svc)

	params := `{"name":"memory_search","arguments":{"query":"milk"}}`
	resp := d.Dispatch(context.Background(), request(t, "10", "tools/call", params))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInternalError, resp.Error.Code)
}

func TestDispatcher_MalformedArgumentsIsInvalidParams(t *testing.T) {
	d := newTestDispatcher(&fakeService{})

	params := `{"name":"memory_search","arguments":{"query":42}}`
	resp := d.Dispatch(context.Background(), request(t, "11", "tools/call", params))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestDispatcher_WrongVersionIsInvalidRequest(t *testing.T) {
	d := newTestDispatcher(&fakeService{})

	req := &Request{JSONRPC: "1.0", ID: json.RawMessage("12"), Method: "ping"}
	resp := d.Dispatch(context.Background(), req)
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
}

func TestDispatcher_NotificationGetsNoResponse(t *testing.T) {
	d := newTestDispatcher(&fakeService{})

	resp := d.Dispatch(context.Background(), request(t, "", "notifications/initialized", ""))
	assert.Nil(t, resp)

	resp = d.Dispatch(context.Background(), request(t, "", "ping", ""))
	assert.Nil(t, resp)
}
