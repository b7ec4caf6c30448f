package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/roach88/chii/internal/dto"
	"github.com/roach88/chii/internal/remote"
)

// FetchCall records one FetchPage call.
type FetchCall struct {
	Endpoint string
	Params   url.Values
	Offset   int64
	Limit    int64
}

// RequestCall records one Request call. Body is the JSON encoding of the
// request body, or empty.
type RequestCall struct {
	Method string
	Path   string
	Body   string
}

// FakeBackend is an in-memory remote.Pager and remote.Requester.
//
// Lists are keyed by ListKey(endpoint, params). Objects are keyed by path and
// served to GET requests.
type FakeBackend struct {
	mu         sync.Mutex
	lists      map[string][]json.RawMessage
	totals     map[string]int64
	objects    map[string]json.RawMessage
	fetchFails map[string]map[int64]error
	unpaged    map[string]bool
	requestErr error
	onFetch    func(FetchCall)

	fetches  []FetchCall
	requests []RequestCall
}

var (
	_ remote.Pager     = (*FakeBackend)(nil)
	_ remote.Requester = (*FakeBackend)(nil)
)

// NewFakeBackend creates an empty backend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		lists:      make(map[string][]json.RawMessage),
		totals:     make(map[string]int64),
		objects:    make(map[string]json.RawMessage),
		fetchFails: make(map[string]map[int64]error),
		unpaged:    make(map[string]bool),
	}
}

// ListKey is the key FakeBackend stores a list under.
func ListKey(endpoint string, params url.Values) string {
	if len(params) == 0 {
		return endpoint
	}
	return endpoint + "?" + params.Encode()
}

// SetList replaces the items served for key.
func (f *FakeBackend) SetList(key string, items ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		raw = append(raw, mustJSON(item))
	}
	f.lists[key] = raw
}

// SetTotal overrides the total reported for key, e.g. to simulate a stale
// count.
func (f *FakeBackend) SetTotal(key string, total int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.totals[key] = total
}

// SetObject serves v for GET path.
func (f *FakeBackend) SetObject(path string, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[path] = mustJSON(v)
}

// ServeUnpaged makes key ignore offset and limit and return the whole list
// on every fetch, reported the way remote.Client reports a bare JSON array.
func (f *FakeBackend) ServeUnpaged(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unpaged[key] = true
}

// FailFetch makes the fetch of key at offset return err.
func (f *FakeBackend) FailFetch(key string, offset int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchFails[key] == nil {
		f.fetchFails[key] = make(map[int64]error)
	}
	f.fetchFails[key][offset] = err
}

// RejectRequests makes every later Request fail with a StatusError.
// Status 0 clears the failure.
func (f *FakeBackend) RejectRequests(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if status == 0 {
		f.requestErr = nil
		return
	}
	f.requestErr = &remote.StatusError{Status: status, Body: http.StatusText(status)}
}

// OnFetch registers a hook run at the start of every FetchPage call.
func (f *FakeBackend) OnFetch(fn func(FetchCall)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onFetch = fn
}

// FetchPage serves items[offset:offset+limit] of the list.
func (f *FakeBackend) FetchPage(ctx context.Context, endpoint string, params url.Values, offset, limit int64) (dto.Page[json.RawMessage], error) {
	if err := ctx.Err(); err != nil {
		return dto.Page[json.RawMessage]{}, err
	}
	call := FetchCall{Endpoint: endpoint, Params: params, Offset: offset, Limit: limit}

	f.mu.Lock()
	f.fetches = append(f.fetches, call)
	hook := f.onFetch
	key := ListKey(endpoint, params)
	failErr := f.fetchFails[key][offset]
	items := f.lists[key]
	total, override := f.totals[key]
	unpaged := f.unpaged[key]
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if failErr != nil {
		return dto.Page[json.RawMessage]{}, failErr
	}
	if unpaged {
		n := int64(len(items))
		return dto.Page[json.RawMessage]{Total: n, Limit: n, Data: append([]json.RawMessage{}, items...)}, nil
	}
	if !override {
		total = int64(len(items))
	}

	page := dto.Page[json.RawMessage]{Total: total, Limit: limit, Offset: offset, Data: []json.RawMessage{}}
	if offset < int64(len(items)) {
		end := min(offset+limit, int64(len(items)))
		page.Data = append(page.Data, items[offset:end]...)
	}
	return page, nil
}

// Request records the call and serves GET objects.
func (f *FakeBackend) Request(ctx context.Context, method, path string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	call := RequestCall{Method: method, Path: path}
	if body != nil {
		call.Body = string(mustJSON(body))
	}

	f.mu.Lock()
	f.requests = append(f.requests, call)
	reqErr := f.requestErr
	obj, ok := f.objects[path]
	f.mu.Unlock()

	if reqErr != nil {
		if se, isStatus := reqErr.(*remote.StatusError); isStatus {
			cp := *se
			cp.Method, cp.Path = method, path
			return &cp
		}
		return reqErr
	}
	if method == http.MethodGet {
		if !ok {
			return &remote.StatusError{Method: method, Path: path, Status: http.StatusNotFound}
		}
		if out != nil {
			return json.Unmarshal(obj, out)
		}
	}
	return nil
}

// Fetches returns every FetchPage call so far.
func (f *FakeBackend) Fetches() []FetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FetchCall(nil), f.fetches...)
}

// Requests returns every Request call so far.
func (f *FakeBackend) Requests() []RequestCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RequestCall(nil), f.requests...)
}

// Writes returns the non-GET Request calls so far.
func (f *FakeBackend) Writes() []RequestCall {
	var out []RequestCall
	for _, r := range f.Requests() {
		if r.Method != http.MethodGet {
			out = append(out, r)
		}
	}
	return out
}

func mustJSON(v any) json.RawMessage {
	if raw, ok := v.(json.RawMessage); ok {
		return raw
	}
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("testutil: marshal %T: %v", v, err))
	}
	return data
}
