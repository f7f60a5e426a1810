package api

import (
	"context"
	"fmt"
	"net/url"
	"sync"
)

// Call records one request made against a Fake.
type Call struct {
	Method  string
	Path    string
	Query   url.Values
	Payload map[string]any
}

// Fake is an in-memory Client for tests. Responses are registered per
// method and path; every request is recorded so tests can assert on
// call order, which rollback behavior depends on.
type Fake struct {
	mu       sync.Mutex
	calls    []Call
	objects  map[string]map[string]any
	listings map[string][]map[string]any
	faults   map[string]error
}

func NewFake() *Fake {
	return &Fake{
		objects:  make(map[string]map[string]any),
		listings: make(map[string][]map[string]any),
		faults:   make(map[string]error),
	}
}

func callKey(method, path string) string { return method + " " + path }

// StubObject registers the response for Get/Create/Update on a path.
func (f *Fake) StubObject(method, path string, obj map[string]any) {
	f.objects[callKey(method, path)] = obj
}

// StubListing registers the entries List returns for a path.
func (f *Fake) StubListing(path string, entries []map[string]any) {
	f.listings[path] = entries
}

// StubFault makes a method/path pair fail with the given error.
func (f *Fake) StubFault(method, path string, err error) {
	f.faults[callKey(method, path)] = err
}

// Calls returns every recorded request in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the recorded requests for one method.
func (f *Fake) CallsTo(method string) []Call {
	var matched []Call
	for _, call := range f.Calls() {
		if call.Method == method {
			matched = append(matched, call)
		}
	}
	return matched
}

func (f *Fake) record(call Call) error {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	return f.faults[callKey(call.Method, call.Path)]
}

func (f *Fake) Get(_ context.Context, path string, query url.Values) (map[string]any, error) {
	if err := f.record(Call{Method: "GET", Path: path, Query: query}); err != nil {
		return nil, err
	}
	obj, ok := f.objects[callKey("GET", path)]
	if !ok {
		return nil, &ServerFault{StatusCode: 404, Body: fmt.Sprintf("no stub for GET %s", path)}
	}
	return obj, nil
}

func (f *Fake) List(_ context.Context, path string, query url.Values) ([]map[string]any, error) {
	if err := f.record(Call{Method: "LIST", Path: path, Query: query}); err != nil {
		return nil, err
	}
	return f.listings[path], nil
}

func (f *Fake) Create(_ context.Context, path string, payload map[string]any) (map[string]any, error) {
	if err := f.record(Call{Method: "POST", Path: path, Payload: payload}); err != nil {
		return nil, err
	}
	if obj, ok := f.objects[callKey("POST", path)]; ok {
		return obj, nil
	}
	return map[string]any{}, nil
}

func (f *Fake) Update(_ context.Context, path string, payload map[string]any) (map[string]any, error) {
	if err := f.record(Call{Method: "PATCH", Path: path, Payload: payload}); err != nil {
		return nil, err
	}
	if obj, ok := f.objects[callKey("PATCH", path)]; ok {
		return obj, nil
	}
	return map[string]any{}, nil
}

func (f *Fake) Delete(_ context.Context, path string) error {
	return f.record(Call{Method: "DELETE", Path: path})
}

// FakeClients is a Clients that hands out one Fake per platform,
// ignoring the organization.
type FakeClients struct {
	Fakes map[string]*Fake
}

func NewFakeClients(platforms ...string) *FakeClients {
	fakes := make(map[string]*Fake, len(platforms))
	for _, platform := range platforms {
		fakes[platform] = NewFake()
	}
	return &FakeClients{Fakes: fakes}
}

func (c *FakeClients) For(_ context.Context, _ string, platform string) (Client, error) {
	fake, ok := c.Fakes[platform]
	if !ok {
		return nil, fmt.Errorf("no fake client for platform %s", platform)
	}
	return fake, nil
}
