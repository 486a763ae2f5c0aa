package exec

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockResponse is a canned response for a mocked command.
type MockResponse struct {
	Stdout []byte
	Stderr []byte
	Err    error
}

// Call records a single command invocation for later assertions.
type Call struct {
	Dir  string
	Name string
	Args []string
}

// prefixMatch maps a command-name + argument-prefix to a response.
type prefixMatch struct {
	name   string
	prefix []string
	resp   MockResponse
}

// MockExecutor returns canned responses instead of running commands.
// Responses are matched by exact command line first, then by registered
// prefix matches in registration order.
type MockExecutor struct {
	mu       sync.Mutex
	exact    map[string]MockResponse
	prefixes []prefixMatch
	calls    []Call
}

// NewMockExecutor creates a mock executor. The exact map (keyed by
// "name arg1 arg2 ...") may be nil.
func NewMockExecutor(exact map[string]MockResponse) *MockExecutor {
	if exact == nil {
		exact = make(map[string]MockResponse)
	}
	return &MockExecutor{exact: exact}
}

// AddExactMatch registers a response for an exact command line.
func (m *MockExecutor) AddExactMatch(name string, args []string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exact[commandKey(name, args)] = resp
}

// AddPrefixMatch registers a response for any command whose arguments
// start with the given prefix.
func (m *MockExecutor) AddPrefixMatch(name string, argsPrefix []string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefixes = append(m.prefixes, prefixMatch{name: name, prefix: argsPrefix, resp: resp})
}

// Calls returns a copy of all recorded invocations.
func (m *MockExecutor) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]Call, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CallCount returns the number of invocations matching name and args prefix.
func (m *MockExecutor) CallCount(name string, argsPrefix ...string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Name == name && hasPrefix(c.Args, argsPrefix) {
			count++
		}
	}
	return count
}

func (m *MockExecutor) lookup(dir, name string, args []string) MockResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Dir: dir, Name: name, Args: append([]string(nil), args...)})

	if resp, ok := m.exact[commandKey(name, args)]; ok {
		return resp
	}
	for _, p := range m.prefixes {
		if p.name == name && hasPrefix(args, p.prefix) {
			return p.resp
		}
	}
	return MockResponse{Err: fmt.Errorf("no mock response for: %s %s", name, strings.Join(args, " "))}
}

func (m *MockExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, []byte, error) {
	resp := m.lookup(dir, name, args)
	return resp.Stdout, resp.Stderr, resp.Err
}

func (m *MockExecutor) Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	resp := m.lookup(dir, name, args)
	return resp.Stdout, resp.Err
}

func (m *MockExecutor) CombinedOutput(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	resp := m.lookup(dir, name, args)
	combined := append(append([]byte(nil), resp.Stdout...), resp.Stderr...)
	return combined, resp.Err
}

func commandKey(name string, args []string) string {
	return name + " " + strings.Join(args, " ")
}

func hasPrefix(args, prefix []string) bool {
	if len(prefix) > len(args) {
		return false
	}
	for i, p := range prefix {
		if args[i] != p {
			return false
		}
	}
	return true
}
