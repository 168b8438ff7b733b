package pac

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// ErrNoMockReply is returned by MockExecutor for commands no rule matches.
var ErrNoMockReply = errors.New("no mock reply for command")

// MockReply is the scripted outcome of a command.
type MockReply struct {
	Line string
	Err  error
}

// MockMatcher decides whether a rule applies to a command.
type MockMatcher func(cmd Command) bool

type mockRule struct {
	match MockMatcher
	reply MockReply
}

// MockExecutor is an Executor test double that returns scripted replies
// without spawning pac. Rules are matched in registration order.
type MockExecutor struct {
	mu     sync.RWMutex
	rules  []mockRule
	calls  []Command
	exited bool
}

// NewMockExecutor creates an empty MockExecutor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{}
}

// AddRule registers reply for commands accepted by match.
func (m *MockExecutor) AddRule(match MockMatcher, reply MockReply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{match: match, reply: reply})
}

// AddExactMatch registers reply for commands whose tokens equal tokens.
func (m *MockExecutor) AddExactMatch(tokens []string, reply MockReply) {
	want := NewCommand(tokens...)
	m.AddRule(func(cmd Command) bool { return cmd.Equal(want) }, reply)
}

// AddPrefixMatch registers reply for commands starting with prefix.
func (m *MockExecutor) AddPrefixMatch(prefix []string, reply MockReply) {
	m.AddRule(func(cmd Command) bool {
		tokens := cmd.Tokens()
		return len(tokens) >= len(prefix) && slices.Equal(tokens[:len(prefix)], prefix)
	}, reply)
}

// GetCalls returns every command executed so far.
func (m *MockExecutor) GetCalls() []Command {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.calls)
}

// Exited reports whether Exit was called.
func (m *MockExecutor) Exited() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exited
}

// ExecuteCommand records cmd and returns the first matching reply.
func (m *MockExecutor) ExecuteCommand(ctx context.Context, cmd Command) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.calls = append(m.calls, cmd)
	rules := m.rules
	m.mu.Unlock()

	for _, rule := range rules {
		if rule.match(cmd) {
			return rule.reply.Line, rule.reply.Err
		}
	}
	return "", ErrNoMockReply
}

// Exit records that the executor was asked to stop.
func (m *MockExecutor) Exit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exited = true
	return nil
}

var (
	_ Executor = (*Channel)(nil)
	_ Executor = (*MockExecutor)(nil)
	_ exiter   = (*Channel)(nil)
	_ exiter   = (*MockExecutor)(nil)
)
