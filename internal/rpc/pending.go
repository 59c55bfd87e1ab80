package rpc

import (
	"sync"

	"github.com/luciancaetano/wadash/internal/protocol"
)

// outcome is the terminal result of a pending call: a response frame or an
// error that ended the wait.
type outcome struct {
	frame *protocol.Frame
	err   error
}

// pendingTable correlates request ids with waiting callers. An entry is
// removed by whichever of resolve, cancel or failAll reaches it first, so
// each entry completes at most once.
type pendingTable struct {
	mu      sync.Mutex
	entries map[uint64]chan outcome
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[uint64]chan outcome)}
}

// register adds a waiter for id. It reports false if id is already pending.
func (p *pendingTable) register(id uint64) (<-chan outcome, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.entries[id]; exists {
		return nil, false
	}
	ch := make(chan outcome, 1)
	p.entries[id] = ch
	return ch, true
}

// resolve delivers f to the waiter for id. Unknown ids are dropped and
// reported as false.
func (p *pendingTable) resolve(id uint64, f *protocol.Frame) bool {
	p.mu.Lock()
	ch, ok := p.entries[id]
	if ok {
		delete(p.entries, id)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	ch <- outcome{frame: f}
	return true
}

// cancel removes id without delivering anything.
func (p *pendingTable) cancel(id uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.entries[id]; !ok {
		return false
	}
	delete(p.entries, id)
	return true
}

// failAll ends every pending wait with err and returns how many were failed.
func (p *pendingTable) failAll(err error) int {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[uint64]chan outcome)
	p.mu.Unlock()

	for _, ch := range entries {
		ch <- outcome{err: err}
	}
	return len(entries)
}

func (p *pendingTable) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
