package hashrouter

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
)

// Suppression flags
const (
	SFSigBad    uint32 = 1 << 0
	SFSigGood   uint32 = 1 << 1
	SFLocalBad  uint32 = 1 << 2
	SFLocalGood uint32 = 1 << 3
	SFRelayed   uint32 = 1 << 4
	SFApplied   uint32 = 1 << 5
)

const DefaultCapacity = 16384

type entry struct {
	flags uint32
	peers map[string]struct{}
}

// HashRouter is the node-wide suppression registry. It remembers which
// transaction ids were seen, what was learned about them and which peers
// they were relayed to, so work is not repeated.
type HashRouter struct {
	mutex   sync.Mutex
	entries *lru.Cache
}

// getOrCreate returns the entry for id; caller must hold the mutex
func (r *HashRouter) getOrCreate(id common.Hash) (*entry, bool) {
	if v, ok := r.entries.Get(id); ok {
		return v.(*entry), false
	}
	e := &entry{peers: make(map[string]struct{})}
	r.entries.Add(id, e)
	return e, true
}

// AddSuppression records id and reports whether it was not seen before
func (r *HashRouter) AddSuppression(id common.Hash) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	_, created := r.getOrCreate(id)
	return created
}

// SetFlags adds flags to id, returning false if they were all already set
func (r *HashRouter) SetFlags(id common.Hash, flags uint32) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	e, _ := r.getOrCreate(id)
	if e.flags&flags == flags {
		return false
	}
	e.flags |= flags
	return true
}

// GetFlags returns the flags recorded for id
func (r *HashRouter) GetFlags(id common.Hash) uint32 {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if v, ok := r.entries.Peek(id); ok {
		return v.(*entry).flags
	}
	return 0
}

// ShouldRelay reports whether id has not yet been relayed to peer and
// marks it as relayed
func (r *HashRouter) ShouldRelay(id common.Hash, peer string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	e, _ := r.getOrCreate(id)
	if _, ok := e.peers[peer]; ok {
		return false
	}
	e.peers[peer] = struct{}{}
	e.flags |= SFRelayed
	return true
}

// Len returns the number of tracked ids
func (r *HashRouter) Len() int {
	return r.entries.Len()
}

// Purge forgets every tracked id
func (r *HashRouter) Purge() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.entries.Purge()
}

// CreateHashRouter creates a registry holding at most capacity ids
func CreateHashRouter(capacity int) *HashRouter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cache, err := lru.New(capacity)
	if err != nil {
		panic(err)
	}
	return &HashRouter{entries: cache}
}
