package consistenthash

import (
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/twmb/murmur3"
)

// Hash maps bytes onto the ring.
type Hash func(data []byte) uint32

// Ring is a weighted consistent hash ring. A node with weight w owns
// w*replicas virtual points.
type Ring struct {
	mu       sync.RWMutex
	hash     Hash
	replicas int
	points   []uint32
	owners   map[uint32]string
	weights  map[string]int
}

// New builds an empty ring. A nil fn selects murmur3; replicas <= 0 selects 64.
func New(replicas int, fn Hash) *Ring {
	if fn == nil {
		fn = murmur3.Sum32
	}
	if replicas <= 0 {
		replicas = 64
	}
	return &Ring{
		hash:     fn,
		replicas: replicas,
		owners:   make(map[uint32]string),
		weights:  make(map[string]int),
	}
}

// Add inserts nodes with weight 1.
func (r *Ring) Add(nodes ...string) {
	for _, n := range nodes {
		r.AddWeighted(n, 1)
	}
}

// AddWeighted inserts node, replacing its previous weight if present.
// Empty names and non-positive weights are ignored.
func (r *Ring) AddWeighted(node string, weight int) {
	if node == "" || weight <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.weights[node]; ok {
		r.removeLocked(node)
	}
	r.weights[node] = weight
	for i := range weight * r.replicas {
		p := r.hash([]byte(node + "#" + strconv.Itoa(i)))
		// On a point collision the lexically smaller node wins so every
		// process builds the same ring regardless of insertion order.
		if cur, taken := r.owners[p]; taken && cur < node {
			continue
		}
		r.owners[p] = node
	}
	r.rebuild()
}

func (r *Ring) Remove(nodes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range nodes {
		if _, ok := r.weights[n]; ok {
			r.removeLocked(n)
		}
	}
	r.rebuild()
}

func (r *Ring) removeLocked(node string) {
	delete(r.weights, node)
	for p, owner := range r.owners {
		if owner == node {
			delete(r.owners, p)
		}
	}
}

func (r *Ring) rebuild() {
	r.points = r.points[:0]
	for p := range r.owners {
		r.points = append(r.points, p)
	}
	slices.Sort(r.points)
}

// Get returns the node owning key, or "" when the ring is empty.
func (r *Ring) Get(key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.points) == 0 {
		return ""
	}
	h := r.hash([]byte(key))
	idx := sort.Search(len(r.points), func(i int) bool { return r.points[i] >= h })
	if idx == len(r.points) {
		idx = 0
	}
	return r.owners[r.points[idx]]
}

// Nodes returns the member nodes in sorted order.
func (r *Ring) Nodes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	nodes := make([]string, 0, len(r.weights))
	for n := range r.weights {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)
	return nodes
}

func (r *Ring) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.weights)
}

// ShardKey is the ring key used for shard i.
func ShardKey(i int) string {
	return "shard-" + strconv.Itoa(i)
}

// Owned returns the set of shards in [0, shards) that map to node.
func (r *Ring) Owned(node string, shards int) *bitset.BitSet {
	set := bitset.New(uint(shards))
	for i := range shards {
		if r.Get(ShardKey(i)) == node {
			set.Set(uint(i))
		}
	}
	return set
}
