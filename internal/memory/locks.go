package memory

import (
	"hash/fnv"
	"sync"
)

// lockStripes is the number of per-id mutex stripes. Updates to the same
// id always hash to the same stripe, so their read-modify-write
// sequences never interleave.
const lockStripes = 64

// idLocks guards the read-modify-write sequence of update by id.
// Requests run on parallel goroutines, so without this two updates to
// the same row could each read the old row and silently drop the
// other's fields.
type idLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *idLocks) lock(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	mu := &l.stripes[h.Sum32()%lockStripes]
	mu.Lock()
	return mu
}
