package processor

import (
	"sync"

	"github.com/segmentio/kafka-go"
)

// offsetTracker decides how far each partition may be committed. Messages on one partition
// are handled by several workers, so a later offset can finish before an earlier one; only
// the end of the contiguous finished run is safe to commit.
type offsetTracker struct {
	mu    sync.Mutex
	parts map[partitionKey]*partitionOffsets
}

type partitionKey struct {
	topic     string
	partition int
}

type partitionOffsets struct {
	inflight  []int64 // fetch order
	finished  map[int64]struct{}
	committed int64
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{parts: make(map[partitionKey]*partitionOffsets)}
}

// track must be called from the fetch loop before the message is handed to a worker.
func (t *offsetTracker) track(m kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := partitionKey{m.Topic, m.Partition}
	p, ok := t.parts[k]
	if !ok {
		p = &partitionOffsets{finished: make(map[int64]struct{}), committed: -1}
		t.parts[k] = p
	}
	p.inflight = append(p.inflight, m.Offset)
}

// finish marks m handled and reports the message to commit, if the committable position moved.
func (t *offsetTracker) finish(m kafka.Message) (kafka.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.parts[partitionKey{m.Topic, m.Partition}]
	if !ok {
		return kafka.Message{}, false
	}
	p.finished[m.Offset] = struct{}{}

	last := int64(-1)
	for len(p.inflight) > 0 {
		head := p.inflight[0]
		if _, done := p.finished[head]; !done {
			break
		}
		delete(p.finished, head)
		p.inflight = p.inflight[1:]
		last = head
	}
	if last < 0 || last <= p.committed {
		return kafka.Message{}, false
	}
	p.committed = last
	return kafka.Message{Topic: m.Topic, Partition: m.Partition, Offset: last}, true
}
