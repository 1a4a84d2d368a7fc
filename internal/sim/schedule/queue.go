package schedule

import "container/heap"

// Kind names a deferred transition.
type Kind string

const (
	KindResumeHarvest Kind = "RESUME_HARVEST"
)

// Event is a deferred transition for one worker. Gen is the worker's command
// generation when the event was scheduled; the owner drops events whose Gen
// no longer matches.
type Event struct {
	Seq      uint64
	FireTick uint64
	Kind     Kind
	WorkerID string
	NodeID   string
	Gen      uint64

	index int
}

type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].FireTick != h[j].FireTick {
		return h[i].FireTick < h[j].FireTick
	}
	return h[i].Seq < h[j].Seq
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x any) {
	e := x.(*Event)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue orders events by fire tick, then by insertion.
type Queue struct {
	h       eventHeap
	nextSeq uint64
}

func (q *Queue) Len() int { return q.h.Len() }

// Schedule enqueues e and returns it with its sequence number assigned.
func (q *Queue) Schedule(e Event) *Event {
	q.nextSeq++
	ev := e
	ev.Seq = q.nextSeq
	heap.Push(&q.h, &ev)
	return &ev
}

// PopDue removes and returns every event with FireTick <= now, in order.
func (q *Queue) PopDue(now uint64) []*Event {
	var out []*Event
	for q.h.Len() > 0 && q.h[0].FireTick <= now {
		out = append(out, heap.Pop(&q.h).(*Event))
	}
	return out
}

// CancelWorker drops all pending events for workerID and reports how many.
func (q *Queue) CancelWorker(workerID string) int {
	kept := q.h[:0]
	n := 0
	for _, e := range q.h {
		if e.WorkerID == workerID {
			e.index = -1
			n++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.h); i++ {
		q.h[i] = nil
	}
	q.h = kept
	for i, e := range q.h {
		e.index = i
	}
	heap.Init(&q.h)
	return n
}

// Pending returns a copy of the queued events in fire order.
func (q *Queue) Pending() []Event {
	cp := make(eventHeap, len(q.h))
	for i, e := range q.h {
		ev := *e
		cp[i] = &ev
	}
	out := make([]Event, 0, len(cp))
	for cp.Len() > 0 {
		out = append(out, *heap.Pop(&cp).(*Event))
	}
	return out
}

// NextSeq exposes the sequence counter for digests.
func (q *Queue) NextSeq() uint64 { return q.nextSeq }
