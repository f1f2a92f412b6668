// Package buffer holds the owned byte-buffer and linked-list primitives
// shared by the stream and flush-engine code in package bridge.
//
// Everything here is intentionally dumb: ownership rules (who frees what,
// and when) are enforced by the callers in bridge, not by this package.
package buffer

// Header is a single (name, value) pair copied out of the HTTP/3 codec's
// scratch buffers. Headers are linked in arrival order and that order is
// preserved end to end.
type Header struct {
	Name  []byte
	Value []byte
	next  *Header
}

// HeaderList is a singly linked FIFO of Header nodes.
type HeaderList struct {
	head *Header
	tail *Header
}

// Append copies name/value into a new Header and appends it to the list.
func (l *HeaderList) Append(name, value []byte) {
	h := &Header{
		Name:  append([]byte(nil), name...),
		Value: append([]byte(nil), value...),
	}
	if l.tail != nil {
		l.tail.next = h
		l.tail = h
	} else {
		l.head, l.tail = h, h
	}
}

// Take detaches the list and returns it; the receiver becomes empty.
func (l *HeaderList) Take() []Header {
	var out []Header
	for h := l.head; h != nil; h = h.next {
		out = append(out, Header{Name: h.Name, Value: h.Value})
	}
	l.head, l.tail = nil, nil
	return out
}

// Empty reports whether the list has no pending headers.
func (l *HeaderList) Empty() bool {
	return l.head == nil
}

// Chunk is an owned outbound byte buffer plus a send cursor. A chunk is
// partially consumable: Sent advances as the codec pulls bytes out of it,
// and once Sent reaches len(Data) the chunk is done but its bytes must
// stay alive until the caller has copied them into a stable send buffer
// (see bridge's flush engine, which is why Chunks move to a "finished"
// list instead of being freed on the spot).
type Chunk struct {
	Data []byte
	Sent int
	next *Chunk
}

// Remaining returns the unsent tail of the chunk.
func (c *Chunk) Remaining() []byte {
	return c.Data[c.Sent:]
}

// Done reports whether every byte of the chunk has been handed to the codec.
func (c *Chunk) Done() bool {
	return c.Sent >= len(c.Data)
}

// ChunkFIFO is a singly linked FIFO queue of response chunks.
type ChunkFIFO struct {
	head *Chunk
	tail *Chunk
}

// Push appends a freshly copied chunk to the tail of the queue.
func (q *ChunkFIFO) Push(data []byte) {
	c := &Chunk{Data: append([]byte(nil), data...)}
	if q.tail != nil {
		q.tail.next = c
		q.tail = c
	} else {
		q.head, q.tail = c, c
	}
}

// Front returns the head chunk, or nil if the queue is empty.
func (q *ChunkFIFO) Front() *Chunk {
	return q.head
}

// Empty reports whether the queue has no chunks left.
func (q *ChunkFIFO) Empty() bool {
	return q.head == nil
}

// PopFront removes and returns the head chunk once it has been fully sent.
func (q *ChunkFIFO) PopFront() *Chunk {
	c := q.head
	if c == nil {
		return nil
	}
	q.head = c.next
	if q.head == nil {
		q.tail = nil
	}
	c.next = nil
	return c
}

// FinishedList accumulates chunks that are fully sent but whose bytes may
// still be referenced by a codec write that hasn't been flushed yet. This
// two-phase freeing keeps a chunk alive until the flush engine has copied
// its bytes into a stable send buffer, at which point Reap() drops it.
type FinishedList struct {
	head *Chunk
}

// Add moves a fully-sent chunk onto the finished list.
func (f *FinishedList) Add(c *Chunk) {
	c.next = f.head
	f.head = c
}

// Reap drops every chunk on the finished list, freeing their buffers.
func (f *FinishedList) Reap() {
	f.head = nil
}
