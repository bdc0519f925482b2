// Package console keeps the bounded, typed activity log shown by the
// simulator UI.
package console

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// DefaultCapacity is the number of entries kept before the oldest is dropped.
const DefaultCapacity = 500

// Type classifies an entry for display.
type Type string

const (
	TypeSystem  Type = "system"
	TypeMQTT    Type = "mqtt"
	TypeSensor  Type = "sensor"
	TypeCommand Type = "command"
	TypeWarning Type = "warning"
	TypeError   Type = "error"
	TypeSuccess Type = "success"
)

// Entry is one console line.
type Entry struct {
	ID        int    `json:"id"`
	ElapsedMs int64  `json:"timestamp"` // since start or last Clear
	Time      string `json:"time"`      // wall clock, 15:04:05.000
	Type      Type   `json:"type"`
	Message   string `json:"message"`
}

// Console is a fixed-capacity FIFO of entries. Safe for concurrent use.
type Console struct {
	mu    sync.Mutex
	buf   []Entry
	head  int // next write position
	count int

	nextID int
	gen    int // bumped by Clear
	epoch  time.Time
	now    func() time.Time
}

// Cursor is a reader's position: the last entry ID it has seen within a
// generation. The zero generation with ID -1 starts from the beginning.
type Cursor struct {
	Gen int
	ID  int
}

// Start is the cursor of a reader that has seen nothing.
var Start = Cursor{ID: -1}

// New creates a console holding at most capacity entries. If now is nil,
// time.Now is used.
func New(capacity int, now func() time.Time) *Console {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &Console{
		buf:   make([]Entry, capacity),
		epoch: now(),
		now:   now,
	}
}

// Add appends a message, dropping the oldest entry when full.
func (c *Console) Add(typ Type, msg string) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	at := c.now()
	e := Entry{
		ID:        c.nextID,
		ElapsedMs: at.Sub(c.epoch).Milliseconds(),
		Time:      at.Format("15:04:05.000"),
		Type:      typ,
		Message:   msg,
	}
	c.nextID++

	c.buf[c.head] = e
	c.head = (c.head + 1) % len(c.buf)
	if c.count < len(c.buf) {
		c.count++
	}
	return e
}

func (c *Console) System(msg string) Entry  { return c.Add(TypeSystem, msg) }
func (c *Console) MQTT(msg string) Entry    { return c.Add(TypeMQTT, msg) }
func (c *Console) Sensor(msg string) Entry  { return c.Add(TypeSensor, msg) }
func (c *Console) Command(msg string) Entry { return c.Add(TypeCommand, msg) }
func (c *Console) Warning(msg string) Entry { return c.Add(TypeWarning, msg) }
func (c *Console) Error(msg string) Entry   { return c.Add(TypeError, msg) }
func (c *Console) Success(msg string) Entry { return c.Add(TypeSuccess, msg) }

// JSON logs v as "label: <json>". Values that cannot be encoded log an error
// entry instead.
func (c *Console) JSON(label string, v any, typ Type) Entry {
	data, err := json.Marshal(v)
	if err != nil {
		return c.Error(fmt.Sprintf("%s: [unable to encode]", label))
	}
	return c.Add(typ, fmt.Sprintf("%s: %s", label, data))
}

// Entries returns the buffered entries, oldest first.
func (c *Console) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries()
}

func (c *Console) entries() []Entry {
	out := make([]Entry, c.count)
	start := (c.head - c.count + len(c.buf)) % len(c.buf)
	for i := range out {
		out[i] = c.buf[(start+i)%len(c.buf)]
	}
	return out
}

// Since returns entries with an ID greater than id, oldest first.
func (c *Console) Since(id int) []Entry {
	all := c.Entries()
	for i, e := range all {
		if e.ID > id {
			return all[i:]
		}
	}
	return nil
}

// Next returns the entries a reader at cur has not seen and the advanced
// cursor. A cursor from before the last Clear gets the whole buffer.
func (c *Console) Next(cur Cursor) ([]Entry, Cursor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur.Gen != c.gen {
		cur = Cursor{Gen: c.gen, ID: -1}
	}
	all := c.entries()
	for i, e := range all {
		if e.ID > cur.ID {
			out := all[i:]
			cur.ID = out[len(out)-1].ID
			return out, cur
		}
	}
	return nil, cur
}

// Len returns the number of buffered entries.
func (c *Console) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Clear empties the console and restarts ids and elapsed time.
func (c *Console) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = make([]Entry, len(c.buf))
	c.head, c.count, c.nextID = 0, 0, 0
	c.gen++
	c.epoch = c.now()
}
