// Package bus is the in-process message bus connecting samplers, stores and
// publishers. Topics are slash-free segment paths ("readings", "bmp280");
// subscriptions may use MQTT-style wildcards: "+" matches one segment, "#"
// matches the rest of the path. Retained messages replay to late
// subscribers, which is how device identity ends up in every sink that
// comes up after the probe ran.
package bus

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
)

// Wildcard segments for subscription patterns. Concrete topics must not
// contain them.
const (
	WildcardOne = "+"
	WildcardAll = "#"
)

// Topic is a path of segments.
type Topic []string

// T builds a Topic from string and integer parts. Unsupported part types
// panic: topics are wired at startup and a bad one is a programming error.
func T(parts ...any) Topic {
	topic := make(Topic, len(parts))
	for i, p := range parts {
		switch v := p.(type) {
		case string:
			topic[i] = v
		case int:
			topic[i] = strconv.Itoa(v)
		default:
			panic("bus: topic part must be string or int")
		}
	}
	return topic
}

func (t Topic) String() string {
	out := ""
	for i, seg := range t {
		if i > 0 {
			out += "/"
		}
		out += seg
	}
	return out
}

// Message is one bus datagram. A retained message with a nil payload clears
// the retained slot for its topic.
type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

// Subscription is one pattern's delivery channel. The channel is buffered;
// when it fills, the oldest message is dropped to make room, so slow
// consumers lose history rather than stall samplers.
type Subscription struct {
	pattern Topic
	ch      chan *Message
	conn    *Connection
}

func (s *Subscription) Pattern() Topic           { return s.pattern }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

func (s *Subscription) deliver(msg *Message) {
	select {
	case s.ch <- msg:
	default:
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- msg:
		default:
		}
	}
}

// node is one trie level. Subscription patterns and concrete topics share
// the trie: wildcard segments are ordinary keys on the pattern side, and
// retained messages only ever sit on concrete paths.
type node struct {
	children map[string]*node
	subs     []*Subscription
	retained *Message
}

// Bus is the shared trie plus its lock. All methods are safe for concurrent
// use.
type Bus struct {
	mu       sync.RWMutex
	root     *node
	qLen     int
	replySeq atomic.Uint64
}

// NewBus creates a bus whose subscriptions buffer queueLen messages.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{root: &node{}, qLen: queueLen}
}

// NewMessage assembles a message for Publish.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

// Publish delivers msg to every subscription whose pattern matches its
// topic, then stores or clears the retained slot if msg is retained.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var matched []*Subscription
	match(b.root, msg.Topic, &matched)
	for _, sub := range matched {
		sub.deliver(msg)
	}

	if !msg.Retained {
		return
	}
	n := b.root
	for _, seg := range msg.Topic {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child, ok := n.children[seg]
		if !ok {
			child = &node{}
			n.children[seg] = child
		}
		n = child
	}
	if msg.Payload == nil {
		n.retained = nil
	} else {
		n.retained = msg
	}
}

// match collects subscriptions whose stored pattern matches the concrete
// topic, branching into literal, "+" and "#" children.
func match(n *node, topic Topic, out *[]*Subscription) {
	if h, ok := n.children[WildcardAll]; ok {
		*out = append(*out, h.subs...)
	}
	if len(topic) == 0 {
		*out = append(*out, n.subs...)
		return
	}
	if child, ok := n.children[topic[0]]; ok {
		match(child, topic[1:], out)
	}
	if child, ok := n.children[WildcardOne]; ok {
		match(child, topic[1:], out)
	}
}

// matchRetained collects retained messages under n that the pattern matches.
func matchRetained(n *node, pattern Topic, out *[]*Message) {
	if len(pattern) == 0 {
		if n.retained != nil {
			*out = append(*out, n.retained)
		}
		return
	}
	switch pattern[0] {
	case WildcardAll:
		allRetained(n, out)
	case WildcardOne:
		for _, child := range n.children {
			matchRetained(child, pattern[1:], out)
		}
	default:
		if child, ok := n.children[pattern[0]]; ok {
			matchRetained(child, pattern[1:], out)
		}
	}
}

func allRetained(n *node, out *[]*Message) {
	if n.retained != nil {
		*out = append(*out, n.retained)
	}
	for _, child := range n.children {
		allRetained(child, out)
	}
}

func (b *Bus) subscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, seg := range sub.pattern {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child, ok := n.children[seg]
		if !ok {
			child = &node{}
			n.children[seg] = child
		}
		n = child
	}
	n.subs = append(n.subs, sub)

	var replay []*Message
	matchRetained(b.root, sub.pattern, &replay)
	for _, msg := range replay {
		sub.deliver(msg)
	}
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	path := make([]*node, 0, len(sub.pattern))
	for _, seg := range sub.pattern {
		child, ok := n.children[seg]
		if !ok {
			return
		}
		path = append(path, n)
		n = child
	}
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}
	// Prune now-empty pattern nodes.
	for i := len(sub.pattern) - 1; i >= 0; i-- {
		parent, seg := path[i], sub.pattern[i]
		child := parent.children[seg]
		if len(child.subs) == 0 && len(child.children) == 0 && child.retained == nil {
			delete(parent.children, seg)
		} else {
			break
		}
	}
}

// Connection is one client's handle on the bus. It tracks its subscriptions
// so Disconnect can release them all.
type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
}

// NewConnection creates a named connection. The name seeds reply topics and
// shows up in diagnostics.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

// NewMessage assembles a message for Publish.
func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

// Publish sends a message via the bus.
func (c *Connection) Publish(msg *Message) {
	c.bus.Publish(msg)
}

// Subscribe registers a pattern owned by this connection. Retained messages
// matching the pattern are delivered immediately.
func (c *Connection) Subscribe(pattern Topic) *Subscription {
	sub := &Subscription{
		pattern: pattern,
		ch:      make(chan *Message, c.bus.qLen),
		conn:    c,
	}
	c.bus.subscribe(sub)
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription owned by this connection and closes
// its channel.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.bus.unsubscribe(sub)
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	close(sub.ch)
}

// Disconnect releases every subscription this connection holds.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.unsubscribe(sub)
		close(sub.ch)
	}
}

// Request publishes msg with a fresh unique ReplyTo topic and returns the
// subscription where replies arrive. The caller owns the subscription.
func (c *Connection) Request(msg *Message) *Subscription {
	seq := c.bus.replySeq.Add(1)
	msg.ReplyTo = Topic{"_reply", c.id, strconv.FormatUint(seq, 10)}
	sub := c.Subscribe(msg.ReplyTo)
	c.bus.Publish(msg)
	return sub
}

// RequestWait is Request plus a blocking wait for the first reply, bounded
// by ctx.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	sub := c.Request(msg)
	defer c.Unsubscribe(sub)
	select {
	case reply := <-sub.ch:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reply publishes a response on the request's ReplyTo topic. Requests
// without a ReplyTo are fire-and-forget; Reply is then a no-op.
func (c *Connection) Reply(req *Message, payload any, retained bool) {
	if len(req.ReplyTo) == 0 {
		return
	}
	c.Publish(c.NewMessage(req.ReplyTo, payload, retained))
}
