package transport

import (
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/gmp-go/core/internal/wire"
)

// frameKind distinguishes the reliability-layer header from the
// application payload that follows it. It is internal to the transport
// and never visible to packet.Decode.
type frameKind byte

const (
	frameData frameKind = iota
	frameAck
	frameUnreliable
)

// reliableLayer implements retransmission for Reliable/ReliableOrdered/
// ReliableSequenced sends and in-order delivery for ReliableOrdered, plus
// stale-drop for the Sequenced variants. It has no third-party grounding
// (see package doc); the design is deliberately the smallest mechanism
// that satisfies §4.1's reliability contract and §5's ordering guarantee
// ("within a single peer, RELIABLE_ORDERED packets are delivered to the
// handler in send order").
type reliableLayer struct {
	t *Transport

	mu      sync.Mutex
	nextSeq map[wire.ConnectionHandle]map[byte]uint32 // peer -> channel -> next outbound seq
	pending map[pendingKey]*pendingSend

	recvMu   sync.Mutex
	expected map[wire.ConnectionHandle]map[byte]uint32 // peer -> channel -> next expected ordered seq
	reorder  map[wire.ConnectionHandle]map[byte]map[uint32][]byte
	lastSeen map[wire.ConnectionHandle]map[byte]uint32 // for sequenced stale-drop
}

type pendingKey struct {
	peer    wire.ConnectionHandle
	channel byte
	seq     uint32
}

type pendingSend struct {
	addr     net.Addr
	frame    []byte
	sentAt   time.Time
	attempts int
}

const (
	retransmitInterval = 200 * time.Millisecond
	maxRetransmits     = 10
)

func newReliableLayer(t *Transport) *reliableLayer {
	return &reliableLayer{
		t:        t,
		nextSeq:  make(map[wire.ConnectionHandle]map[byte]uint32),
		pending:  make(map[pendingKey]*pendingSend),
		expected: make(map[wire.ConnectionHandle]map[byte]uint32),
		reorder:  make(map[wire.ConnectionHandle]map[byte]map[uint32][]byte),
		lastSeen: make(map[wire.ConnectionHandle]map[byte]uint32),
	}
}

// frame prepends the reliability-layer header (if any) to payload,
// assigning the next outbound sequence for ordered/reliable channels.
func (rl *reliableLayer) frame(peer wire.ConnectionHandle, channel byte, reliability Reliability, payload []byte) []byte {
	if reliability == Unreliable {
		out := make([]byte, 1+len(payload))
		out[0] = byte(frameUnreliable)
		copy(out[1:], payload)
		return out
	}

	rl.mu.Lock()
	perPeer, ok := rl.nextSeq[peer]
	if !ok {
		perPeer = make(map[byte]uint32)
		rl.nextSeq[peer] = perPeer
	}
	seq := perPeer[channel]
	perPeer[channel] = seq + 1
	rl.mu.Unlock()

	// header: [kind:1][channel:1][seq:4]
	out := make([]byte, 1+1+4+len(payload))
	out[0] = byte(frameData)
	out[1] = channel
	binary.LittleEndian.PutUint32(out[2:6], seq)
	copy(out[6:], payload)
	return out
}

func (rl *reliableLayer) trackForRetransmit(peer wire.ConnectionHandle, addr net.Addr, channel byte, reliability Reliability, framed []byte) {
	if len(framed) < 6 {
		return
	}
	seq := binary.LittleEndian.Uint32(framed[2:6])
	rl.mu.Lock()
	rl.pending[pendingKey{peer, channel, seq}] = &pendingSend{addr: addr, frame: framed, sentAt: time.Now()}
	rl.mu.Unlock()
}

func (rl *reliableLayer) retransmitLoop(done <-chan struct{}) {
	ticker := time.NewTicker(retransmitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			rl.retransmitDue()
		}
	}
}

func (rl *reliableLayer) retransmitDue() {
	rl.mu.Lock()
	due := make([]*pendingSend, 0)
	now := time.Now()
	for key, ps := range rl.pending {
		if now.Sub(ps.sentAt) < retransmitInterval {
			continue
		}
		if ps.attempts >= maxRetransmits {
			delete(rl.pending, key)
			continue
		}
		ps.attempts++
		ps.sentAt = now
		due = append(due, ps)
	}
	rl.mu.Unlock()

	for _, ps := range due {
		_, _ = rl.t.conn.WriteTo(ps.frame, ps.addr)
	}
}

// onReceive consumes a raw datagram. It returns the application frames
// ready for delivery (possibly empty if this was an ack, a duplicate, or
// an out-of-order ReliableOrdered frame now buffered awaiting its
// predecessor) and whether anything should be delivered at all.
func (rl *reliableLayer) onReceive(peer wire.ConnectionHandle, raw []byte) ([][]byte, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	kind := frameKind(raw[0])

	if kind == frameAck {
		if len(raw) < 6 {
			return nil, false
		}
		channel := raw[1]
		seq := binary.LittleEndian.Uint32(raw[2:6])
		rl.mu.Lock()
		delete(rl.pending, pendingKey{peer, channel, seq})
		rl.mu.Unlock()
		return nil, false
	}

	// Unreliable: no header fields beyond the kind byte.
	if kind == frameUnreliable {
		return [][]byte{raw[1:]}, true
	}
	if len(raw) < 6 {
		return nil, false
	}

	channel := raw[1]
	seq := binary.LittleEndian.Uint32(raw[2:6])
	payload := raw[6:]

	rl.sendAck(peer, channel, seq)

	rl.recvMu.Lock()
	defer rl.recvMu.Unlock()

	exp := rl.perChannelU32(rl.expected, peer, channel)
	if seq < exp {
		return nil, false // duplicate, already delivered
	}
	if seq == exp {
		out := [][]byte{payload}
		rl.setPerChannelU32(rl.expected, peer, channel, exp+1)
		out = append(out, rl.drainReorderBuffer(peer, channel)...)
		return out, len(out) > 0
	}

	// Out of order: buffer for ReliableOrdered; for other reliabilities we
	// simply deliver immediately since only ReliableOrdered promises
	// in-order handler delivery (§5).
	buf, ok := rl.reorder[peer]
	if !ok {
		buf = make(map[byte]map[uint32][]byte)
		rl.reorder[peer] = buf
	}
	perChan, ok := buf[channel]
	if !ok {
		perChan = make(map[uint32][]byte)
		buf[channel] = perChan
	}
	perChan[seq] = payload
	return nil, false
}

func (rl *reliableLayer) drainReorderBuffer(peer wire.ConnectionHandle, channel byte) [][]byte {
	var out [][]byte
	buf, ok := rl.reorder[peer]
	if !ok {
		return out
	}
	perChan, ok := buf[channel]
	if !ok {
		return out
	}
	for {
		exp := rl.perChannelU32(rl.expected, peer, channel)
		payload, ok := perChan[exp]
		if !ok {
			break
		}
		delete(perChan, exp)
		out = append(out, payload)
		rl.setPerChannelU32(rl.expected, peer, channel, exp+1)
	}
	return out
}

func (rl *reliableLayer) perChannelU32(m map[wire.ConnectionHandle]map[byte]uint32, peer wire.ConnectionHandle, channel byte) uint32 {
	perPeer, ok := m[peer]
	if !ok {
		return 0
	}
	return perPeer[channel]
}

func (rl *reliableLayer) setPerChannelU32(m map[wire.ConnectionHandle]map[byte]uint32, peer wire.ConnectionHandle, channel byte, v uint32) {
	perPeer, ok := m[peer]
	if !ok {
		perPeer = make(map[byte]uint32)
		m[peer] = perPeer
	}
	perPeer[channel] = v
}

func (rl *reliableLayer) sendAck(peer wire.ConnectionHandle, channel byte, seq uint32) {
	rl.t.peersMu.RLock()
	addr, ok := rl.t.peersByID[peer]
	rl.t.peersMu.RUnlock()
	if !ok {
		return
	}
	ack := make([]byte, 6)
	ack[0] = byte(frameAck)
	ack[1] = channel
	binary.LittleEndian.PutUint32(ack[2:6], seq)
	_, _ = rl.t.conn.WriteTo(ack, addr)
}

// forget drops all retransmission/reorder state for peer.
func (rl *reliableLayer) forget(peer wire.ConnectionHandle) {
	rl.mu.Lock()
	delete(rl.nextSeq, peer)
	for key := range rl.pending {
		if key.peer == peer {
			delete(rl.pending, key)
		}
	}
	rl.mu.Unlock()

	rl.recvMu.Lock()
	delete(rl.expected, peer)
	delete(rl.reorder, peer)
	delete(rl.lastSeen, peer)
	rl.recvMu.Unlock()
}
