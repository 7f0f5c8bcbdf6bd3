// Package ptp implements the PTP slave state machine (spec.md §4.J):
// 32 static sessions, each a Sync → Delay_Req → Delay_Resp cycle
// sharing queue 5 with the data plane, Layer-2 EtherType 0x88F7,
// one-step mode.
package ptp

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/dtnfabric/fabricprobe/obslog"
	"github.com/dtnfabric/fabricprobe/template"
)

var log = obslog.New("ptp")

const (
	EtherType = 0x88F7

	// TXQueue/RXQueue match Config.h's PTP_TX_QUEUE/PTP_RX_QUEUE: PTP
	// shares queue 5 with ordinary traffic.
	TXQueue = 5
	RXQueue = 5

	SessionCount = 32

	SyncTimeout      = 3 * time.Second
	DelayRespTimeout = 2 * time.Second
	DelayReqInterval = 100 * time.Millisecond
)

// MessageType distinguishes the three one-step PTP messages this
// engine understands.
type MessageType int

const (
	Sync MessageType = iota
	DelayReq
	DelayResp
)

// SessionConfig binds one session's RX and TX sides, grounded on
// Config.h's PTP_SESSIONS_CONFIG_INIT table.
type SessionConfig struct {
	RXPort, RXVLAN int
	TXPort, TXVLAN int
	TXVLIDX        int
}

// State is a session's current position in the slave state machine.
type State int

const (
	Idle State = iota
	AwaitSync
	AwaitDelayResp
	Converged
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case AwaitSync:
		return "AwaitSync"
	case AwaitDelayResp:
		return "AwaitDelayResp"
	case Converged:
		return "Converged"
	}
	return "Unknown"
}

// Transport sends one PTP frame for the session's TX side.
type Transport interface {
	SendPTP(cfg SessionConfig, msg MessageType, payload []byte) error
}

// Session is one slave's Sync → Delay_Req → Delay_Resp state machine.
type Session struct {
	ID     int
	Config SessionConfig

	mu       sync.Mutex
	state    State
	t1, t2   int64 // master Sync tx timestamp, local Sync rx timestamp
	t3, t4   int64 // local Delay_Req tx timestamp, master Delay_Resp rx timestamp
	retries  uint64
	offset   time.Duration
	oneWay   time.Duration
	deadline time.Time

	transport Transport
}

// NewSession builds a session bound to id/cfg/transport, starting in
// Idle.
func NewSession(id int, cfg SessionConfig, t Transport) *Session {
	return &Session{ID: id, Config: cfg, transport: t, state: Idle}
}

// OnSync handles an inbound Sync message: t1 is the master's one-step
// timestamp embedded in the payload, t2Nanos is the local receive
// timestamp.
func (s *Session) OnSync(t1Nanos, t2Nanos int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.t1, s.t2 = t1Nanos, t2Nanos
	s.state = AwaitDelayResp
	s.deadline = time.Now().Add(DelayReqInterval)
}

// Poll is called periodically by the session's owner to drive
// timer-based transitions: arming Delay_Req after the configured
// interval, and timing sessions back out to Idle.
func (s *Session) Poll(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case AwaitDelayResp:
		if !s.deadline.IsZero() && now.After(s.deadline) && s.t3 == 0 {
			s.t3 = now.UnixNano()
			if s.transport != nil {
				_ = s.transport.SendPTP(s.Config, DelayReq, encodeTimestamp(s.t3))
			}
			s.deadline = now.Add(DelayRespTimeout)
		} else if s.t3 != 0 && now.After(s.deadline) {
			s.timeoutLocked()
		}
	case AwaitSync:
		if !s.deadline.IsZero() && now.After(s.deadline) {
			s.timeoutLocked()
		}
	}
}

// OnDelayResp handles a matching Delay_Resp: t4Nanos is the master's
// embedded receive timestamp for this session's Delay_Req.
func (s *Session) OnDelayResp(t4Nanos int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != AwaitDelayResp || s.t3 == 0 {
		return
	}
	s.t4 = t4Nanos
	s.offset = time.Duration(((s.t2 - s.t1) - (s.t4 - s.t3)) / 2)
	s.oneWay = time.Duration(((s.t2 - s.t1) + (s.t4 - s.t3)) / 2)
	s.state = Converged
	s.t3 = 0
}

func (s *Session) timeoutLocked() {
	s.retries++
	s.restartLocked()
	log.Sugar().Debugw("ptp session timeout", "session", s.ID, "retries", s.retries)
}

func (s *Session) restartLocked() {
	s.state = AwaitSync
	s.t1, s.t2, s.t3, s.t4 = 0, 0, 0, 0
	s.deadline = time.Now().Add(SyncTimeout)
}

// Snapshot is a point-in-time read of a session's state for
// reporting.
type Snapshot struct {
	State   State
	Offset  time.Duration
	OneWay  time.Duration
	Retries uint64
}

// Load returns the session's current snapshot.
func (s *Session) Load() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{State: s.state, Offset: s.offset, OneWay: s.oneWay, Retries: s.retries}
}

func encodeTimestamp(nanos int64) []byte {
	buf := make([]byte, 8)
	u := uint64(nanos)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(u)
		u >>= 8
	}
	return buf
}

func decodeTimestamp(buf []byte) int64 {
	return int64(binary.BigEndian.Uint64(buf))
}

// Wire layout, grounded on Config.h's frame-size comments ("Sync:
// 14+4+44=62 bytes", "Delay_Req: 14+4+44=62 bytes", "Delay_Resp:
// 14+4+54=72 bytes"): a standard 18-byte tagged Ethernet header
// (dst+src MAC, 802.1Q tag, EtherType) followed by a PTP payload sized
// 44 bytes for Sync/Delay_Req or 54 for Delay_Resp. Only the message
// type, one-step timestamp, and (for Delay_Req) the VL-IDX are
// meaningful; the rest of the payload is zero-padding standing in for
// the PTPv2 body fields (sequenceId, correctionField,
// sourcePortIdentity) this one-step slave never inspects.
const (
	headerLen = 6 + 6 + 4 + 2

	msgTypeOffset = headerLen
	msgTypeLen    = 1
	tsOffset      = msgTypeOffset + msgTypeLen
	tsLen         = 8
	vlidxOffset   = tsOffset + tsLen
	vlidxLen      = 2

	syncDelayReqPayloadLen = 44
	delayRespPayloadLen    = 54

	syncDelayReqFrameLen = headerLen + syncDelayReqPayloadLen
	delayRespFrameLen    = headerLen + delayRespPayloadLen
)

func frameLenFor(msg MessageType) int {
	if msg == DelayResp {
		return delayRespFrameLen
	}
	return syncDelayReqFrameLen
}

// BuildFrame renders a Layer-2 PTP frame for msg carrying payload
// (typically an encodeTimestamp result), tagged with cfg's TX VLAN.
// Delay_Req frames additionally carry cfg.TXVLIDX, per Config.h's
// "tx_vl_idx: VL-IDX to write into Delay_Req packet."
func BuildFrame(cfg SessionConfig, msg MessageType, payload []byte) []byte {
	buf := make([]byte, frameLenFor(msg))
	for i := 0; i < 6; i++ {
		buf[i] = 0xff // broadcast destination
	}
	copy(buf[6:12], template.SrcMAC)
	binary.BigEndian.PutUint16(buf[12:14], 0x8100)
	binary.BigEndian.PutUint16(buf[14:16], uint16(cfg.TXVLAN)&0x0FFF)
	binary.BigEndian.PutUint16(buf[16:18], EtherType)
	buf[msgTypeOffset] = byte(msg)
	copy(buf[tsOffset:tsOffset+tsLen], payload)
	if msg == DelayReq {
		binary.BigEndian.PutUint16(buf[vlidxOffset:vlidxOffset+vlidxLen], uint16(cfg.TXVLIDX))
	}
	return buf
}

// ParseFrame extracts the message type, VLAN, embedded one-step
// timestamp, and VL-IDX from an inbound frame. ok is false for
// anything that isn't a tagged EtherType-0x88F7 frame of the expected
// length for its message type.
func ParseFrame(buf []byte) (msg MessageType, vlan int, ts int64, vlidx int, ok bool) {
	if len(buf) < headerLen+msgTypeLen || buf[12] != 0x81 || buf[13] != 0x00 {
		return 0, 0, 0, 0, false
	}
	if binary.BigEndian.Uint16(buf[16:18]) != EtherType {
		return 0, 0, 0, 0, false
	}
	msg = MessageType(buf[msgTypeOffset])
	if len(buf) != frameLenFor(msg) {
		return 0, 0, 0, 0, false
	}
	vlan = int(binary.BigEndian.Uint16(buf[14:16]) & 0x0FFF)
	ts = decodeTimestamp(buf[tsOffset : tsOffset+tsLen])
	if msg == DelayReq {
		vlidx = int(binary.BigEndian.Uint16(buf[vlidxOffset : vlidxOffset+vlidxLen]))
	}
	return msg, vlan, ts, vlidx, true
}

// Engine owns SessionCount sessions and drives their timers.
type Engine struct {
	Sessions [SessionCount]*Session
}

// NewEngine builds the 32 static sessions from cfgs, grounded on
// Config.h's PTP_SESSIONS_CONFIG_INIT table.
func NewEngine(cfgs [SessionCount]SessionConfig, t Transport) *Engine {
	e := &Engine{}
	for i, cfg := range cfgs {
		e.Sessions[i] = NewSession(i, cfg, t)
	}
	return e
}

// PollAll drives every session's timers; called once per tick by the
// Supervisor.
func (e *Engine) PollAll(now time.Time) {
	for _, s := range e.Sessions {
		s.Poll(now)
	}
}

// HandleFrame satisfies dataplane.PTPHandler: it parses an inbound
// frame captured on the shared PTP queue and, if it matches a
// session's configured RX port and VLAN, feeds the Sync or Delay_Resp
// transition. It reports whether the frame was a recognized PTP frame
// consumed here, so the caller can skip ordinary PRBS classification.
func (e *Engine) HandleFrame(rxPort, rxQueue int, buf []byte, rxNanos int64) bool {
	msg, vlan, ts, _, ok := ParseFrame(buf)
	if !ok {
		return false
	}
	for _, s := range e.Sessions {
		if s.Config.RXPort != rxPort || s.Config.RXVLAN != vlan {
			continue
		}
		switch msg {
		case Sync:
			s.OnSync(ts, rxNanos)
		case DelayResp:
			s.OnDelayResp(ts)
		}
		return true
	}
	return false
}
