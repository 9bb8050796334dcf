package jdwp

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/exp/slices"
)

// ---------------------------------------------------------------------------
// DDM chunks
// ---------------------------------------------------------------------------

// ChunkType is a four-character chunk code packed big-endian.
type ChunkType uint32

func fourCC(s string) ChunkType {
	return ChunkType(binary.BigEndian.Uint32([]byte(s)))
}

var (
	ChunkHello        = fourCC("HELO")
	ChunkHeapInfo     = fourCC("HPIF")
	ChunkThreadStatus = fourCC("THST")
	ChunkGCRequest    = fourCC("GCRQ")
	ChunkCollector    = fourCC("REAQ")
	ChunkCollectorSet = fourCC("REAE")
	ChunkFail         = fourCC("FAIL")
)

func (t ChunkType) String() string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(t))
	return string(b[:])
}

// Chunk is one DDM message. On the wire it is framed as type u4,
// length u4, then Data.
type Chunk struct {
	Type ChunkType
	Data []byte
}

// ParseChunk decodes one framed chunk.
func ParseChunk(b []byte) (Chunk, error) {
	if len(b) < 8 {
		return Chunk{}, fmt.Errorf("chunk of %d bytes: %w", len(b), ErrBadPacket)
	}
	c := Chunk{Type: ChunkType(binary.BigEndian.Uint32(b))}
	n := binary.BigEndian.Uint32(b[4:])
	if uint64(n) > uint64(len(b)-8) {
		return Chunk{}, fmt.Errorf("%s chunk claims %d bytes, has %d: %w", c.Type, n, len(b)-8, ErrBadPacket)
	}
	c.Data = b[8 : 8+n]
	return c, nil
}

// Bytes frames c.
func (c Chunk) Bytes() []byte {
	out := make([]byte, 8, 8+len(c.Data))
	binary.BigEndian.PutUint32(out, uint32(c.Type))
	binary.BigEndian.PutUint32(out[4:], uint32(len(c.Data)))
	return append(out, c.Data...)
}

// cborEncMode encodes chunk payloads deterministically.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("jdwp: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// EncodeChunk builds a chunk with v as its CBOR payload.
func EncodeChunk(t ChunkType, v any) (Chunk, error) {
	data, err := cborEncMode.Marshal(v)
	if err != nil {
		return Chunk{}, fmt.Errorf("encode %s: %w", t, err)
	}
	return Chunk{Type: t, Data: data}, nil
}

// DecodeChunk decodes the CBOR payload of c into v.
func DecodeChunk(c Chunk, v any) error {
	if err := cbor.Unmarshal(c.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", c.Type, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Payloads
// ---------------------------------------------------------------------------

// DDMVersion is the chunk protocol version reported by HELO.
const DDMVersion = 1

// Hello identifies the VM.
type Hello struct {
	Version    int      `cbor:"1,keyasint"`
	PID        int      `cbor:"2,keyasint"`
	VMIdentity string   `cbor:"3,keyasint"`
	Session    string   `cbor:"4,keyasint,omitempty"`
	Chunks     []string `cbor:"5,keyasint"`
}

// HeapInfo reports heap usage and collector history.
type HeapInfo struct {
	Objects    int    `cbor:"1,keyasint"`
	Bytes      int64  `cbor:"2,keyasint"`
	Limit      int64  `cbor:"3,keyasint"`
	Cycles     uint64 `cbor:"4,keyasint"`
	Freed      uint64 `cbor:"5,keyasint"`
	LastPause  int64  `cbor:"6,keyasint"` // nanoseconds
	LastReason string `cbor:"7,keyasint,omitempty"`
}

// ThreadEntry is one row of a THST reply. Frames is reported only for
// suspended threads.
type ThreadEntry struct {
	ID           uint32 `cbor:"1,keyasint"`
	Name         string `cbor:"2,keyasint"`
	Status       string `cbor:"3,keyasint"`
	SuspendCount int    `cbor:"4,keyasint"`
	Frames       int    `cbor:"5,keyasint,omitempty"`
}

// ThreadList is the THST reply.
type ThreadList struct {
	Threads []ThreadEntry `cbor:"1,keyasint"`
}

// CollectorState is the REAQ reply and the REAE request.
type CollectorState struct {
	Enabled   bool    `cbor:"1,keyasint"`
	Interval  int64   `cbor:"2,keyasint,omitempty"` // nanoseconds
	Threshold float64 `cbor:"3,keyasint,omitempty"`
	Runs      uint64  `cbor:"4,keyasint,omitempty"`
}

// Fail is the payload of a FAIL chunk.
type Fail struct {
	Code    int    `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

// ChunkHandler answers one chunk type.
type ChunkHandler func(b *Bridge, req Chunk) (Chunk, error)

func defaultChunkHandlers() map[ChunkType]ChunkHandler {
	return map[ChunkType]ChunkHandler{
		ChunkHello:        handleHello,
		ChunkHeapInfo:     handleHeapInfo,
		ChunkThreadStatus: handleThreadStatus,
		ChunkGCRequest:    handleGCRequest,
		ChunkCollector:    handleCollectorQuery,
		ChunkCollectorSet: handleCollectorSet,
	}
}

// HandleChunk dispatches c to its handler. Unknown types and handler
// failures are answered with a FAIL chunk rather than a protocol error.
func (b *Bridge) HandleChunk(c Chunk) Chunk {
	h, ok := b.chunks[c.Type]
	if !ok {
		return failChunk(1, fmt.Sprintf("unknown chunk type %s", c.Type))
	}
	reply, err := h(b, c)
	if err != nil {
		log.Warningf("ddm %s: %s", c.Type, err)
		return failChunk(2, err.Error())
	}
	return reply
}

func failChunk(code int, msg string) Chunk {
	c, err := EncodeChunk(ChunkFail, Fail{Code: code, Message: msg})
	if err != nil {
		return Chunk{Type: ChunkFail}
	}
	return c
}

func handleHello(b *Bridge, _ Chunk) (Chunk, error) {
	names := make([]string, 0, len(b.chunks))
	for t := range b.chunks {
		names = append(names, t.String())
	}
	slices.Sort(names)
	return EncodeChunk(ChunkHello, Hello{
		Version:    DDMVersion,
		PID:        os.Getpid(),
		VMIdentity: "dexvm",
		Session:    b.session.Load().(string),
		Chunks:     names,
	})
}

func heapInfo(b *Bridge) HeapInfo {
	s := b.vm.Heap.Stats()
	return HeapInfo{
		Objects:    s.Objects,
		Bytes:      s.Bytes,
		Limit:      s.Limit,
		Cycles:     s.Cycles,
		Freed:      s.Freed,
		LastPause:  int64(s.LastPause),
		LastReason: s.LastReason,
	}
}

func handleHeapInfo(b *Bridge, _ Chunk) (Chunk, error) {
	return EncodeChunk(ChunkHeapInfo, heapInfo(b))
}

func handleThreadStatus(b *Bridge, _ Chunk) (Chunk, error) {
	var list ThreadList
	for _, t := range b.vm.Threads.Snapshot() {
		e := ThreadEntry{
			ID:           t.ID,
			Name:         t.Name,
			Status:       t.Status().String(),
			SuspendCount: t.SuspendCount(),
		}
		if e.SuspendCount > 0 {
			e.Frames = t.Depth()
		}
		list.Threads = append(list.Threads, e)
	}
	slices.SortFunc(list.Threads, func(x, y ThreadEntry) int { return cmp.Compare(x.ID, y.ID) })
	return EncodeChunk(ChunkThreadStatus, list)
}

func handleGCRequest(b *Bridge, _ Chunk) (Chunk, error) {
	b.vm.Collector.CollectNow("ddm")
	return EncodeChunk(ChunkHeapInfo, heapInfo(b))
}

func collectorState(b *Bridge) CollectorState {
	c := b.vm.Collector
	return CollectorState{
		Enabled:   c.IsEnabled(),
		Interval:  int64(c.Interval()),
		Threshold: c.Threshold(),
		Runs:      c.RunCount(),
	}
}

func handleCollectorQuery(b *Bridge, _ Chunk) (Chunk, error) {
	return EncodeChunk(ChunkCollector, collectorState(b))
}

func handleCollectorSet(b *Bridge, req Chunk) (Chunk, error) {
	var want CollectorState
	if err := DecodeChunk(req, &want); err != nil {
		return Chunk{}, err
	}
	b.vm.Collector.SetEnabled(want.Enabled)
	log.Infof("background collector %s by debugger", map[bool]string{true: "enabled", false: "disabled"}[want.Enabled])
	return EncodeChunk(ChunkCollector, collectorState(b))
}

// SendChunk pushes a chunk to the debugger outside any request.
func (b *Bridge) SendChunk(c Chunk) error {
	return b.send(cmdSetDDM, cmdDDMChunk, c.Bytes())
}
