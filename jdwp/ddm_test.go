package jdwp

import (
	"bytes"
	"errors"
	"testing"
)

func TestChunkFraming(t *testing.T) {
	c := Chunk{Type: ChunkHello, Data: []byte{1, 2, 3}}
	raw := c.Bytes()
	if !bytes.Equal(raw[:4], []byte("HELO")) {
		t.Errorf("type bytes = %q", raw[:4])
	}
	got, err := ParseChunk(raw)
	if err != nil {
		t.Fatalf("ParseChunk failed: %v", err)
	}
	if got.Type != ChunkHello || !bytes.Equal(got.Data, c.Data) {
		t.Errorf("ParseChunk = %s %v", got.Type, got.Data)
	}
	if s := ChunkThreadStatus.String(); s != "THST" {
		t.Errorf("String = %q", s)
	}

	for _, bad := range [][]byte{nil, {'H', 'E', 'L', 'O'}, append([]byte("HELO"), 0, 0, 0, 9, 1)} {
		if _, err := ParseChunk(bad); !errors.Is(err, ErrBadPacket) {
			t.Errorf("ParseChunk(%v) = %v, want ErrBadPacket", bad, err)
		}
	}
}

func TestChunkEncodingIsCanonical(t *testing.T) {
	info := HeapInfo{Objects: 3, Bytes: 96, Limit: 1 << 20, Cycles: 2}
	a, err := EncodeChunk(ChunkHeapInfo, info)
	if err != nil {
		t.Fatal(err)
	}
	b, err := EncodeChunk(ChunkHeapInfo, info)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Data, b.Data) {
		t.Error("encoding is not deterministic")
	}
	var back HeapInfo
	if err := DecodeChunk(a, &back); err != nil {
		t.Fatal(err)
	}
	if back != info {
		t.Errorf("decoded %+v, want %+v", back, info)
	}
}

func TestHandleChunk(t *testing.T) {
	v, b, _ := newTestBridge(t)

	t.Run("hello", func(t *testing.T) {
		reply := b.HandleChunk(Chunk{Type: ChunkHello})
		if reply.Type != ChunkHello {
			t.Fatalf("reply type %s", reply.Type)
		}
		var h Hello
		if err := DecodeChunk(reply, &h); err != nil {
			t.Fatal(err)
		}
		if h.Version != DDMVersion || h.VMIdentity != "dexvm" || h.Session != "test" {
			t.Errorf("hello = %+v", h)
		}
		if len(h.Chunks) != 6 {
			t.Errorf("chunks = %v", h.Chunks)
		}
	})

	t.Run("gc request", func(t *testing.T) {
		before := v.Heap.Stats().Cycles
		reply := b.HandleChunk(Chunk{Type: ChunkGCRequest})
		var info HeapInfo
		if err := DecodeChunk(reply, &info); err != nil {
			t.Fatal(err)
		}
		if info.Cycles <= before {
			t.Errorf("cycles = %d, want more than %d", info.Cycles, before)
		}
		if info.LastReason != "ddm" {
			t.Errorf("last reason = %q", info.LastReason)
		}
	})

	t.Run("thread status", func(t *testing.T) {
		reply := b.HandleChunk(Chunk{Type: ChunkThreadStatus})
		var list ThreadList
		if err := DecodeChunk(reply, &list); err != nil {
			t.Fatal(err)
		}
		names := map[string]bool{}
		for _, e := range list.Threads {
			names[e.Name] = true
		}
		if !names["main"] || !names["JDWP"] {
			t.Errorf("threads = %+v", list.Threads)
		}
	})

	t.Run("collector toggle", func(t *testing.T) {
		req, err := EncodeChunk(ChunkCollectorSet, CollectorState{Enabled: false})
		if err != nil {
			t.Fatal(err)
		}
		var st CollectorState
		if err := DecodeChunk(b.HandleChunk(req), &st); err != nil {
			t.Fatal(err)
		}
		if st.Enabled || v.Collector.IsEnabled() {
			t.Error("collector still enabled")
		}
		req, _ = EncodeChunk(ChunkCollectorSet, CollectorState{Enabled: true})
		if err := DecodeChunk(b.HandleChunk(req), &st); err != nil {
			t.Fatal(err)
		}
		if !st.Enabled {
			t.Error("collector not re-enabled")
		}
		if err := DecodeChunk(b.HandleChunk(Chunk{Type: ChunkCollector}), &st); err != nil || !st.Enabled {
			t.Errorf("query = %+v, %v", st, err)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		reply := b.HandleChunk(Chunk{Type: fourCC("ZZZZ")})
		if reply.Type != ChunkFail {
			t.Fatalf("reply type %s", reply.Type)
		}
		var f Fail
		if err := DecodeChunk(reply, &f); err != nil {
			t.Fatal(err)
		}
		if f.Code != 1 {
			t.Errorf("fail = %+v", f)
		}
	})

	t.Run("bad payload", func(t *testing.T) {
		reply := b.HandleChunk(Chunk{Type: ChunkCollectorSet, Data: []byte{0xff}})
		var f Fail
		if err := DecodeChunk(reply, &f); err != nil || reply.Type != ChunkFail || f.Code != 2 {
			t.Errorf("reply %s %+v %v", reply.Type, f, err)
		}
	})
}
