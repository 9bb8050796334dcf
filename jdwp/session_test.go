package jdwp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// client is the debugger end of a connection.
type client struct {
	t      *testing.T
	conn   net.Conn
	nextID uint32
}

func (c *client) handshake() {
	c.t.Helper()
	if _, err := c.conn.Write(handshake); err != nil {
		c.t.Fatalf("write handshake: %v", err)
	}
	buf := make([]byte, len(handshake))
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		c.t.Fatalf("read handshake: %v", err)
	}
	if !bytes.Equal(buf, handshake) {
		c.t.Fatalf("handshake reply %q", buf)
	}
}

func (c *client) read() *Packet {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	p, err := ReadPacket(c.conn)
	if err != nil {
		c.t.Fatalf("ReadPacket: %v", err)
	}
	return p
}

// call sends a command and returns its reply, skipping VM-originated
// commands.
func (c *client) call(set, cmd byte, data []byte) *Packet {
	c.t.Helper()
	c.nextID++
	p := &Packet{ID: c.nextID, CommandSet: set, Command: cmd, Data: data}
	if _, err := c.conn.Write(p.Bytes()); err != nil {
		c.t.Fatalf("write command: %v", err)
	}
	for {
		reply := c.read()
		if !reply.IsReply() {
			continue
		}
		if reply.ID != p.ID {
			c.t.Fatalf("reply id %d, want %d", reply.ID, p.ID)
		}
		return reply
	}
}

func TestSessionEndToEnd(t *testing.T) {
	v := newTestVM(t, targetClass())
	mustClass(t, v, "LTarget;")
	b, err := NewBridge(v)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	vmEnd, dbgEnd := net.Pipe()
	sess := NewSession(vmEnd, b)
	served := make(chan error, 1)
	go func() { served <- sess.Serve(context.Background()) }()

	c := &client{t: t, conn: dbgEnd}
	defer dbgEnd.Close()
	c.handshake()

	start := c.read()
	if start.IsReply() || start.CommandSet != cmdSetEvent || start.Command != cmdComposite {
		t.Fatalf("first packet %d/%d, want VM start", start.CommandSet, start.Command)
	}
	if start.ID&(1<<31) == 0 {
		t.Errorf("VM command id %#x lacks the high bit", start.ID)
	}
	r := NewReader(start.Data)
	if policy, n, kind := r.U1(), r.U4(), EventKind(r.U1()); policy != 0 || n != 1 || kind != EventVMStart {
		t.Errorf("VM start = policy %d, %d events, kind %s", policy, n, kind)
	}
	if b.State() != StateConnected {
		t.Errorf("bridge state %s", b.State())
	}

	reply := c.call(cmdSetVM, 7, nil)
	if reply.ErrorCode != ErrNone || len(reply.Data) != 20 {
		t.Fatalf("IDSizes = code %d, %d bytes", reply.ErrorCode, len(reply.Data))
	}
	if got := NewReader(reply.Data).U4(); got != idSize {
		t.Errorf("field id size %d", got)
	}

	if reply := c.call(cmdSetVM, 99, nil); reply.ErrorCode != ErrCodeNotImplemented {
		t.Errorf("unknown command code %d", reply.ErrorCode)
	}

	w := &Writer{}
	w.Str("LTarget;")
	reply = c.call(cmdSetVM, 2, w.Bytes())
	if reply.ErrorCode != ErrNone {
		t.Fatalf("ClassesBySignature code %d", reply.ErrorCode)
	}
	r = NewReader(reply.Data)
	if n := r.U4(); n != 1 {
		t.Fatalf("%d classes", n)
	}
	if tag := TypeTag(r.U1()); tag != TypeClass {
		t.Errorf("type tag %d", tag)
	}
	cid := r.ID()
	if info, err := b.ClassInfo(cid); err != nil || info.Signature != "LTarget;" {
		t.Errorf("class id resolves to %+v, %v", info, err)
	}

	// Truncated arguments come back as an error code, not a crash.
	if reply := c.call(cmdSetReferenceType, 1, []byte{1, 2}); reply.ErrorCode != ErrCodeIllegalArg {
		t.Errorf("truncated Signature code %d", reply.ErrorCode)
	}

	reply = c.call(cmdSetDDM, cmdDDMChunk, Chunk{Type: ChunkHello}.Bytes())
	if reply.ErrorCode != ErrNone {
		t.Fatalf("DDM code %d", reply.ErrorCode)
	}
	chunk, err := ParseChunk(reply.Data)
	if err != nil {
		t.Fatal(err)
	}
	var hello Hello
	if err := DecodeChunk(chunk, &hello); err != nil {
		t.Fatal(err)
	}
	if hello.Session != sess.ID.String() {
		t.Errorf("HELO session %q, want %s", hello.Session, sess.ID)
	}

	if reply := c.call(cmdSetVM, cmdVMDispose, nil); reply.ErrorCode != ErrNone {
		t.Errorf("Dispose code %d", reply.ErrorCode)
	}
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end after Dispose")
	}
	if b.State() != StateDisconnected {
		t.Errorf("bridge state after dispose %s", b.State())
	}
	if _, err := b.ClassInfo(cid); err == nil {
		t.Error("class id still valid after disconnect")
	}
}

func TestSessionBadHandshake(t *testing.T) {
	v := newTestVM(t)
	b, err := NewBridge(v)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	vmEnd, dbgEnd := net.Pipe()
	defer dbgEnd.Close()
	served := make(chan error, 1)
	go func() { served <- NewSession(vmEnd, b).Serve(context.Background()) }()

	if _, err := dbgEnd.Write([]byte("HTTP/1.1 GET / ")[:len(handshake)]); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-served:
		if !errors.Is(err, ErrHandshake) {
			t.Errorf("Serve = %v, want ErrHandshake", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	if b.State() != StateDisconnected {
		t.Errorf("bridge state %s", b.State())
	}
}

func TestServerSingleSession(t *testing.T) {
	v := newTestVM(t)
	b, err := NewBridge(v)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	srv := NewServer(b)
	if err := srv.Listen("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()

	first, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	c := &client{t: t, conn: first}
	c.handshake()
	c.read() // VM start
	if srv.Session() == nil {
		t.Fatal("no current session after handshake")
	}

	second, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	second.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := second.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
		t.Errorf("second connection read = %v, want EOF", err)
	}

	// The first session still answers.
	if reply := c.call(cmdSetVM, 7, nil); reply.ErrorCode != ErrNone {
		t.Errorf("IDSizes code %d", reply.ErrorCode)
	}

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
	if b.State() != StateDisconnected {
		t.Errorf("bridge state %s", b.State())
	}
}

func TestHandleVersion(t *testing.T) {
	_, b, _ := newTestBridge(t)
	reply := b.Handle(&Packet{ID: 3, CommandSet: cmdSetVM, Command: 1})
	if !reply.IsReply() || reply.ID != 3 || reply.ErrorCode != ErrNone {
		t.Fatalf("reply %+v", reply)
	}
	r := NewReader(reply.Data)
	r.Str()
	if major, minor := r.U4(), r.U4(); major != jdwpMajor || minor != jdwpMinor {
		t.Errorf("version %d.%d", major, minor)
	}
	if b.LastActivity().IsZero() {
		t.Error("LastActivity not updated")
	}
}
