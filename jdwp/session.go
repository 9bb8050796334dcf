package jdwp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sasha-s/go-deadlock"
)

// handshakeTimeout bounds how long a new connection may take to send
// the handshake.
const handshakeTimeout = 10 * time.Second

// Session is one attached debugger.
type Session struct {
	ID      uuid.UUID
	Remote  string
	Started time.Time

	conn   net.Conn
	bridge *Bridge

	writeMu deadlock.Mutex
	nextID  atomic.Uint32

	// heapReports is the polling interval for HPIF pushes; zero
	// disables them.
	heapReports time.Duration
}

// NewSession wraps an accepted connection.
func NewSession(conn net.Conn, b *Bridge) *Session {
	s := &Session{
		ID:      uuid.New(),
		Started: time.Now(),
		conn:    conn,
		bridge:  b,
	}
	if addr := conn.RemoteAddr(); addr != nil {
		s.Remote = addr.String()
	}
	return s
}

func (s *Session) String() string {
	return fmt.Sprintf("session %s (%s)", s.ID, s.Remote)
}

// Serve runs the session until the debugger disconnects, sends
// VirtualMachine.Dispose, or ctx is canceled. The bridge is disconnected
// on return whatever the cause.
func (s *Session) Serve(ctx context.Context) error {
	defer s.conn.Close()
	if err := s.handshake(); err != nil {
		return err
	}
	if err := s.bridge.Connected(s.ID.String(), s.sendCommand); err != nil {
		return err
	}
	defer s.bridge.Disconnected()

	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()

	if err := s.sendCommand(cmdSetEvent, cmdComposite, s.bridge.vmStart()); err != nil {
		return fmt.Errorf("%s: VM start: %w", s, err)
	}
	if s.heapReports > 0 {
		done := make(chan struct{})
		defer close(done)
		go s.reportHeap(done)
	}

	for {
		p, err := ReadPacket(s.conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				log.Infof("%s closed", s)
				return nil
			}
			return fmt.Errorf("%s: %w", s, err)
		}
		if p.IsReply() {
			continue
		}
		reply := s.bridge.Handle(p)
		if err := s.write(reply); err != nil {
			return fmt.Errorf("%s: reply: %w", s, err)
		}
		if p.CommandSet == cmdSetVM && p.Command == cmdVMDispose {
			log.Infof("%s disposed by debugger", s)
			return nil
		}
	}
}

// handshake exchanges the fixed greeting.
func (s *Session) handshake() error {
	s.conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer s.conn.SetDeadline(time.Time{})

	buf := make([]byte, len(handshake))
	if _, err := io.ReadFull(s.conn, buf); err != nil {
		return fmt.Errorf("%s: %w: %w", s, ErrHandshake, err)
	}
	if !bytes.Equal(buf, handshake) {
		return fmt.Errorf("%s: got %q: %w", s, buf, ErrHandshake)
	}
	if _, err := s.conn.Write(handshake); err != nil {
		return fmt.Errorf("%s: %w: %w", s, ErrHandshake, err)
	}
	return nil
}

func (s *Session) write(p *Packet) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.conn.Write(p.Bytes())
	return err
}

// sendCommand writes a VM-originated command packet. Its ids have the
// high bit set so they never collide with the debugger's.
func (s *Session) sendCommand(cmdSet, cmd byte, payload []byte) error {
	return s.write(&Packet{
		ID:         s.nextID.Add(1) | 1<<31,
		CommandSet: cmdSet,
		Command:    cmd,
		Data:       payload,
	})
}

// reportHeap pushes an HPIF chunk whenever the collector has run since
// the last check.
func (s *Session) reportHeap(done <-chan struct{}) {
	ticker := time.NewTicker(s.heapReports)
	defer ticker.Stop()
	last := s.bridge.vm.Heap.Stats().Cycles
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}
		info := heapInfo(s.bridge)
		if info.Cycles == last {
			continue
		}
		last = info.Cycles
		c, err := EncodeChunk(ChunkHeapInfo, info)
		if err == nil {
			err = s.bridge.SendChunk(c)
		}
		if err != nil {
			log.Debugf("%s: heap report: %s", s, err)
			return
		}
	}
}
