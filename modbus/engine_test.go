package modbus

import (
	"testing"
	"time"
)

// fakePort is a scripted Port: tests queue inbound bytes with feed and
// inspect everything the engine wrote.
type fakePort struct {
	in     []byte
	wrote  [][]byte
	txDone bool
}

func (p *fakePort) Available() int { return len(p.in) }

func (p *fakePort) ReadByte() (byte, bool) {
	if len(p.in) == 0 {
		return 0, false
	}
	b := p.in[0]
	p.in = p.in[1:]
	return b, true
}

func (p *fakePort) Write(data []byte) (int, error) {
	frame := append([]byte(nil), data...)
	p.wrote = append(p.wrote, frame)
	return len(data), nil
}

func (p *fakePort) TxComplete() bool { return p.txDone }

func (p *fakePort) feed(data []byte) { p.in = append(p.in, data...) }

// dirPort additionally records driver-enable transitions.
type dirPort struct {
	fakePort
	txEnable []bool
}

func (p *dirPort) SetTxEnable(on bool) { p.txEnable = append(p.txEnable, on) }

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func (c *testClock) sleep(d time.Duration) { c.advance(d) }

func newTestEngine(port Port, baud uint32, address uint8) (*Engine, *testClock) {
	e := New(port, baud, address)
	clk := &testClock{t: time.Unix(1700000000, 0)}
	e.now = clk.now
	e.sleep = clk.sleep
	return e, clk
}

func withCRC(frame []byte) []byte {
	crc := CRC16(frame)
	return append(append([]byte(nil), frame...), byte(crc>>8), byte(crc))
}

// receiveFrame feeds a complete frame and polls until the engine has
// seen the trailing inter-frame silence, returning the final status.
func receiveFrame(t *testing.T, e *Engine, clk *testClock, port *fakePort, frame []byte) (Status, Request) {
	t.Helper()
	port.feed(frame)
	status, _ := e.Poll()
	if status != FrameReceiving {
		t.Fatalf("expected frame receiving while bytes pending, got %v", status)
	}
	clk.advance(e.interChar + time.Millisecond)
	return e.Poll()
}

func assertStatus(t *testing.T, got, expected Status) {
	t.Helper()
	if got != expected {
		t.Errorf("expected status %v, got %v", expected, got)
	}
}

func assertBytesEqual(t *testing.T, expected, actual []byte) {
	t.Helper()
	if len(expected) != len(actual) {
		t.Errorf("expected %d bytes, got %d (% x vs % x)", len(expected), len(actual), expected, actual)
		return
	}
	for i := range expected {
		if expected[i] != actual[i] {
			t.Errorf("expected % x, got % x", expected, actual)
			return
		}
	}
}

func TestTimingParameters(t *testing.T) {
	testCases := []struct {
		baud       uint32
		interChar  time.Duration
		interFrame time.Duration
	}{
		{baud: 9600, interChar: 1562500 * time.Nanosecond, interFrame: 3645833 * time.Nanosecond},
		{baud: 19200, interChar: 781250 * time.Nanosecond, interFrame: 1822916 * time.Nanosecond},
		{baud: 38400, interChar: 750 * time.Microsecond, interFrame: 1750 * time.Microsecond},
		{baud: 115200, interChar: 750 * time.Microsecond, interFrame: 1750 * time.Microsecond},
	}

	for _, tc := range testCases {
		e := New(&fakePort{}, tc.baud, 1)
		if e.interChar != tc.interChar {
			t.Errorf("baud %d: inter-character timeout %v, expected %v", tc.baud, e.interChar, tc.interChar)
		}
		if e.interFrame != tc.interFrame {
			t.Errorf("baud %d: inter-frame delay %v, expected %v", tc.baud, e.interFrame, tc.interFrame)
		}
	}
}

func TestPollIdle(t *testing.T) {
	port := &fakePort{}
	e, _ := newTestEngine(port, 9600, 5)

	status, _ := e.Poll()
	assertStatus(t, status, NoFrames)
}

func TestRequestDispatch(t *testing.T) {
	port := &fakePort{}
	e, clk := newTestEngine(port, 9600, 5)

	frame := withCRC([]byte{0x05, 0x03, 0x00, 0x01, 0x00, 0x02})
	status, req := receiveFrame(t, e, clk, port, frame)

	assertStatus(t, status, FrameReceived)
	if req.Function != 3 || req.StartRegister != 1 || req.RegisterCount != 2 {
		t.Errorf("decoded request %+v, expected function 3 start 1 count 2", req)
	}
}

func TestFrameAssemblyAcrossPolls(t *testing.T) {
	port := &fakePort{}
	e, clk := newTestEngine(port, 9600, 5)

	frame := withCRC([]byte{0x05, 0x04, 0x00, 0x00, 0x00, 0x01})

	// First half, then a gap shorter than the inter-character timeout.
	port.feed(frame[:4])
	status, _ := e.Poll()
	assertStatus(t, status, FrameReceiving)

	clk.advance(e.interChar / 2)
	status, _ = e.Poll()
	assertStatus(t, status, FrameReceiving)

	port.feed(frame[4:])
	status, _ = e.Poll()
	assertStatus(t, status, FrameReceiving)

	clk.advance(e.interChar + time.Millisecond)
	status, req := e.Poll()
	assertStatus(t, status, FrameReceived)
	if req.Function != 4 {
		t.Errorf("decoded function %d, expected 4", req.Function)
	}
}

func TestForeignTrafficIgnored(t *testing.T) {
	port := &fakePort{}
	e, clk := newTestEngine(port, 9600, 5)

	frame := withCRC([]byte{0x09, 0x03, 0x00, 0x01, 0x00, 0x02})
	status, _ := receiveFrame(t, e, clk, port, frame)

	assertStatus(t, status, NoFrames)
}

func TestCorruptedFrame(t *testing.T) {
	port := &fakePort{}
	e, clk := newTestEngine(port, 9600, 5)

	// Too short to be a request, regardless of content.
	status, _ := receiveFrame(t, e, clk, port, []byte{0x05, 0x03, 0x00, 0x01, 0x00})
	assertStatus(t, status, ErrCorrupted)

	// The next poll starts fresh.
	status, _ = e.Poll()
	assertStatus(t, status, NoFrames)
}

func TestCRCFailure(t *testing.T) {
	port := &fakePort{}
	e, clk := newTestEngine(port, 9600, 5)

	frame := withCRC([]byte{0x05, 0x03, 0x00, 0x01, 0x00, 0x02})
	frame[2] ^= 0xFF

	status, _ := receiveFrame(t, e, clk, port, frame)
	assertStatus(t, status, ErrCRCFailed)
}

func TestOverflow(t *testing.T) {
	port := &fakePort{}
	e, clk := newTestEngine(port, 9600, 5)

	long := make([]byte, FrameBufferSize+20)
	status, _ := receiveFrame(t, e, clk, port, long)
	assertStatus(t, status, ErrOverflow)

	if port.Available() != 0 {
		t.Errorf("%d overflow bytes left unread on the port", port.Available())
	}
}

func TestIllegalFunctionAutoResponse(t *testing.T) {
	port := &fakePort{}
	e, clk := newTestEngine(port, 9600, 5)

	frame := withCRC([]byte{0x05, 0x06, 0x00, 0x01, 0x00, 0x03})
	status, _ := receiveFrame(t, e, clk, port, frame)
	assertStatus(t, status, ErrIllegalFunction)

	if len(port.wrote) != 1 {
		t.Fatalf("expected one queued exception frame, got %d", len(port.wrote))
	}
	expected := withCRC([]byte{0x05, 0x86, 0x01})
	assertBytesEqual(t, expected, port.wrote[0])

	// The exception frame owns the bus until the hardware is done.
	status, _ = e.Poll()
	assertStatus(t, status, FrameSending)
	port.txDone = true
	status, _ = e.Poll()
	assertStatus(t, status, FrameSent)
}

func TestFirstByteInvalidatesMasterResponse(t *testing.T) {
	port := &fakePort{}
	e, clk := newTestEngine(port, 9600, 1)

	if err := e.MasterRead(2, 3, 0, 2); err != nil {
		t.Fatalf("master read failed: %v", err)
	}
	port.txDone = true
	status, _ := e.Poll()
	assertStatus(t, status, FrameSent)

	response := withCRC([]byte{0x02, 0x03, 0x04, 0x11, 0x22, 0x33, 0x44})
	status, _ = receiveFrame(t, e, clk, port, response)
	assertStatus(t, status, MasterReceived)

	// A new frame starting overwrites the shared buffer.
	port.feed([]byte{0x05})
	e.Poll()

	buf := make([]byte, 8)
	if n := e.MasterResponse(buf); n != 0 {
		t.Errorf("expected stale master response to be dropped, got %d bytes", n)
	}
}
