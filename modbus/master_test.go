package modbus

import (
	"testing"
	"time"
)

func TestMasterRoundTrip(t *testing.T) {
	port := &fakePort{}
	e, clk := newTestEngine(port, 9600, 1)

	if err := e.MasterRead(2, 3, 0, 4); err != nil {
		t.Fatalf("master read failed: %v", err)
	}

	if len(port.wrote) != 1 {
		t.Fatalf("expected one request frame on the wire, got %d", len(port.wrote))
	}
	expected := withCRC([]byte{0x02, 0x03, 0x00, 0x00, 0x00, 0x04})
	assertBytesEqual(t, expected, port.wrote[0])

	if !e.AwaitingResponse() {
		t.Error("expected outstanding request marker after master read")
	}

	status, _ := e.Poll()
	assertStatus(t, status, FrameSending)
	port.txDone = true
	status, _ = e.Poll()
	assertStatus(t, status, FrameSent)

	payload := []byte{0x00, 0x01, 0x00, 0x02, 0x00, 0x03, 0x00, 0x04}
	response := withCRC(append([]byte{0x02, 0x03, 0x08}, payload...))
	status, _ = receiveFrame(t, e, clk, port, response)
	assertStatus(t, status, MasterReceived)

	if e.AwaitingResponse() {
		t.Error("outstanding request marker should clear on a matching response")
	}

	buf := make([]byte, 16)
	n := e.MasterResponse(buf)
	if n != len(payload) {
		t.Fatalf("master response returned %d bytes, expected %d", n, len(payload))
	}
	assertBytesEqual(t, payload, buf[:n])
}

func TestMasterResponseTooSmallBuffer(t *testing.T) {
	port := &fakePort{}
	e, clk := newTestEngine(port, 9600, 1)

	if err := e.MasterRead(2, 4, 0, 4); err != nil {
		t.Fatalf("master read failed: %v", err)
	}
	port.txDone = true
	e.Poll()

	response := withCRC([]byte{0x02, 0x04, 0x08, 1, 2, 3, 4, 5, 6, 7, 8})
	status, _ := receiveFrame(t, e, clk, port, response)
	assertStatus(t, status, MasterReceived)

	// Caller budget below the payload size: nothing is copied.
	if n := e.MasterResponse(make([]byte, 4)); n != 0 {
		t.Errorf("expected 0 bytes for an undersized buffer, got %d", n)
	}
}

func TestMasterResponseLengthMismatch(t *testing.T) {
	port := &fakePort{}
	e, clk := newTestEngine(port, 9600, 1)

	if err := e.MasterRead(2, 3, 0, 4); err != nil {
		t.Fatalf("master read failed: %v", err)
	}
	port.txDone = true
	e.Poll()

	// Byte count field claims 6 but the frame carries 8 payload bytes.
	response := withCRC([]byte{0x02, 0x03, 0x06, 1, 2, 3, 4, 5, 6, 7, 8})
	status, _ := receiveFrame(t, e, clk, port, response)
	assertStatus(t, status, MasterReceived)

	if n := e.MasterResponse(make([]byte, 16)); n != 0 {
		t.Errorf("expected a length-mismatched frame to be dropped, got %d bytes", n)
	}
}

func TestMasterErrorResponse(t *testing.T) {
	port := &fakePort{}
	e, clk := newTestEngine(port, 9600, 1)

	if err := e.MasterRead(2, 3, 0, 4); err != nil {
		t.Fatalf("master read failed: %v", err)
	}
	port.txDone = true
	e.Poll()

	// Padded exception response; genuine 5 byte exception frames are below
	// the 7 byte response minimum and come back as ErrCorrupted instead.
	response := withCRC([]byte{0x02, 0x83, 0x01, 0x00, 0x00})
	status, _ := receiveFrame(t, e, clk, port, response)
	assertStatus(t, status, MasterError)

	if e.AwaitingResponse() {
		t.Error("outstanding request marker should clear on an exception")
	}
	if n := e.MasterResponse(make([]byte, 16)); n != 0 {
		t.Errorf("expected no payload after an exception, got %d bytes", n)
	}
}

func TestMasterTimeout(t *testing.T) {
	port := &fakePort{}
	e, clk := newTestEngine(port, 9600, 1)

	if err := e.MasterRead(2, 3, 0, 4); err != nil {
		t.Fatalf("master read failed: %v", err)
	}
	port.txDone = true
	e.Poll()

	clk.advance(masterReadTimeout + time.Millisecond)
	status, _ := e.Poll()
	assertStatus(t, status, NoFrames)
	if e.AwaitingResponse() {
		t.Error("outstanding request marker should clear after the timeout")
	}

	// A late response for the abandoned request is foreign traffic now.
	response := withCRC([]byte{0x02, 0x03, 0x08, 1, 2, 3, 4, 5, 6, 7, 8})
	status, _ = receiveFrame(t, e, clk, port, response)
	assertStatus(t, status, NoFrames)
}

func TestMasterReadValidation(t *testing.T) {
	testCases := []struct {
		name     string
		node     uint8
		function uint8
		quantity uint16
	}{
		{name: "node zero", node: 0, function: 3, quantity: 1},
		{name: "node too high", node: 255, function: 3, quantity: 1},
		{name: "unsupported function", node: 2, function: 6, quantity: 1},
		{name: "zero quantity", node: 2, function: 3, quantity: 0},
		{name: "response exceeds buffer", node: 2, function: 3, quantity: 23},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			port := &fakePort{}
			e, _ := newTestEngine(port, 9600, 1)

			if err := e.MasterRead(tc.node, tc.function, 0, tc.quantity); err == nil {
				t.Error("expected validation error")
			}
			if len(port.wrote) != 0 {
				t.Error("nothing may be sent on a rejected request")
			}
			if e.AwaitingResponse() {
				t.Error("rejected request must not leave a marker behind")
			}
		})
	}
}

func TestMasterReadWhileBusy(t *testing.T) {
	port := &fakePort{}
	e, _ := newTestEngine(port, 9600, 1)

	if err := e.MasterRead(2, 3, 0, 4); err != nil {
		t.Fatalf("master read failed: %v", err)
	}
	if err := e.MasterRead(3, 3, 0, 4); err == nil {
		t.Error("expected a second request to be rejected while one is outstanding")
	}
}
