package modbus

// Status is the result of a single Poll call (or the error kind passed to
// SendErrorResponse).
type Status uint8

const (
	// NoFrames means nothing addressed to this node happened.
	NoFrames Status = iota
	// ErrOverflow means an incoming frame exceeded the frame buffer.
	ErrOverflow
	// ErrCRCFailed means a complete frame failed its CRC check.
	ErrCRCFailed
	// ErrCorrupted means a complete frame was too short to be valid.
	ErrCorrupted
	// ErrIllegalFunction means a request carried an unsupported function
	// code; an exception response has already been queued.
	ErrIllegalFunction
	// ErrIllegalAddress is only used as an error kind for SendErrorResponse.
	ErrIllegalAddress
	// FrameSending means a transmission is still in progress.
	FrameSending
	// FrameSent means a transmission finished during this poll.
	FrameSent
	// FrameReceiving means bytes are being accumulated into a frame.
	FrameReceiving
	// FrameReceived means a valid request addressed to this node arrived.
	FrameReceived
	// MasterReceived means a response to an outstanding master request
	// arrived and can be fetched with MasterResponse.
	MasterReceived
	// MasterError means the awaited slave answered with an exception or
	// an unrecognized function code.
	MasterError
)

var statusNames = map[Status]string{
	NoFrames:           "no frames",
	ErrOverflow:        "overflow",
	ErrCRCFailed:       "crc failed",
	ErrCorrupted:       "corrupted",
	ErrIllegalFunction: "illegal function",
	ErrIllegalAddress:  "illegal address",
	FrameSending:       "frame sending",
	FrameSent:          "frame sent",
	FrameReceiving:     "frame receiving",
	FrameReceived:      "frame received",
	MasterReceived:     "master received",
	MasterError:        "master error",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}
