package link

import (
	"context"
	"slices"
)

// EXCHANGE & TRACE:
// An Exchange is one Transceive call: the frame handed to the link and what
// came back. A Trace is the chronological list of exchanges behind one or
// more logical operations; a single "read 256 bytes" may need several frames
// because of ISO 14443-4 chaining, RX chaining or the native additional
// frame convention.

// Exchange is a recorded Transceive call.
type Exchange struct {
	Frame    Frame
	Response []byte
	Err      error
}

// Trace is a sequence of exchanges.
type Trace []Exchange

// Last returns the final exchange of the trace, nil when empty.
func (t Trace) Last() *Exchange {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// Commands returns the data of every frame, in order.
func (t Trace) Commands() [][]byte {
	out := make([][]byte, 0, len(t))
	for _, e := range t {
		out = append(out, e.Frame.Data)
	}
	return out
}

// Responses returns the bytes received for every frame, in order.
func (t Trace) Responses() [][]byte {
	out := make([][]byte, 0, len(t))
	for _, e := range t {
		out = append(out, e.Response)
	}
	return out
}

// Recorder is a Link that keeps a copy of everything passing through Base.
type Recorder struct {
	Base  Link
	Trace Trace
}

// NewRecorder wraps base.
func NewRecorder(base Link) *Recorder {
	return &Recorder{Base: base}
}

// Transceive forwards f and records the exchange.
func (r *Recorder) Transceive(ctx context.Context, f Frame) ([]byte, error) {
	resp, err := r.Base.Transceive(ctx, f)

	f.Data = slices.Clone(f.Data)
	r.Trace = append(r.Trace, Exchange{
		Frame:    f,
		Response: slices.Clone(resp),
		Err:      err,
	})

	return resp, err
}

// RxPending forwards to Base.
func (r *Recorder) RxPending() bool {
	return r.Base.RxPending()
}

// Reset drops the recorded trace.
func (r *Recorder) Reset() {
	r.Trace = nil
}
