package device

import "github.com/skobkin/isxgo/internal/protocol"

// Metrics receives protocol counters from a Session.
type Metrics interface {
	FrameWritten(family protocol.Family)
	BytesRead(n int)
	StatusReceived(code protocol.StatusCode)
	ResultsParsed(n int)
	MalformedFrames(n int)
	CaptureTimedOut()
}

type nopMetrics struct{}

func (nopMetrics) FrameWritten(protocol.Family)       {}
func (nopMetrics) BytesRead(int)                      {}
func (nopMetrics) StatusReceived(protocol.StatusCode) {}
func (nopMetrics) ResultsParsed(int)                  {}
func (nopMetrics) MalformedFrames(int)                {}
func (nopMetrics) CaptureTimedOut()                   {}
