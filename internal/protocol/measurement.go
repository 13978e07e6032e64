package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// MeasurementFrameSize is the fixed size of a result frame.
	MeasurementFrameSize = 13
	// measurementLength is the length byte of a result frame.
	measurementLength = 0x0A
	// compactThreshold bounds how many consumed bytes the scanner keeps
	// before moving the pending tail to the front.
	compactThreshold = 4096
)

// MeasurementResult is one impedance sample. FrequencyID is the 0-based
// index of the sweep point, not a frequency.
type MeasurementResult struct {
	FrequencyID uint16
	Real        float32
	Imaginary   float32
}

// EncodeMeasurementResult builds the 13-byte result frame.
func EncodeMeasurementResult(r MeasurementResult) [MeasurementFrameSize]byte {
	var frame [MeasurementFrameSize]byte
	frame[0] = byte(FamilyMeasurement)
	frame[1] = measurementLength
	binary.BigEndian.PutUint16(frame[2:4], r.FrequencyID)
	binary.BigEndian.PutUint32(frame[4:8], math.Float32bits(r.Real))
	binary.BigEndian.PutUint32(frame[8:12], math.Float32bits(r.Imaginary))
	frame[12] = byte(FamilyMeasurement)

	return frame
}

// DecodeMeasurementResult decodes exactly one result frame.
func DecodeMeasurementResult(frame []byte) (MeasurementResult, error) {
	if !isMeasurementFrame(frame) {
		return MeasurementResult{}, fmt.Errorf("not a measurement result frame: % X", frame)
	}

	return MeasurementResult{
		FrequencyID: binary.BigEndian.Uint16(frame[2:4]),
		Real:        math.Float32frombits(binary.BigEndian.Uint32(frame[4:8])),
		Imaginary:   math.Float32frombits(binary.BigEndian.Uint32(frame[8:12])),
	}, nil
}

func isMeasurementFrame(frame []byte) bool {
	return len(frame) == MeasurementFrameSize &&
		frame[0] == byte(FamilyMeasurement) &&
		frame[1] == measurementLength &&
		frame[MeasurementFrameSize-1] == byte(FamilyMeasurement)
}

// MeasurementScanner extracts result frames from a byte stream that arrives
// in arbitrary chunks. Matched frames and noise before them are consumed;
// a tail that could still start a frame stays pending for the next Feed.
type MeasurementScanner struct {
	buf     []byte
	cursor  int
	skipped int
}

// Feed appends p and returns the results completed by it, in stream order.
func (s *MeasurementScanner) Feed(p []byte) []MeasurementResult {
	s.buf = append(s.buf, p...)

	var out []MeasurementResult
	for len(s.buf)-s.cursor >= MeasurementFrameSize {
		window := s.buf[s.cursor : s.cursor+MeasurementFrameSize]
		if isMeasurementFrame(window) {
			res, _ := DecodeMeasurementResult(window)
			out = append(out, res)
			s.cursor += MeasurementFrameSize
			continue
		}

		next := bytes.IndexByte(s.buf[s.cursor+1:], byte(FamilyMeasurement))
		if next < 0 {
			s.skipped += len(s.buf) - s.cursor
			s.cursor = len(s.buf)
			break
		}
		s.skipped += next + 1
		s.cursor += next + 1
	}
	s.compact()

	return out
}

// Pending is the number of received bytes not consumed yet.
func (s *MeasurementScanner) Pending() int {
	return len(s.buf) - s.cursor
}

// Skipped is the number of bytes discarded as noise so far.
func (s *MeasurementScanner) Skipped() int {
	return s.skipped
}

// Reset drops all buffered bytes.
func (s *MeasurementScanner) Reset() {
	s.buf = s.buf[:0]
	s.cursor = 0
	s.skipped = 0
}

func (s *MeasurementScanner) compact() {
	switch {
	case s.cursor == len(s.buf):
		s.buf = s.buf[:0]
		s.cursor = 0
	case s.cursor >= compactThreshold:
		n := copy(s.buf, s.buf[s.cursor:])
		s.buf = s.buf[:n]
		s.cursor = 0
	}
}

// ParseMeasurementStream extracts every complete result frame from raw.
func ParseMeasurementStream(raw []byte) []MeasurementResult {
	var s MeasurementScanner

	return s.Feed(raw)
}
