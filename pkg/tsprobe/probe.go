// Package tsprobe spot-checks MPEG-TS segment files emitted by the
// transcoder: it verifies packet alignment and extracts the first PTS,
// which is used for drift diagnostics against the reference timeline.
package tsprobe

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Comcast/gots/v2/packet"
	"github.com/Comcast/gots/v2/pes"
)

// ErrNoPTS is returned when no PES header with a PTS was found.
var ErrNoPTS = errors.New("no PTS found in segment")

const ptsClockHz = 90000.0

// FirstPTS reads TS packets from r and returns the first PTS found
// in a PES header, in 90 kHz clock ticks.
func FirstPTS(r io.Reader) (uint64, error) {
	var pkt packet.Packet
	nrPackets := 0
	for {
		_, err := io.ReadFull(r, pkt[:])
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read TS packet %d: %w", nrPackets, err)
		}
		if pkt[0] != 0x47 {
			return 0, fmt.Errorf("lost sync at packet %d", nrPackets)
		}
		nrPackets++
		if !pkt.PayloadUnitStartIndicator() {
			continue
		}
		pay, err := pkt.Payload()
		if err != nil {
			continue
		}
		ph, err := pes.NewPESHeader(pay)
		if err != nil {
			continue
		}
		if ph.HasPTS() {
			return ph.PTS(), nil
		}
	}
	if nrPackets == 0 {
		return 0, fmt.Errorf("no TS packets in input")
	}
	return 0, ErrNoPTS
}

// FirstPTSSeconds probes the segment file at path and returns its first
// PTS converted to seconds.
func FirstPTSSeconds(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open segment: %w", err)
	}
	defer f.Close()
	pts, err := FirstPTS(f)
	if err != nil {
		return 0, err
	}
	return float64(pts) / ptsClockHz, nil
}
