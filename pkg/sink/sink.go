// Copyright 2022 The iqreplay Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package sink forwards replayed samples as an RTP stream of
// 16 bit big-endian stereo audio, I on the left and Q on the right.
package sink

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"sync"

	"iqreplay/pkg/log"
	"iqreplay/pkg/replay"

	"github.com/google/uuid"
	"github.com/icza/bitio"
	"github.com/pion/rtp/v2"
	psdp "github.com/pion/sdp/v3"
)

// PayloadType dynamic RTP payload type of the stream.
const PayloadType = 96

const (
	maxPayloadSize = 1400
	frameSize      = 4 // Two 16 bit channels.
)

// Puller is a sample source, usually the controller fifo.
type Puller interface {
	Pull([]complex64) (int, bool)
}

// Sink packetizes samples and writes the packets to w.
type Sink struct {
	w       io.Writer
	address string
	port    int
	log     *log.Logger

	ssrc      uint32
	sequence  uint16
	timestamp uint32

	mu              sync.Mutex
	sampleRate      int
	centerFrequency uint64
	sdp             []byte
}

// New returns a sink that writes RTP packets to w. Address and port
// are only used in the session description.
func New(w io.Writer, address string, port int, logger *log.Logger) *Sink {
	id := uuid.New()
	s := &Sink{
		w:       w,
		address: address,
		port:    port,
		log:     logger,

		ssrc:     binary.BigEndian.Uint32(id[:4]),
		sequence: binary.BigEndian.Uint16(id[4:6]),
	}
	s.SetSignal(48000, 0)
	return s
}

// SetSignal updates the clock rate and regenerates the session description.
func (s *Sink) SetSignal(sampleRate int, centerFrequency uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sampleRate = sampleRate
	s.centerFrequency = centerFrequency
	s.sdp = s.marshalSDP()
}

// SDP returns the current session description.
func (s *Sink) SDP() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sdp
}

func (s *Sink) marshalSDP() []byte {
	typ := strconv.Itoa(PayloadType)

	sd := &psdp.SessionDescription{
		SessionName: psdp.SessionName("iqreplay"),
		Origin: psdp.Origin{
			Username:       "-",
			SessionID:      uint64(s.ssrc),
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "127.0.0.1",
		},
		ConnectionInformation: &psdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &psdp.Address{Address: s.address},
		},
		TimeDescriptions: []psdp.TimeDescription{{}},
		MediaDescriptions: []*psdp.MediaDescription{
			{
				MediaName: psdp.MediaName{
					Media:   "audio",
					Port:    psdp.RangedPort{Value: s.port},
					Protos:  []string{"RTP", "AVP"},
					Formats: []string{typ},
				},
				Attributes: []psdp.Attribute{
					{
						Key:   "rtpmap",
						Value: typ + " L16/" + strconv.Itoa(s.sampleRate) + "/2",
					},
					{
						Key:   "x-center-frequency",
						Value: strconv.FormatUint(s.centerFrequency, 10),
					},
					{Key: "sendonly"},
				},
			},
		},
	}

	byts, _ := sd.Marshal()
	return byts
}

// Packetize encodes samples into RTP packets and advances
// the sequence number and timestamp.
func (s *Sink) Packetize(samples []complex64) ([]*rtp.Packet, error) {
	var packets []*rtp.Packet
	perPacket := maxPayloadSize / frameSize

	for len(samples) > 0 {
		n := perPacket
		if n > len(samples) {
			n = len(samples)
		}

		payload, err := encodeL16(samples[:n])
		if err != nil {
			return nil, err
		}

		packets = append(packets, &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    PayloadType,
				SequenceNumber: s.sequence,
				Timestamp:      s.timestamp,
				SSRC:           s.ssrc,
			},
			Payload: payload,
		})
		s.sequence++
		s.timestamp += uint32(n)
		samples = samples[n:]
	}
	return packets, nil
}

func encodeL16(samples []complex64) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, len(samples)*frameSize))
	w := bitio.NewWriter(buf)
	for _, sample := range samples {
		if err := w.WriteBits(uint64(uint16(toInt16(real(sample)))), 16); err != nil {
			return nil, err
		}
		if err := w.WriteBits(uint64(uint16(toInt16(imag(sample)))), 16); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toInt16(v float32) int16 {
	scaled := math.Round(float64(v) * 32768)
	switch {
	case scaled > math.MaxInt16:
		return math.MaxInt16
	case scaled < math.MinInt16:
		return math.MinInt16
	}
	return int16(scaled)
}

// Run forwards samples from src until it is closed.
func (s *Sink) Run(src Puller) {
	samples := make([]complex64, 4096)
	for {
		n, ok := src.Pull(samples)
		if !ok {
			return
		}
		if err := s.write(samples[:n]); err != nil {
			s.log.Error().Src("sink").Msgf("%v", err)
		}
	}
}

func (s *Sink) write(samples []complex64) error {
	packets, err := s.Packetize(samples)
	if err != nil {
		return fmt.Errorf("packetize: %w", err)
	}
	for _, p := range packets {
		raw, err := p.Marshal()
		if err != nil {
			return fmt.Errorf("marshal packet: %w", err)
		}
		if _, err := s.w.Write(raw); err != nil {
			return fmt.Errorf("write packet: %w", err)
		}
	}
	return nil
}

// FollowSignal applies signal changes from the controller feed.
func (s *Sink) FollowSignal(ctx context.Context, msgs <-chan replay.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			change, ok := msg.Payload.(replay.SignalChange)
			if !ok {
				continue
			}
			s.SetSignal(change.SampleRate, change.CenterFrequency)
			s.log.Info().Src("sink").Msgf("clock rate %v Hz, center frequency %v Hz",
				change.SampleRate, change.CenterFrequency)
		}
	}
}
