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

package sink

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"iqreplay/pkg/fifo"
	"iqreplay/pkg/log"
	"iqreplay/pkg/replay"

	"github.com/pion/rtp/v2"
	psdp "github.com/pion/sdp/v3"
	"github.com/stretchr/testify/require"
)

func TestPacketize(t *testing.T) {
	s := New(&bytes.Buffer{}, "127.0.0.1", 5004, log.NewMockLogger())
	seq, ts := s.sequence, s.timestamp

	samples := make([]complex64, 400)
	samples[0] = complex(0.5, -0.5)
	samples[1] = complex(2, -2)

	packets, err := s.Packetize(samples)
	require.NoError(t, err)
	require.Len(t, packets, 2)

	p := packets[0]
	require.Equal(t, uint8(PayloadType), p.PayloadType)
	require.Equal(t, seq, p.SequenceNumber)
	require.Equal(t, ts, p.Timestamp)
	require.Len(t, p.Payload, 1400)
	require.Equal(t, []byte{
		0x40, 0x00, 0xc0, 0x00, // 0.5, -0.5.
		0x7f, 0xff, 0x80, 0x00, // Clipped.
	}, p.Payload[:8])

	p2 := packets[1]
	require.Equal(t, seq+1, p2.SequenceNumber)
	require.Equal(t, ts+350, p2.Timestamp)
	require.Len(t, p2.Payload, 50*4)

	require.Equal(t, ts+400, s.timestamp)
}

func TestSDP(t *testing.T) {
	s := New(&bytes.Buffer{}, "239.0.0.1", 5004, log.NewMockLogger())
	s.SetSignal(1000000, 100000000)

	var sd psdp.SessionDescription
	require.NoError(t, sd.Unmarshal(s.SDP()))
	require.Len(t, sd.MediaDescriptions, 1)

	md := sd.MediaDescriptions[0]
	require.Equal(t, 5004, md.MediaName.Port.Value)
	rtpmap, ok := md.Attribute("rtpmap")
	require.True(t, ok)
	require.Equal(t, "96 L16/1000000/2", rtpmap)
	freq, ok := md.Attribute("x-center-frequency")
	require.True(t, ok)
	require.Equal(t, "100000000", freq)
	require.True(t, strings.Contains(string(s.SDP()), "c=IN IP4 239.0.0.1"))
}

func TestRun(t *testing.T) {
	buf := &bytes.Buffer{}
	s := New(buf, "127.0.0.1", 5004, log.NewMockLogger())

	f := fifo.New(100)
	f.Write([]complex64{complex(0.5, 0.5), complex(0.25, 0.25)})

	done := make(chan struct{})
	go func() {
		s.Run(f)
		close(done)
	}()

	require.Eventually(t, func() bool { return f.Fill() == 0 }, time.Second, time.Millisecond)
	f.Close()
	<-done

	var p rtp.Packet
	require.NoError(t, p.Unmarshal(buf.Bytes()))
	require.Equal(t, []byte{0x40, 0x00, 0x40, 0x00, 0x20, 0x00, 0x20, 0x00}, p.Payload)
}

func TestFollowSignal(t *testing.T) {
	s := New(&bytes.Buffer{}, "127.0.0.1", 5004, log.NewMockLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs := make(chan replay.Message)
	go s.FollowSignal(ctx, msgs)

	msgs <- replay.Message{Type: replay.MsgStartStop, Payload: replay.StartStop{}}
	msgs <- replay.Message{
		Type:    replay.MsgSignalChange,
		Payload: replay.SignalChange{SampleRate: 2000, CenterFrequency: 7},
	}

	require.Eventually(t, func() bool {
		return strings.Contains(string(s.SDP()), "L16/2000/2")
	}, time.Second, time.Millisecond)
}
