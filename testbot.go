package main

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net"
	"time"

	"golos/server/internal/protocol"
)

// Test bot audio parameters, matching the media protocol: 16-bit LE PCM at
// 16 kHz mono, 1024 samples per datagram.
const (
	botSampleRate = 16000
	botSamples    = 1024
	botToneHz     = 440.0
	botAmplitude  = 12000

	// 1024 samples at 16 kHz.
	botFrameInterval = 64 * time.Millisecond
)

// RunTestBot joins as a virtual participant that streams a 440 Hz tone and
// logs any chat it receives. It runs until ctx is canceled or the control
// connection drops.
func RunTestBot(ctx context.Context, controlAddr, mediaAddr, name, room string) error {
	if err := protocol.ValidateName(name); err != nil {
		return fmt.Errorf("bot name: %w", err)
	}

	conn, err := net.Dial("tcp", controlAddr)
	if err != nil {
		return fmt.Errorf("dial control: %w", err)
	}
	defer conn.Close()

	join, _ := json.Marshal(protocol.Command{Type: protocol.TypeJoin, User: name, Room: room})
	if _, err := conn.Write(join); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	buf := make([]byte, protocol.ControlReadLimit)
	n, err := conn.Read(buf)
	if err != nil {
		return fmt.Errorf("read join reply: %w", err)
	}
	var ack struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(buf[:n], &ack); err != nil {
		return fmt.Errorf("decode join reply: %w", err)
	}
	if ack.Status != protocol.StatusJoined {
		return fmt.Errorf("join rejected: %s", ack.Error)
	}
	slog.Info("bot joined", "name", name, "room", room)

	media, err := net.Dial("udp", mediaAddr)
	if err != nil {
		return fmt.Errorf("dial media: %w", err)
	}
	defer media.Close()

	// Drain inbound control traffic and surface chat lines.
	go func() {
		b := make([]byte, protocol.ControlReadLimit)
		for {
			n, err := conn.Read(b)
			if err != nil {
				return
			}
			var msg protocol.Command
			if json.Unmarshal(b[:n], &msg) == nil && msg.Type == protocol.TypeText {
				slog.Info("bot received text", "payload", msg.Payload)
			}
		}
	}()

	// One reusable datagram; the PCM section is rewritten every tick with a
	// continuous phase so the tone has no frame-boundary clicks.
	dgram := protocol.BuildDatagram(name, make([]byte, botSamples*2))
	pcm := dgram[protocol.MaxNameBytes:]
	phase := 0.0
	step := 2 * math.Pi * botToneHz / botSampleRate

	ticker := time.NewTicker(botFrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			leave, _ := json.Marshal(protocol.Command{Type: protocol.TypeLeave})
			_, _ = conn.Write(leave)
			slog.Info("bot leaving", "name", name)
			return nil
		case <-ticker.C:
			for i := 0; i < botSamples; i++ {
				sample := int16(botAmplitude * math.Sin(phase))
				binary.LittleEndian.PutUint16(pcm[i*2:], uint16(sample))
				phase += step
			}
			if _, err := media.Write(dgram); err != nil {
				return fmt.Errorf("send media: %w", err)
			}
		}
	}
}
