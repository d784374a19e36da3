package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"

	"golos/server/internal/core"
	"golos/server/internal/metrics"
	"golos/server/internal/protocol"
	"golos/server/internal/server"
)

func TestRunTestBotRejectsBadName(t *testing.T) {
	err := RunTestBot(context.Background(), ":8888", ":8889", strings.Repeat("x", protocol.MaxNameBytes+1), "general")
	if err == nil {
		t.Error("expected error for oversized bot name")
	}
}

func TestRunTestBotStreamsToneAndLeaves(t *testing.T) {
	reg := core.NewRegistry(nil)
	srv := server.New(server.Config{ControlAddr: "127.0.0.1:0", MediaAddr: "127.0.0.1:0"},
		reg, &metrics.Counters{}, slog.Default())
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(srv.Stop)

	// A listening participant, already media-bound, so the bot's traffic has
	// somewhere to land.
	control, err := net.Dial("tcp", srv.ControlAddr().String())
	if err != nil {
		t.Fatalf("dial control: %v", err)
	}
	t.Cleanup(func() { control.Close() })
	join, _ := json.Marshal(protocol.Command{Type: protocol.TypeJoin, User: "listener", Room: "studio"})
	if _, err := control.Write(join); err != nil {
		t.Fatalf("send join: %v", err)
	}
	buf := make([]byte, protocol.ControlReadLimit)
	_ = control.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := control.Read(buf)
	if err != nil {
		t.Fatalf("read join ack: %v", err)
	}
	if !strings.Contains(string(buf[:n]), `"joined"`) {
		t.Fatalf("unexpected join reply: %s", buf[:n])
	}

	media, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("media socket: %v", err)
	}
	t.Cleanup(func() { media.Close() })
	mediaAddr := srv.MediaAddr().(*net.UDPAddr).AddrPort()
	if _, err := media.WriteToUDPAddrPort(protocol.BuildDatagram("listener", nil), mediaAddr); err != nil {
		t.Fatalf("bind media: %v", err)
	}
	localAddr := media.LocalAddr().(*net.UDPAddr).AddrPort()
	ep := netip.AddrPortFrom(localAddr.Addr().Unmap(), localAddr.Port())
	waitFor(t, func() bool {
		_, ok := reg.SenderByEndpoint(ep)
		return ok
	})

	botCtx, stopBot := context.WithCancel(context.Background())
	defer stopBot()
	botDone := make(chan error, 1)
	go func() {
		botDone <- RunTestBot(botCtx, srv.ControlAddr().String(), srv.MediaAddr().String(), "tonebot", "studio")
	}()

	waitFor(t, func() bool { return reg.ParticipantCount() == 2 })

	// The bot's first datagram binds it; the listener receives the stripped
	// PCM payload, one full frame of tone.
	dgram := make([]byte, protocol.MaxDatagram)
	_ = media.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err = media.ReadFromUDP(dgram)
	if err != nil {
		t.Fatalf("recv bind fan-out: %v", err)
	}
	if n != botSamples*2 {
		t.Fatalf("bind fan-out size: got %d, want %d", n, botSamples*2)
	}

	// Subsequent datagrams arrive verbatim with the bot's name prefix.
	_ = media.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err = media.ReadFromUDP(dgram)
	if err != nil {
		t.Fatalf("recv voice datagram: %v", err)
	}
	name, payload, ok := protocol.ParseSenderName(dgram[:n])
	if !ok || name != "tonebot" {
		t.Fatalf("voice datagram prefix: got %q ok=%v", name, ok)
	}
	if len(payload) != botSamples*2 {
		t.Fatalf("voice payload size: got %d, want %d", len(payload), botSamples*2)
	}
	tone := false
	for _, b := range payload {
		if b != 0 {
			tone = true
			break
		}
	}
	if !tone {
		t.Error("voice payload is silent, expected a tone")
	}

	// Cancelling the bot sends leave and frees its name.
	stopBot()
	select {
	case err := <-botDone:
		if err != nil {
			t.Fatalf("bot exited with error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not exit on cancel")
	}
	waitFor(t, func() bool { return reg.ParticipantCount() == 1 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
