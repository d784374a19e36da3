// Package core holds the process-wide participant and room state shared by
// the control and media planes.
package core

import (
	"errors"
	"log/slog"
	"net/netip"
	"sort"
	"sync"
	"time"

	"golos/server/internal/events"
)

// SendTimeout bounds how long delivery to one session's queue may block.
const SendTimeout = 50 * time.Millisecond

// sendBuffer is the per-session control queue depth.
const sendBuffer = 64

// Classified outcomes of registry mutations. Callers decide what goes on
// the wire.
var (
	ErrNameTaken    = errors.New("name already taken")
	ErrUnknownName  = errors.New("unknown participant name")
	ErrAlreadyBound = errors.New("media endpoint already bound")
)

// Session is the control-plane handle returned by Join. The owning session
// drains Send with a single writer; Leave closes the channel.
type Session struct {
	ID   string
	Name string
	Room string
	Send chan []byte
}

// Sender identifies the participant behind a bound media endpoint.
type Sender struct {
	Name string
	Room string
}

// Departed describes a removed participant.
type Departed struct {
	Name     string
	Room     string
	HadMedia bool
}

// MemberInfo is one participant in a State snapshot.
type MemberInfo struct {
	Name  string
	Media bool
}

// RoomInfo is one room in a State snapshot.
type RoomInfo struct {
	Name    string
	Members []MemberInfo
}

type participant struct {
	sessionID string
	name      string
	room      string
	endpoint  netip.AddrPort // zero until the first media datagram binds it
	send      chan []byte
}

// Registry is the directory of participants and rooms. One lock guards all
// four indices; reads that feed network I/O return snapshots so the lock is
// never held across a send.
type Registry struct {
	mu         sync.RWMutex
	bySession  map[string]*participant
	byName     map[string]*participant
	byEndpoint map[netip.AddrPort]*participant
	rooms      map[string]map[*participant]struct{}

	feed *events.Hub // optional; nil disables the event feed
}

// NewRegistry returns an empty registry. feed may be nil.
func NewRegistry(feed *events.Hub) *Registry {
	return &Registry{
		bySession:  make(map[string]*participant),
		byName:     make(map[string]*participant),
		byEndpoint: make(map[netip.AddrPort]*participant),
		rooms:      make(map[string]map[*participant]struct{}),
		feed:       feed,
	}
}

// Join registers a new participant under a caller-validated name and room.
// It fails with ErrNameTaken and mutates nothing if the name is in use. The
// room is created on demand.
func (r *Registry) Join(sessionID, name, room string) (*Session, error) {
	r.mu.Lock()
	if _, taken := r.byName[name]; taken {
		r.mu.Unlock()
		return nil, ErrNameTaken
	}
	p := &participant{
		sessionID: sessionID,
		name:      name,
		room:      room,
		send:      make(chan []byte, sendBuffer),
	}
	r.bySession[sessionID] = p
	r.byName[name] = p
	set, ok := r.rooms[room]
	if !ok {
		set = make(map[*participant]struct{})
		r.rooms[room] = set
	}
	set[p] = struct{}{}
	members := len(set)
	r.mu.Unlock()

	slog.Info("participant joined", "name", name, "room", room, "room_members", members)
	r.publish(events.TypeJoin, name, room)
	return &Session{ID: sessionID, Name: name, Room: room, Send: p.send}, nil
}

// BindMedia records the media source endpoint for a named participant and
// returns its identity. The binding is one-shot: ErrAlreadyBound is returned
// when the participant has an endpoint already or the endpoint belongs to
// someone else.
func (r *Registry) BindMedia(name string, endpoint netip.AddrPort) (Sender, error) {
	r.mu.Lock()
	p, ok := r.byName[name]
	if !ok {
		r.mu.Unlock()
		return Sender{}, ErrUnknownName
	}
	if p.endpoint.IsValid() {
		r.mu.Unlock()
		return Sender{}, ErrAlreadyBound
	}
	if _, claimed := r.byEndpoint[endpoint]; claimed {
		r.mu.Unlock()
		return Sender{}, ErrAlreadyBound
	}
	p.endpoint = endpoint
	r.byEndpoint[endpoint] = p
	room := p.room
	r.mu.Unlock()

	slog.Info("media endpoint bound", "name", name, "endpoint", endpoint, "room", room)
	r.publish(events.TypeMediaBound, name, room)
	return Sender{Name: name, Room: room}, nil
}

// SenderByEndpoint resolves a bound media endpoint to its participant.
func (r *Registry) SenderByEndpoint(endpoint netip.AddrPort) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byEndpoint[endpoint]
	if !ok {
		return Sender{}, false
	}
	return Sender{Name: p.name, Room: p.room}, true
}

// MediaPeers snapshots the bound media endpoints of everyone in room except
// the given endpoint. Members without a binding are skipped.
func (r *Registry) MediaPeers(room string, except netip.AddrPort) []netip.AddrPort {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.rooms[room]
	if len(set) == 0 {
		return nil
	}
	out := make([]netip.AddrPort, 0, len(set))
	for p := range set {
		if !p.endpoint.IsValid() || p.endpoint == except {
			continue
		}
		out = append(out, p.endpoint)
	}
	return out
}

// Leave removes a participant from every index, drops the room once empty,
// and closes the send queue. Unknown session IDs are a no-op, so it is safe
// to call on every session exit path.
func (r *Registry) Leave(sessionID string) (Departed, bool) {
	r.mu.Lock()
	p, ok := r.bySession[sessionID]
	if !ok {
		r.mu.Unlock()
		return Departed{}, false
	}
	delete(r.bySession, sessionID)
	delete(r.byName, p.name)
	hadMedia := p.endpoint.IsValid()
	if hadMedia {
		delete(r.byEndpoint, p.endpoint)
	}
	set := r.rooms[p.room]
	delete(set, p)
	roomRemoved := len(set) == 0
	if roomRemoved {
		delete(r.rooms, p.room)
	}
	close(p.send)
	remaining := len(r.bySession)
	r.mu.Unlock()

	slog.Info("participant left", "name", p.name, "room", p.room,
		"room_removed", roomRemoved, "remaining", remaining)
	r.publish(events.TypeLeave, p.name, p.room)
	return Departed{Name: p.name, Room: p.room, HadMedia: hadMedia}, true
}

// Rooms returns the names of all rooms with at least one member, sorted.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Members returns the participant names in one room, sorted. A room with no
// members yields nil.
func (r *Registry) Members(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.rooms[room]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p.name)
	}
	sort.Strings(out)
	return out
}

// State snapshots every room with its members, sorted for stable output.
func (r *Registry) State() []RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for name, set := range r.rooms {
		members := make([]MemberInfo, 0, len(set))
		for p := range set {
			members = append(members, MemberInfo{Name: p.name, Media: p.endpoint.IsValid()})
		}
		sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })
		out = append(out, RoomInfo{Name: name, Members: members})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ParticipantCount returns the number of joined participants.
func (r *Registry) ParticipantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySession)
}

// RoomCount returns the number of non-empty rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Broadcast queues a framed message for every participant in room except
// exceptSessionID. Queue sends happen outside the lock; a slow or departed
// peer loses the frame, never the sender. Returns the number delivered.
func (r *Registry) Broadcast(room, exceptSessionID string, frame []byte) int {
	r.mu.RLock()
	set := r.rooms[room]
	targets := make([]chan []byte, 0, len(set))
	for p := range set {
		if exceptSessionID != "" && p.sessionID == exceptSessionID {
			continue
		}
		targets = append(targets, p.send)
	}
	r.mu.RUnlock()

	sent := 0
	for _, ch := range targets {
		if trySend(ch, frame) {
			sent++
		}
	}
	slog.Debug("broadcast", "room", room, "recipients", sent, "targets", len(targets))
	return sent
}

// SendTo queues one framed message for one participant.
func (r *Registry) SendTo(sessionID string, frame []byte) bool {
	r.mu.RLock()
	p, ok := r.bySession[sessionID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return trySend(p.send, frame)
}

func (r *Registry) publish(typ, name, room string) {
	if r.feed == nil {
		return
	}
	r.feed.Publish(events.Event{Type: typ, Name: name, Room: room, TS: time.Now()})
}

// trySend delivers to a session queue, giving up after SendTimeout. The
// recover absorbs the race with Leave closing the channel.
func trySend(ch chan []byte, frame []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case ch <- frame:
		return true
	case <-time.After(SendTimeout):
		slog.Debug("send queue full, dropping frame")
		return false
	}
}
