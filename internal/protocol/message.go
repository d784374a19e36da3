package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Message types accepted on the control channel.
const (
	TypeJoin      = "join"
	TypeText      = "text"
	TypeListRooms = "list_rooms"
	TypeListUsers = "list_users"
	TypeLeave     = "leave"
)

// Message types emitted on the control channel.
const (
	TypeRoomList = "room_list"
	TypeUserList = "user_list"
)

// StatusJoined is the status value of a join acknowledgment.
const StatusJoined = "joined"

// DefaultRoom is joined when the join message carries no room name.
const DefaultRoom = "general"

// ControlReadLimit is the most bytes one control read consumes. The protocol
// treats each read as one JSON message, so writers must emit every message
// as a single write of at most this size.
const ControlReadLimit = 1024

// Rejection reasons sent in the "error" reply. The strings are kept verbatim
// from the original protocol so deployed clients keep working; the structural
// "error" key is the contract.
const (
	ReasonNameTaken    = "Имя уже занято"
	ReasonJoinExpected = "Ожидался join"
	ReasonBadJSON      = "Некорректный JSON"
	ReasonBadName      = "Недопустимое имя"
)

// Command is the inbound JSON envelope. Keys that do not apply to a given
// type are absent on the wire and decode to zero values.
type Command struct {
	Type    string `json:"type"`
	User    string `json:"user,omitempty"`
	Room    string `json:"room,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// JoinAck acknowledges a successful join. It is the one reply without a
// "type" key.
type JoinAck struct {
	Status string `json:"status"`
	Room   string `json:"room"`
}

// ErrorReply carries a human-readable rejection reason.
type ErrorReply struct {
	Error string `json:"error"`
}

// TextEvent is a chat line fanned out to a room.
type TextEvent struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

// RoomList answers list_rooms.
type RoomList struct {
	Type  string   `json:"type"`
	Rooms []string `json:"rooms"`
}

// UserList answers list_users with the members of the sender's room.
type UserList struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

// EncodeJoinAck frames the join acknowledgment for a room.
func EncodeJoinAck(room string) []byte {
	return mustMarshal(JoinAck{Status: StatusJoined, Room: room})
}

// EncodeError frames an error reply.
func EncodeError(reason string) []byte {
	return mustMarshal(ErrorReply{Error: reason})
}

// EncodeText frames a chat line as "<speaker>: <text>".
func EncodeText(speaker, text string) []byte {
	return mustMarshal(TextEvent{Type: TypeText, Payload: speaker + ": " + text})
}

// EncodeRoomList frames a room listing. A nil slice encodes as [].
func EncodeRoomList(rooms []string) []byte {
	if rooms == nil {
		rooms = []string{}
	}
	return mustMarshal(RoomList{Type: TypeRoomList, Rooms: rooms})
}

// EncodeUserList frames a member listing. A nil slice encodes as [].
func EncodeUserList(users []string) []byte {
	if users == nil {
		users = []string{}
	}
	return mustMarshal(UserList{Type: TypeUserList, Users: users})
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("protocol: marshal %T: %v", v, err))
	}
	return b
}

// ValidateName checks the wire constraints on a participant name: non-empty,
// valid UTF-8, at most MaxNameBytes when encoded. Names are never trimmed;
// the media prefix has to match byte for byte.
func ValidateName(name string) error {
	if name == "" {
		return errors.New("name is empty")
	}
	if len(name) > MaxNameBytes {
		return fmt.Errorf("name exceeds %d bytes", MaxNameBytes)
	}
	if !utf8.ValidString(name) {
		return errors.New("name is not valid UTF-8")
	}
	return nil
}
