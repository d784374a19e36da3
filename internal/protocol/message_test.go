package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// ValidateName
// ---------------------------------------------------------------------------

func TestValidateNameValid(t *testing.T) {
	if err := ValidateName("alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateNameEmpty(t *testing.T) {
	if err := ValidateName(""); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestValidateNameExactMaxBytes(t *testing.T) {
	name := strings.Repeat("x", MaxNameBytes)
	if err := ValidateName(name); err != nil {
		t.Fatalf("unexpected error for %d-byte name: %v", MaxNameBytes, err)
	}
}

func TestValidateNameExceedsMaxBytes(t *testing.T) {
	name := strings.Repeat("x", MaxNameBytes+1)
	if err := ValidateName(name); err == nil {
		t.Error("expected error for name exceeding max bytes")
	}
}

func TestValidateNameCountsBytesNotRunes(t *testing.T) {
	// 16 Cyrillic runes encode to 32 bytes; 17 overflow the prefix.
	if err := ValidateName(strings.Repeat("ж", 16)); err != nil {
		t.Fatalf("unexpected error for 32-byte Cyrillic name: %v", err)
	}
	if err := ValidateName(strings.Repeat("ж", 17)); err == nil {
		t.Error("expected error for 34-byte Cyrillic name")
	}
}

func TestValidateNameInvalidUTF8(t *testing.T) {
	if err := ValidateName("al\xffce"); err == nil {
		t.Error("expected error for invalid UTF-8")
	}
}

func TestValidateNameKeepsWhitespace(t *testing.T) {
	// Names are matched byte for byte against media prefixes, so no trimming.
	if err := ValidateName("  alice  "); err != nil {
		t.Fatalf("unexpected error for padded name: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Encode helpers: these assert the exact wire bytes deployed clients parse.
// ---------------------------------------------------------------------------

func TestEncodeJoinAckWire(t *testing.T) {
	got := string(EncodeJoinAck("general"))
	want := `{"status":"joined","room":"general"}`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestEncodeErrorWire(t *testing.T) {
	got := string(EncodeError(ReasonNameTaken))
	want := `{"error":"Имя уже занято"}`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestEncodeTextPrependsSpeaker(t *testing.T) {
	got := string(EncodeText("alice", "привет"))
	want := `{"type":"text","payload":"alice: привет"}`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestEncodeTextEmptyBody(t *testing.T) {
	got := string(EncodeText("alice", ""))
	want := `{"type":"text","payload":"alice: "}`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestEncodeRoomListWire(t *testing.T) {
	got := string(EncodeRoomList([]string{"general", "ops"}))
	want := `{"type":"room_list","rooms":["general","ops"]}`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestEncodeRoomListNilIsEmptyArray(t *testing.T) {
	got := string(EncodeRoomList(nil))
	want := `{"type":"room_list","rooms":[]}`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestEncodeUserListNilIsEmptyArray(t *testing.T) {
	got := string(EncodeUserList(nil))
	want := `{"type":"user_list","users":[]}`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

// ---------------------------------------------------------------------------
// Command decoding
// ---------------------------------------------------------------------------

func TestCommandDecodeJoin(t *testing.T) {
	var cmd Command
	if err := json.Unmarshal([]byte(`{"type":"join","user":"alice","room":"ops"}`), &cmd); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cmd.Type != TypeJoin || cmd.User != "alice" || cmd.Room != "ops" {
		t.Errorf("unexpected command: %#v", cmd)
	}
}

func TestCommandDecodeIgnoresUnknownKeys(t *testing.T) {
	var cmd Command
	if err := json.Unmarshal([]byte(`{"type":"text","payload":"hi","seq":7}`), &cmd); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cmd.Type != TypeText || cmd.Payload != "hi" {
		t.Errorf("unexpected command: %#v", cmd)
	}
}

func TestCommandDecodeMissingKeysZero(t *testing.T) {
	var cmd Command
	if err := json.Unmarshal([]byte(`{"type":"join"}`), &cmd); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cmd.User != "" || cmd.Room != "" {
		t.Errorf("expected zero values, got %#v", cmd)
	}
}
