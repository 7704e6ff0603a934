package protocol

import (
	"strings"
	"testing"
)

func TestValidateContent(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"normal text", "hello there", false},
		{"empty", "", true},
		{"exactly at byte limit", strings.Repeat("x", MaxTextChars), false},
		{"over byte limit", strings.Repeat("x", MaxMessageBytes+1), true},
		{"over char limit multibyte", strings.Repeat("é", MaxTextChars+1), true},
		{"invalid utf8", string([]byte{0xff, 0xfe}), true},
	}

	for _, c := range cases {
		err := ValidateContent(c.content)
		if c.wantErr && err == nil {
			t.Errorf("%s: expected error, got nil", c.name)
		}
		if !c.wantErr && err != nil {
			t.Errorf("%s: unexpected error: %v", c.name, err)
		}
	}
}

func TestValidateSend(t *testing.T) {
	base := SendMessageMsg{
		RoomID:      "conv-1",
		ClientMsgID: "cm-1",
		Content:     "hi",
		MessageType: MessageTypeText,
	}

	if err := ValidateSend(base); err != nil {
		t.Fatalf("valid text send should pass: %v", err)
	}

	m := base
	m.RoomID = ""
	if ValidateSend(m) == nil {
		t.Error("missing room_id should fail")
	}

	m = base
	m.ClientMsgID = ""
	if ValidateSend(m) == nil {
		t.Error("missing client_msg_id should fail")
	}

	m = base
	m.MessageType = "carrier_pigeon"
	if ValidateSend(m) == nil {
		t.Error("unknown message_type should fail")
	}
}

func TestValidateSend_RecipeShare(t *testing.T) {
	m := SendMessageMsg{
		RoomID:      "conv-1",
		ClientMsgID: "cm-2",
		MessageType: MessageTypeRecipeShare,
		Recipe:      &RecipeShare{TargetURL: "/posts/1", Title: "Stew"},
	}
	if err := ValidateSend(m); err != nil {
		t.Fatalf("structured recipe share should pass: %v", err)
	}

	m.Recipe = &RecipeShare{Title: "Stew"}
	if ValidateSend(m) == nil {
		t.Error("recipe share without target_url should fail")
	}

	// Legacy: payload in content, no structured recipe.
	legacy := SendMessageMsg{
		RoomID:      "conv-1",
		ClientMsgID: "cm-3",
		MessageType: MessageTypeRecipeShare,
		Content:     EncodeLegacyRecipeShare(&RecipeShare{TargetURL: "/posts/2", Title: "Soup"}),
	}
	if err := ValidateSend(legacy); err != nil {
		t.Fatalf("legacy recipe share should pass content validation: %v", err)
	}
}
