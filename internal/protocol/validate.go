package protocol

import (
	"fmt"
	"unicode/utf8"
)

const (
	MaxMessageBytes = 4096 // 4KB max frame size
	MaxTextChars    = 2000 // max character count
)

// ValidateContent checks that a chat message's content meets wire
// requirements. Image messages carry URLs or data references in content, so
// the same byte limit applies to every message type.
func ValidateContent(content string) error {
	if len(content) == 0 {
		return fmt.Errorf("message content is empty")
	}
	if len(content) > MaxMessageBytes {
		return fmt.Errorf("message exceeds %d byte limit", MaxMessageBytes)
	}
	if utf8.RuneCountInString(content) > MaxTextChars {
		return fmt.Errorf("message exceeds %d character limit", MaxTextChars)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	return nil
}

// ValidateSend checks a send_message control message: the room and
// idempotency ID must be present, the message type recognized, and for
// non-recipe sends the content must pass ValidateContent. Recipe shares may
// have empty content when a structured payload is attached.
func ValidateSend(m SendMessageMsg) error {
	if m.RoomID == "" {
		return fmt.Errorf("missing room_id")
	}
	if m.ClientMsgID == "" {
		return fmt.Errorf("missing client_msg_id")
	}
	switch m.MessageType {
	case MessageTypeText, MessageTypeImage:
		return ValidateContent(m.Content)
	case MessageTypeRecipeShare:
		if m.Recipe == nil {
			// Legacy clients encode the payload in content.
			return ValidateContent(m.Content)
		}
		if m.Recipe.TargetURL == "" || m.Recipe.Title == "" {
			return fmt.Errorf("recipe share requires target_url and title")
		}
		return nil
	default:
		return fmt.Errorf("unknown message_type %q", m.MessageType)
	}
}
