package protocol

// Message type constants for the message_type field.
const (
	MessageTypeText        = "text"
	MessageTypeImage       = "image"
	MessageTypeRecipeShare = "recipe_share"
)

// Conversation kinds.
const (
	ConversationPrivate = "private"
	ConversationGroup   = "group"
)

// Notification kinds carried on new_notification events.
const (
	NotifyFollow               = "follow"
	NotifyLike                 = "like"
	NotifyComment              = "comment"
	NotifyGroupPost            = "group_post"
	NotifyGroupJoinRequest     = "group_join_request"
	NotifyGroupRequestApproved = "group_request_approved"
	NotifyNewMessage           = "new_message"
)

// Message is a single chat message as it travels over the wire and over REST.
// Messages are immutable once delivered; within a conversation they are
// totally ordered by (CreatedAt, ID).
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	SenderID       string       `json:"sender_id"`
	SenderName     string       `json:"sender_name,omitempty"` // group chats only
	Content        string       `json:"content"`
	MessageType    string       `json:"message_type"` // "text", "image", "recipe_share"
	Recipe         *RecipeShare `json:"recipe,omitempty"`
	ClientMsgID    string       `json:"client_msg_id,omitempty"` // sender's idempotency ID, echoed back
	CreatedAt      int64        `json:"created_at"`              // unix milliseconds
}

// Before reports whether m sorts before other in a conversation's total
// order: ascending CreatedAt, ties broken by ID.
func (m Message) Before(other Message) bool {
	if m.CreatedAt != other.CreatedAt {
		return m.CreatedAt < other.CreatedAt
	}
	return m.ID < other.ID
}

// Participant is a member of a conversation as rendered in the UI.
type Participant struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Role      string `json:"role,omitempty"` // "admin" or "member", group chats only
}

// Conversation is a private or group chat thread as returned by the
// conversation-list REST endpoint and maintained by the client's read-state
// tracker. UnreadCount is never negative; UpdatedAt is monotonically
// non-decreasing as messages arrive.
type Conversation struct {
	ID           string        `json:"id"`
	Kind         string        `json:"kind"` // "private" or "group"
	Name         string        `json:"name,omitempty"`
	AdminID      string        `json:"admin_id,omitempty"`
	Participants []Participant `json:"participants"`
	LastMessage  string        `json:"last_message"`
	UnreadCount  int           `json:"unread_count"`
	UpdatedAt    int64         `json:"updated_at"` // unix milliseconds
}

// Notification is a domain event fanned out to the global badge. PostID and
// GroupID are optional routing context depending on Kind.
type Notification struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
	Message    string `json:"message"`
	PostID     string `json:"post_id,omitempty"`
	GroupID    string `json:"group_id,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}
