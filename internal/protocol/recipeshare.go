package protocol

import "strings"

// RecipeShareMarker is the first line of the legacy string-encoded recipe
// share format. Older clients embed the whole payload as delimited text in
// the message content; current clients send a structured RecipeShare payload
// under message_type "recipe_share".
const RecipeShareMarker = "::recipe-share::"

// legacyMinLines is the minimum line count (marker through title) for a
// legacy payload to be considered well formed. Shorter payloads degrade to
// plain text.
const legacyMinLines = 5

// RecipeShare is the structured payload of a shared recipe post.
type RecipeShare struct {
	TargetURL   string `json:"target_url"`
	MediaURL    string `json:"media_url,omitempty"`
	MediaType   string `json:"media_type,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	PrepTime    string `json:"prep_time,omitempty"`
	Servings    string `json:"servings,omitempty"`
	Category    string `json:"category,omitempty"`
}

// IsLegacyRecipeShare reports whether content begins with the legacy
// recipe-share marker line.
func IsLegacyRecipeShare(content string) bool {
	first, _, _ := strings.Cut(content, "\n")
	return strings.TrimRight(first, "\r") == RecipeShareMarker
}

// DecodeLegacyRecipeShare parses the legacy delimited-text encoding:
//
//	line 0: marker ("::recipe-share::")
//	line 1: target URL
//	line 2: media URL (may be empty)
//	line 3: media type (may be empty)
//	line 4: title
//	line 5: description   (optional)
//	line 6: prep time     (optional)
//	line 7: servings      (optional)
//	line 8: category      (optional)
//
// It returns (nil, false) when the content does not start with the marker or
// has fewer than the minimum line count, in which case the caller must render
// the content as plain text rather than fail.
func DecodeLegacyRecipeShare(content string) (*RecipeShare, bool) {
	if !IsLegacyRecipeShare(content) {
		return nil, false
	}

	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	if len(lines) < legacyMinLines {
		return nil, false
	}

	rs := &RecipeShare{
		TargetURL: lines[1],
		MediaURL:  lines[2],
		MediaType: lines[3],
		Title:     lines[4],
	}
	if len(lines) > 5 {
		rs.Description = lines[5]
	}
	if len(lines) > 6 {
		rs.PrepTime = lines[6]
	}
	if len(lines) > 7 {
		rs.Servings = lines[7]
	}
	if len(lines) > 8 {
		rs.Category = lines[8]
	}
	return rs, true
}

// EncodeLegacyRecipeShare renders a RecipeShare in the legacy delimited-text
// encoding for interoperability with clients that predate the structured
// payload.
func EncodeLegacyRecipeShare(rs *RecipeShare) string {
	return strings.Join([]string{
		RecipeShareMarker,
		rs.TargetURL,
		rs.MediaURL,
		rs.MediaType,
		rs.Title,
		rs.Description,
		rs.PrepTime,
		rs.Servings,
		rs.Category,
	}, "\n")
}

// NormalizeRecipe upgrades a message that carries a legacy string-encoded
// recipe share into the structured form: the Recipe field is populated and
// the message type set to recipe_share. Malformed legacy payloads are left
// untouched as plain text. Messages that already carry a structured payload
// pass through unchanged.
func NormalizeRecipe(m Message) Message {
	if m.Recipe != nil {
		m.MessageType = MessageTypeRecipeShare
		return m
	}
	if m.MessageType != MessageTypeText && m.MessageType != MessageTypeRecipeShare {
		return m
	}
	if rs, ok := DecodeLegacyRecipeShare(m.Content); ok {
		m.Recipe = rs
		m.MessageType = MessageTypeRecipeShare
		return m
	}
	// Marker present but payload malformed, or no marker at all: plain text.
	if m.MessageType == MessageTypeRecipeShare && m.Recipe == nil {
		m.MessageType = MessageTypeText
	}
	return m
}
