package protocol

import (
	"strings"
	"testing"
)

func TestDecodeLegacyRecipeShare_Full(t *testing.T) {
	content := strings.Join([]string{
		RecipeShareMarker,
		"/posts/123",
		"https://cdn.example.com/pad-thai.jpg",
		"image",
		"Pad Thai",
		"Weeknight pad thai with tamarind paste",
		"30 min",
		"4",
		"Thai",
	}, "\n")

	rs, ok := DecodeLegacyRecipeShare(content)
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	if rs.TargetURL != "/posts/123" {
		t.Errorf("target_url: expected %q, got %q", "/posts/123", rs.TargetURL)
	}
	if rs.MediaURL != "https://cdn.example.com/pad-thai.jpg" {
		t.Errorf("media_url: got %q", rs.MediaURL)
	}
	if rs.MediaType != "image" {
		t.Errorf("media_type: got %q", rs.MediaType)
	}
	if rs.Title != "Pad Thai" {
		t.Errorf("title: got %q", rs.Title)
	}
	if rs.Description != "Weeknight pad thai with tamarind paste" {
		t.Errorf("description: got %q", rs.Description)
	}
	if rs.PrepTime != "30 min" {
		t.Errorf("prep_time: got %q", rs.PrepTime)
	}
	if rs.Servings != "4" {
		t.Errorf("servings: got %q", rs.Servings)
	}
	if rs.Category != "Thai" {
		t.Errorf("category: got %q", rs.Category)
	}
}

func TestDecodeLegacyRecipeShare_MinimumLines(t *testing.T) {
	// Marker through title only; the optional fields are absent.
	content := strings.Join([]string{
		RecipeShareMarker,
		"/posts/7",
		"",
		"",
		"Congee",
	}, "\n")

	rs, ok := DecodeLegacyRecipeShare(content)
	if !ok {
		t.Fatal("expected decode to succeed with exactly 5 lines")
	}
	if rs.Title != "Congee" {
		t.Errorf("title: got %q", rs.Title)
	}
	if rs.Description != "" || rs.PrepTime != "" || rs.Servings != "" || rs.Category != "" {
		t.Errorf("optional fields should be empty, got %+v", rs)
	}
}

func TestDecodeLegacyRecipeShare_TooShortDegradesToText(t *testing.T) {
	// Marker present but fewer than 5 lines: must not decode, must not panic.
	content := RecipeShareMarker + "\n/posts/7\nCongee"

	rs, ok := DecodeLegacyRecipeShare(content)
	if ok {
		t.Fatalf("expected decode to fail for short payload, got %+v", rs)
	}
}

func TestDecodeLegacyRecipeShare_MarkerOnly(t *testing.T) {
	rs, ok := DecodeLegacyRecipeShare(RecipeShareMarker)
	if ok {
		t.Fatalf("expected decode to fail for marker-only payload, got %+v", rs)
	}
}

func TestDecodeLegacyRecipeShare_NoMarker(t *testing.T) {
	_, ok := DecodeLegacyRecipeShare("just a normal message\nwith\nseveral\nlines\nhere")
	if ok {
		t.Fatal("expected decode to fail without marker")
	}
}

func TestDecodeLegacyRecipeShare_CRLF(t *testing.T) {
	content := strings.Join([]string{
		RecipeShareMarker,
		"/posts/55",
		"",
		"",
		"Focaccia",
	}, "\r\n")

	rs, ok := DecodeLegacyRecipeShare(content)
	if !ok {
		t.Fatal("expected decode to succeed with CRLF line endings")
	}
	if rs.Title != "Focaccia" {
		t.Errorf("title: got %q", rs.Title)
	}
}

func TestEncodeDecodeLegacyRoundTrip(t *testing.T) {
	orig := &RecipeShare{
		TargetURL:   "/posts/321",
		MediaURL:    "https://cdn.example.com/stew.jpg",
		MediaType:   "image",
		Title:       "Beef Stew",
		Description: "Slow-cooked",
		PrepTime:    "3 h",
		Servings:    "6",
		Category:    "Comfort",
	}

	decoded, ok := DecodeLegacyRecipeShare(EncodeLegacyRecipeShare(orig))
	if !ok {
		t.Fatal("round trip decode failed")
	}
	if *decoded != *orig {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", decoded, orig)
	}
}

func TestNormalizeRecipe_LegacyUpgrade(t *testing.T) {
	m := Message{
		ID:          "m-1",
		Content:     EncodeLegacyRecipeShare(&RecipeShare{TargetURL: "/posts/5", Title: "Ramen"}),
		MessageType: MessageTypeText,
	}

	out := NormalizeRecipe(m)
	if out.MessageType != MessageTypeRecipeShare {
		t.Errorf("expected message_type %q, got %q", MessageTypeRecipeShare, out.MessageType)
	}
	if out.Recipe == nil || out.Recipe.Title != "Ramen" {
		t.Errorf("expected structured recipe payload, got %+v", out.Recipe)
	}
}

func TestNormalizeRecipe_MalformedLegacyStaysText(t *testing.T) {
	m := Message{
		ID:          "m-2",
		Content:     RecipeShareMarker + "\nonly-two-lines",
		MessageType: MessageTypeText,
	}

	out := NormalizeRecipe(m)
	if out.MessageType != MessageTypeText {
		t.Errorf("expected message_type %q, got %q", MessageTypeText, out.MessageType)
	}
	if out.Recipe != nil {
		t.Errorf("expected nil recipe, got %+v", out.Recipe)
	}
}

func TestNormalizeRecipe_DeclaredRecipeWithoutPayloadDowngrades(t *testing.T) {
	m := Message{
		ID:          "m-3",
		Content:     "plain words",
		MessageType: MessageTypeRecipeShare,
	}

	out := NormalizeRecipe(m)
	if out.MessageType != MessageTypeText {
		t.Errorf("expected downgrade to %q, got %q", MessageTypeText, out.MessageType)
	}
}

func TestNormalizeRecipe_StructuredPassThrough(t *testing.T) {
	m := Message{
		ID:          "m-4",
		MessageType: MessageTypeRecipeShare,
		Recipe:      &RecipeShare{TargetURL: "/posts/9", Title: "Dal"},
	}

	out := NormalizeRecipe(m)
	if out.Recipe == nil || out.Recipe.Title != "Dal" {
		t.Errorf("structured payload should pass through, got %+v", out.Recipe)
	}
}

func TestIsLegacyRecipeShare(t *testing.T) {
	cases := []struct {
		content string
		want    bool
	}{
		{RecipeShareMarker, true},
		{RecipeShareMarker + "\nmore", true},
		{RecipeShareMarker + "\r\nmore", true},
		{" " + RecipeShareMarker, false},
		{"hello", false},
		{"", false},
	}
	for _, c := range cases {
		if got := IsLegacyRecipeShare(c.content); got != c.want {
			t.Errorf("IsLegacyRecipeShare(%q) = %v, want %v", c.content, got, c.want)
		}
	}
}
