package models

// ChatMessage is one entry in a group's append-only chat log
// (groups/{groupId}/chat/{messageId}). Messages are never edited or deleted;
// ordering is by server-assigned timestamp ascending.
type ChatMessage struct {
	// ID is the document ID assigned on append (UUID format).
	ID string `json:"-"`

	// User is the author's display name at send time.
	User string `json:"user"`

	// UID is the author's user ID.
	UID string `json:"uid"`

	// Text is the message body. Empty for image posts.
	Text string `json:"text,omitempty"`

	// ImageURL carries an admin-posted image. Mutually exclusive with Text.
	ImageURL string `json:"imageUrl,omitempty"`

	// PhotoURL is the author's avatar at send time.
	PhotoURL string `json:"photoURL,omitempty"`

	// Timestamp is the server-assigned Unix millisecond send time. A
	// message's position in the log is final once assigned.
	Timestamp int64 `json:"timestamp"`
}
