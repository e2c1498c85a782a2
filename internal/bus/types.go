package bus

import "fmt"

// ChatHandle is the numeric identifier of a source or destination chat.
// Supergroups and channels use the negative "-100…" form.
type ChatHandle int64

func (h ChatHandle) String() string { return fmt.Sprintf("%d", int64(h)) }

// MediaKind is the attachment kind as reported by the transport.
type MediaKind string

const (
	MediaNone      MediaKind = ""
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaAnimation MediaKind = "animation"
	MediaAudio     MediaKind = "audio"
	MediaVoice     MediaKind = "voice"
	MediaVideoNote MediaKind = "video_note"
	MediaDocument  MediaKind = "document"
	MediaSticker   MediaKind = "sticker"
	MediaOther     MediaKind = "other" // poll, location, contact, venue, dice: copy-only content
)

// MediaDescriptor describes the single attachment of an InboundItem.
type MediaDescriptor struct {
	Kind     MediaKind `json:"kind"`
	FileID   string    `json:"file_id,omitempty"`   // transport file reference (Telegram file_id)
	MimeType string    `json:"mime_type,omitempty"` // declared content type, empty for photos
	FileName string    `json:"file_name,omitempty"`
	FileSize int64     `json:"file_size,omitempty"`
}

// InboundItem is one delivered message: text and/or a single attachment.
type InboundItem struct {
	SourceChat ChatHandle       `json:"source_chat"`
	ItemID     int              `json:"item_id"`
	GroupID    string           `json:"group_id,omitempty"` // empty = standalone
	Text       string           `json:"text,omitempty"`     // message text or media caption
	Media      *MediaDescriptor `json:"media,omitempty"`

	// Payload is an opaque transport reference to the original message.
	// The Telegram transport stores the *telego.Message here.
	Payload any `json:"-"`
}

// HasMedia reports whether the item carries an attachment.
func (i InboundItem) HasMedia() bool {
	return i.Media != nil && i.Media.Kind != MediaNone
}

// IsGrouped reports whether the item belongs to a media group.
func (i InboundItem) IsGrouped() bool { return i.GroupID != "" }

// Ref returns a log-friendly reference "chat/item".
func (i InboundItem) Ref() string { return fmt.Sprintf("%d/%d", int64(i.SourceChat), i.ItemID) }

// MediaGroup is a completed album. All items share SourceChat and GroupID
// and are ordered by ascending ItemID.
type MediaGroup struct {
	SourceChat ChatHandle    `json:"source_chat"`
	GroupID    string        `json:"group_id"`
	Items      []InboundItem `json:"items"`
}

// ItemIDs returns the message IDs of the group, in order.
func (g MediaGroup) ItemIDs() []int {
	ids := make([]int, len(g.Items))
	for i, it := range g.Items {
		ids[i] = it.ItemID
	}
	return ids
}

// Ref returns a log-friendly reference "chat/group".
func (g MediaGroup) Ref() string { return fmt.Sprintf("%d/%s", int64(g.SourceChat), g.GroupID) }

// EventKind separates the two inbound event classes.
type EventKind int

const (
	EventItem EventKind = iota + 1
	EventGroup
)

func (k EventKind) String() string {
	switch k {
	case EventItem:
		return "item"
	case EventGroup:
		return "group"
	default:
		return "unknown"
	}
}

// Event is one inbound event from the transport. Exactly one of Item and
// Group is set, matching Kind.
type Event struct {
	Kind  EventKind
	Item  *InboundItem
	Group *MediaGroup
}

// Source returns the chat the event originated from.
func (e Event) Source() ChatHandle {
	switch {
	case e.Item != nil:
		return e.Item.SourceChat
	case e.Group != nil:
		return e.Group.SourceChat
	default:
		return 0
	}
}

// ItemEvent wraps a single message.
func ItemEvent(item InboundItem) Event { return Event{Kind: EventItem, Item: &item} }

// GroupEvent wraps a completed album.
func GroupEvent(group MediaGroup) Event { return Event{Kind: EventGroup, Group: &group} }
