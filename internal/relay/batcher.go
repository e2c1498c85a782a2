package relay

import (
	"strings"

	"github.com/nextlevelbuilder/tgrelay/internal/bus"
)

const (
	// MaxBatchSize is Telegram's upper bound on items per media group.
	MaxBatchSize = 10

	// MinBatchSize is the smallest true album. Single-item batches are still
	// sent through the batch path.
	MinBatchSize = 2
)

// MediaClass is the batching compatibility class of an item.
// One outbound batch only ever holds items of a single class.
type MediaClass string

const (
	ClassPhoto    MediaClass = "photo"
	ClassVideo    MediaClass = "video"
	ClassDocument MediaClass = "document"
)

// Classify maps a media descriptor to its class: photo if it is a photo,
// video if the attachment is a video or its content type starts with
// "video/", document otherwise.
func Classify(m *bus.MediaDescriptor) MediaClass {
	if m == nil {
		return ClassDocument
	}
	switch m.Kind {
	case bus.MediaPhoto:
		return ClassPhoto
	case bus.MediaVideo, bus.MediaAnimation, bus.MediaVideoNote:
		return ClassVideo
	}
	if strings.HasPrefix(strings.ToLower(m.MimeType), "video/") {
		return ClassVideo
	}
	return ClassDocument
}

// DeliveryBatch is one outbound batch call.
type DeliveryBatch struct {
	Class   MediaClass
	Items   []bus.InboundItem
	Caption string // only set on the first batch of a group
}

// Batcher partitions albums into platform-legal batches.
type Batcher struct {
	maxSize int
}

// NewBatcher creates a batcher chunking at maxSize (<= 0 or > MaxBatchSize = MaxBatchSize).
func NewBatcher(maxSize int) *Batcher {
	if maxSize <= 0 || maxSize > MaxBatchSize {
		maxSize = MaxBatchSize
	}
	return &Batcher{maxSize: maxSize}
}

// Caption returns the first non-empty text among the group's items.
// Whitespace-only text counts as a caption.
func (b *Batcher) Caption(group bus.MediaGroup) string {
	for _, it := range group.Items {
		if it.Text != "" {
			return it.Text
		}
	}
	return ""
}

// Partition drops items without media, buckets the rest by class in
// first-seen order and chunks each bucket. The result is deterministic for a
// given input order. Only the very first batch carries the caption.
func (b *Batcher) Partition(group bus.MediaGroup) []DeliveryBatch {
	var order []MediaClass
	buckets := make(map[MediaClass][]bus.InboundItem)
	for _, it := range group.Items {
		if !it.HasMedia() {
			continue
		}
		class := Classify(it.Media)
		if _, seen := buckets[class]; !seen {
			order = append(order, class)
		}
		buckets[class] = append(buckets[class], it)
	}

	var batches []DeliveryBatch
	for _, class := range order {
		items := buckets[class]
		for start := 0; start < len(items); start += b.maxSize {
			end := min(start+b.maxSize, len(items))
			batches = append(batches, DeliveryBatch{Class: class, Items: items[start:end:end]})
		}
	}
	if len(batches) > 0 {
		batches[0].Caption = b.Caption(group)
	}
	return batches
}
