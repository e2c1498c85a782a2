package telegram

import (
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/tgrelay/internal/bus"
	"github.com/nextlevelbuilder/tgrelay/internal/relay"
)

// describeMedia extracts the attachment of a message, or nil for plain text.
// Copies go out by file_id, so nothing is downloaded.
func describeMedia(msg *telego.Message) *bus.MediaDescriptor {
	switch {
	case len(msg.Photo) > 0:
		// Photo: take highest resolution (last element)
		photo := msg.Photo[len(msg.Photo)-1]
		return &bus.MediaDescriptor{
			Kind:     bus.MediaPhoto,
			FileID:   photo.FileID,
			MimeType: "image/jpeg",
			FileSize: int64(photo.FileSize),
		}

	case msg.Video != nil:
		return &bus.MediaDescriptor{
			Kind:     bus.MediaVideo,
			FileID:   msg.Video.FileID,
			MimeType: msg.Video.MimeType,
			FileName: msg.Video.FileName,
			FileSize: int64(msg.Video.FileSize),
		}

	// Animations also carry a Document; check them first.
	case msg.Animation != nil:
		return &bus.MediaDescriptor{
			Kind:     bus.MediaAnimation,
			FileID:   msg.Animation.FileID,
			MimeType: msg.Animation.MimeType,
			FileName: msg.Animation.FileName,
			FileSize: int64(msg.Animation.FileSize),
		}

	case msg.Audio != nil:
		return &bus.MediaDescriptor{
			Kind:     bus.MediaAudio,
			FileID:   msg.Audio.FileID,
			MimeType: msg.Audio.MimeType,
			FileName: msg.Audio.FileName,
			FileSize: int64(msg.Audio.FileSize),
		}

	case msg.Voice != nil:
		return &bus.MediaDescriptor{
			Kind:     bus.MediaVoice,
			FileID:   msg.Voice.FileID,
			MimeType: msg.Voice.MimeType,
			FileSize: int64(msg.Voice.FileSize),
		}

	// Video Note (round video)
	case msg.VideoNote != nil:
		return &bus.MediaDescriptor{
			Kind:     bus.MediaVideoNote,
			FileID:   msg.VideoNote.FileID,
			MimeType: "video/mp4",
			FileSize: int64(msg.VideoNote.FileSize),
		}

	case msg.Document != nil:
		return &bus.MediaDescriptor{
			Kind:     bus.MediaDocument,
			FileID:   msg.Document.FileID,
			MimeType: msg.Document.MimeType,
			FileName: msg.Document.FileName,
			FileSize: int64(msg.Document.FileSize),
		}

	case msg.Sticker != nil:
		return &bus.MediaDescriptor{
			Kind:     bus.MediaSticker,
			FileID:   msg.Sticker.FileID,
			FileSize: int64(msg.Sticker.FileSize),
		}

	// No file behind these; they can only be copied server-side.
	case msg.Poll != nil || msg.Location != nil || msg.Venue != nil ||
		msg.Contact != nil || msg.Dice != nil:
		return &bus.MediaDescriptor{Kind: bus.MediaOther}
	}
	return nil
}

// inputMediaFor maps an item to its sendMediaGroup entry. Video-class
// documents go out as videos so they can share a batch with real videos.
func inputMediaFor(item bus.InboundItem, caption string, entities []telego.MessageEntity) telego.InputMedia {
	file := tu.FileFromID(item.Media.FileID)

	switch {
	case item.Media.Kind == bus.MediaPhoto:
		m := tu.MediaPhoto(file)
		m.Caption, m.CaptionEntities = caption, entities
		return m
	case relay.Classify(item.Media) == relay.ClassVideo:
		m := tu.MediaVideo(file)
		m.Caption, m.CaptionEntities = caption, entities
		return m
	case item.Media.Kind == bus.MediaAudio:
		m := tu.MediaAudio(file)
		m.Caption, m.CaptionEntities = caption, entities
		return m
	default:
		m := tu.MediaDocument(file)
		m.Caption, m.CaptionEntities = caption, entities
		return m
	}
}

// captionEntities returns the formatting of caption when it is unchanged
// text of one of items. Entity offsets are meaningless on any other text.
func captionEntities(caption string, items ...bus.InboundItem) []telego.MessageEntity {
	if caption == "" {
		return nil
	}
	for _, it := range items {
		msg := messageOf(it)
		if msg == nil {
			continue
		}
		switch caption {
		case msg.Caption:
			return msg.CaptionEntities
		case msg.Text:
			return msg.Entities
		}
	}
	return nil
}
