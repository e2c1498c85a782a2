package telegram

import (
	"testing"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/tgrelay/internal/bus"
)

// --- describeMedia tests ---

func TestDescribeMedia(t *testing.T) {
	tests := []struct {
		name     string
		msg      *telego.Message
		wantKind bus.MediaKind
		wantFile string
	}{
		{
			name: "largest photo",
			msg: &telego.Message{Photo: []telego.PhotoSize{
				{FileID: "small", Width: 90},
				{FileID: "large", Width: 1280},
			}},
			wantKind: bus.MediaPhoto,
			wantFile: "large",
		},
		{
			name:     "video",
			msg:      &telego.Message{Video: &telego.Video{FileID: "v", MimeType: "video/mp4"}},
			wantKind: bus.MediaVideo,
			wantFile: "v",
		},
		{
			name: "animation wins over its document",
			msg: &telego.Message{
				Animation: &telego.Animation{FileID: "gif"},
				Document:  &telego.Document{FileID: "gif-doc"},
			},
			wantKind: bus.MediaAnimation,
			wantFile: "gif",
		},
		{
			name:     "audio",
			msg:      &telego.Message{Audio: &telego.Audio{FileID: "a"}},
			wantKind: bus.MediaAudio,
			wantFile: "a",
		},
		{
			name:     "voice",
			msg:      &telego.Message{Voice: &telego.Voice{FileID: "vo"}},
			wantKind: bus.MediaVoice,
			wantFile: "vo",
		},
		{
			name:     "video note",
			msg:      &telego.Message{VideoNote: &telego.VideoNote{FileID: "round"}},
			wantKind: bus.MediaVideoNote,
			wantFile: "round",
		},
		{
			name:     "document",
			msg:      &telego.Message{Document: &telego.Document{FileID: "d", FileName: "a.pdf"}},
			wantKind: bus.MediaDocument,
			wantFile: "d",
		},
		{
			name:     "sticker",
			msg:      &telego.Message{Sticker: &telego.Sticker{FileID: "s"}},
			wantKind: bus.MediaSticker,
			wantFile: "s",
		},
		{
			name:     "poll",
			msg:      &telego.Message{Poll: &telego.Poll{ID: "p"}},
			wantKind: bus.MediaOther,
		},
		{
			name:     "location",
			msg:      &telego.Message{Location: &telego.Location{Latitude: 1, Longitude: 2}},
			wantKind: bus.MediaOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := describeMedia(tt.msg)
			if got == nil {
				t.Fatal("describeMedia() = nil")
			}
			if got.Kind != tt.wantKind || got.FileID != tt.wantFile {
				t.Errorf("describeMedia() = %+v, want kind %q file %q", got, tt.wantKind, tt.wantFile)
			}
		})
	}

	if got := describeMedia(&telego.Message{Text: "hi"}); got != nil {
		t.Errorf("describeMedia(text) = %+v, want nil", got)
	}
}

// --- inputMediaFor tests ---

func TestInputMediaFor(t *testing.T) {
	tests := []struct {
		name  string
		media bus.MediaDescriptor
		want  string
	}{
		{"photo", bus.MediaDescriptor{Kind: bus.MediaPhoto, FileID: "f"}, "photo"},
		{"video", bus.MediaDescriptor{Kind: bus.MediaVideo, FileID: "f"}, "video"},
		{"video document", bus.MediaDescriptor{Kind: bus.MediaDocument, FileID: "f", MimeType: "video/mp4"}, "video"},
		{"audio", bus.MediaDescriptor{Kind: bus.MediaAudio, FileID: "f"}, "audio"},
		{"pdf", bus.MediaDescriptor{Kind: bus.MediaDocument, FileID: "f", MimeType: "application/pdf"}, "document"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			media := tt.media
			got := inputMediaFor(bus.InboundItem{Media: &media}, "cap", nil)
			if got.MediaType() != tt.want {
				t.Errorf("MediaType() = %q, want %q", got.MediaType(), tt.want)
			}
		})
	}
}

func TestInputMediaFor_CaptionAndFile(t *testing.T) {
	item := bus.InboundItem{Media: &bus.MediaDescriptor{Kind: bus.MediaPhoto, FileID: "abc"}}
	entities := []telego.MessageEntity{{Type: "bold", Offset: 0, Length: 3}}

	photo, ok := inputMediaFor(item, "cap", entities).(*telego.InputMediaPhoto)
	if !ok {
		t.Fatal("inputMediaFor(photo) is not *InputMediaPhoto")
	}
	if photo.Media.FileID != "abc" {
		t.Errorf("Media.FileID = %q, want abc", photo.Media.FileID)
	}
	if photo.Caption != "cap" || len(photo.CaptionEntities) != 1 {
		t.Errorf("caption = %q entities = %v", photo.Caption, photo.CaptionEntities)
	}
}

// --- captionEntities tests ---

func TestCaptionEntities(t *testing.T) {
	bold := []telego.MessageEntity{{Type: "bold", Offset: 0, Length: 4}}
	link := []telego.MessageEntity{{Type: "url", Offset: 0, Length: 19}}
	withCaption := itemFromMessage(&telego.Message{
		MessageID: 1, Chat: telego.Chat{ID: -1},
		Photo:           []telego.PhotoSize{{FileID: "p"}},
		Caption:         "Trip",
		CaptionEntities: bold,
	})
	withText := itemFromMessage(&telego.Message{
		MessageID: 2, Chat: telego.Chat{ID: -1},
		Text:      "https://example.com",
		Entities:  link,
	})

	if got := captionEntities("Trip", withText, withCaption); len(got) != 1 || got[0].Type != "bold" {
		t.Errorf("caption entities = %v, want bold", got)
	}
	if got := captionEntities("https://example.com", withText); len(got) != 1 || got[0].Type != "url" {
		t.Errorf("text entities = %v, want url", got)
	}
	if got := captionEntities("edited", withCaption); got != nil {
		t.Errorf("entities for foreign text = %v, want nil", got)
	}
	if got := captionEntities("", withCaption); got != nil {
		t.Errorf("entities for empty caption = %v, want nil", got)
	}
}
