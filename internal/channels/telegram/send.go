package telegram

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/tgrelay/internal/bus"
	"github.com/nextlevelbuilder/tgrelay/internal/relay"
)

var errNoMedia = errors.New("item has no media")

// SendText sends a text-only message. Link previews follow linkPreview.
func (c *Channel) SendText(ctx context.Context, dest bus.ChatHandle, item bus.InboundItem, linkPreview bool) error {
	if err := c.limiter.Wait(ctx, int64(dest), 1); err != nil {
		return err
	}
	params := tu.Message(tu.ID(int64(dest)), item.Text)
	params.Entities = captionEntities(item.Text, item)
	params.LinkPreviewOptions = &telego.LinkPreviewOptions{IsDisabled: !linkPreview}
	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	return nil
}

// SendMedia re-sends one attachment by file_id with caption.
func (c *Channel) SendMedia(ctx context.Context, dest bus.ChatHandle, item bus.InboundItem, caption string) error {
	if item.Media == nil {
		return errNoMedia
	}
	if err := c.limiter.Wait(ctx, int64(dest), 1); err != nil {
		return err
	}

	chat := tu.ID(int64(dest))
	file := tu.FileFromID(item.Media.FileID)
	entities := captionEntities(caption, item)

	var method string
	var err error
	// Video notes and stickers cannot carry a caption; it follows as text.
	var trailing string
	switch item.Media.Kind {
	case bus.MediaPhoto:
		method = "sendPhoto"
		p := tu.Photo(chat, file)
		p.Caption, p.CaptionEntities = caption, entities
		_, err = c.bot.SendPhoto(ctx, p)
	case bus.MediaVideo:
		method = "sendVideo"
		p := tu.Video(chat, file)
		p.Caption, p.CaptionEntities = caption, entities
		_, err = c.bot.SendVideo(ctx, p)
	case bus.MediaAnimation:
		method = "sendAnimation"
		p := tu.Animation(chat, file)
		p.Caption, p.CaptionEntities = caption, entities
		_, err = c.bot.SendAnimation(ctx, p)
	case bus.MediaAudio:
		method = "sendAudio"
		p := tu.Audio(chat, file)
		p.Caption, p.CaptionEntities = caption, entities
		_, err = c.bot.SendAudio(ctx, p)
	case bus.MediaVoice:
		method = "sendVoice"
		p := tu.Voice(chat, file)
		p.Caption, p.CaptionEntities = caption, entities
		_, err = c.bot.SendVoice(ctx, p)
	case bus.MediaVideoNote:
		method = "sendVideoNote"
		_, err = c.bot.SendVideoNote(ctx, tu.VideoNote(chat, file))
		trailing = caption
	case bus.MediaSticker:
		method = "sendSticker"
		_, err = c.bot.SendSticker(ctx, tu.Sticker(chat, file))
		trailing = caption
	case bus.MediaOther:
		method = "copyMessage"
		_, err = c.bot.CopyMessage(ctx, tu.CopyMessage(chat, tu.ID(int64(item.SourceChat)), item.ItemID))
	default:
		method = "sendDocument"
		p := tu.Document(chat, file)
		p.Caption, p.CaptionEntities = caption, entities
		_, err = c.bot.SendDocument(ctx, p)
	}
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}

	if trailing != "" {
		follow := item
		follow.Text = trailing
		return c.SendText(ctx, dest, follow, false)
	}
	return nil
}

// SendBatch sends items as one media group with caption on the first entry.
// A lone item goes through SendMedia, since sendMediaGroup needs at least two.
func (c *Channel) SendBatch(ctx context.Context, dest bus.ChatHandle, items []bus.InboundItem, caption string) error {
	if len(items) < relay.MinBatchSize {
		if len(items) == 0 {
			return nil
		}
		return c.SendMedia(ctx, dest, items[0], caption)
	}

	entities := captionEntities(caption, items...)
	media := make([]telego.InputMedia, 0, len(items))
	for i, it := range items {
		if it.Media == nil {
			return fmt.Errorf("batch item %d: %w", it.ItemID, errNoMedia)
		}
		if i == 0 {
			media = append(media, inputMediaFor(it, caption, entities))
			continue
		}
		media = append(media, inputMediaFor(it, "", nil))
	}

	if err := c.limiter.Wait(ctx, int64(dest), len(media)); err != nil {
		return err
	}
	if _, err := c.bot.SendMediaGroup(ctx, tu.MediaGroup(tu.ID(int64(dest)), media...)); err != nil {
		return fmt.Errorf("telegram sendMediaGroup: %w", err)
	}
	return nil
}

// ForwardMessage natively forwards one message.
func (c *Channel) ForwardMessage(ctx context.Context, dest bus.ChatHandle, item bus.InboundItem) error {
	if err := c.limiter.Wait(ctx, int64(dest), 1); err != nil {
		return err
	}
	params := &telego.ForwardMessageParams{
		ChatID:     tu.ID(int64(dest)),
		FromChatID: tu.ID(int64(item.SourceChat)),
		MessageID:  item.ItemID,
	}
	if _, err := c.bot.ForwardMessage(ctx, params); err != nil {
		return fmt.Errorf("telegram forwardMessage: %w", err)
	}
	return nil
}

// ForwardGroup forwards a whole album in one call. Telegram keeps the
// grouping when the ids are ascending.
func (c *Channel) ForwardGroup(ctx context.Context, dest bus.ChatHandle, group bus.MediaGroup) error {
	ids := group.ItemIDs()
	slices.Sort(ids)
	if len(ids) == 0 {
		return nil
	}
	if err := c.limiter.Wait(ctx, int64(dest), len(ids)); err != nil {
		return err
	}
	params := &telego.ForwardMessagesParams{
		ChatID:     tu.ID(int64(dest)),
		FromChatID: tu.ID(int64(group.SourceChat)),
		MessageIDs: ids,
	}
	if _, err := c.bot.ForwardMessages(ctx, params); err != nil {
		return fmt.Errorf("telegram forwardMessages: %w", err)
	}
	return nil
}
