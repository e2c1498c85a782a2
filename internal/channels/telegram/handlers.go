package telegram

import (
	"log/slog"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/tgrelay/internal/album"
	"github.com/nextlevelbuilder/tgrelay/internal/bus"
	"github.com/nextlevelbuilder/tgrelay/internal/channels"
)

// handleUpdate converts an incoming update and publishes it. Groups and
// supergroups arrive as "message", channels as "channel_post".
func (c *Channel) handleUpdate(update telego.Update, msgBus *bus.MessageBus, albums *album.Assembler) {
	message := update.Message
	updateType := "message"
	if message == nil {
		message = update.ChannelPost
		updateType = "channel_post"
	}
	if message == nil {
		slog.Debug("telegram update skipped (no message)", "update_id", update.UpdateID)
		return
	}

	if !c.IsSource(message.Chat.ID) {
		return
	}

	// Skip service messages (member added/removed, title changed, etc.).
	if isServiceMessage(message) {
		slog.Debug("telegram service message skipped", "chat_id", message.Chat.ID, "message_id", message.MessageID)
		return
	}

	item := itemFromMessage(message)

	slog.Debug("telegram message received",
		"type", updateType,
		"chat_id", message.Chat.ID,
		"message_id", message.MessageID,
		"group_id", item.GroupID,
		"media", string(mediaKind(item)),
		"text_preview", channels.Truncate(item.Text, 60),
	)

	// The item event goes out first; the dispatcher drops it for grouped
	// messages once it sees the group id, and the assembled group follows.
	msgBus.PublishInbound(bus.ItemEvent(item))
	if item.IsGrouped() && albums != nil {
		albums.Add(item)
	}
}

// itemFromMessage converts a Telegram message into a relay item. The original
// message rides along as the payload so sends can reuse its entities.
func itemFromMessage(msg *telego.Message) bus.InboundItem {
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	return bus.InboundItem{
		SourceChat: bus.ChatHandle(msg.Chat.ID),
		ItemID:     msg.MessageID,
		GroupID:    msg.MediaGroupID,
		Text:       text,
		Media:      describeMedia(msg),
		Payload:    msg,
	}
}

func mediaKind(item bus.InboundItem) bus.MediaKind {
	if item.Media == nil {
		return bus.MediaNone
	}
	return item.Media.Kind
}

// messageOf returns the underlying Telegram message of an item, if any.
func messageOf(item bus.InboundItem) *telego.Message {
	msg, _ := item.Payload.(*telego.Message)
	return msg
}

// isServiceMessage returns true if the Telegram message is a service/system message
// (member added/removed, title changed, pinned, etc.) rather than a user-sent message.
// Service messages have no text, caption, or media content.
func isServiceMessage(msg *telego.Message) bool {
	if msg.Text != "" || msg.Caption != "" {
		return false
	}
	return describeMedia(msg) == nil
}
