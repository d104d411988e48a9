package telegram

import (
	"fmt"
	"time"

	"github.com/gotd/td/tg"

	"github.com/edgard/tgchanapi/internal/model"
)

// channelModel maps a Telegram channel entity onto the public schema.
func channelModel(ch *tg.Channel) model.Channel {
	out := model.Channel{
		ID:    ch.ID,
		Title: ch.Title,
	}
	if username, ok := ch.GetUsername(); ok && username != "" {
		out.Username = &username
	}
	if count, ok := ch.GetParticipantsCount(); ok {
		out.ParticipantsCount = &count
	}
	return out
}

// messageModel maps a Telegram message onto the public schema. When
// the message has no text but carries an attachment, the text becomes
// a placeholder naming the media kind.
func messageModel(msg *tg.Message, senders senderIndex) model.Message {
	out := model.Message{
		ID:   msg.ID,
		Date: time.Unix(int64(msg.Date), 0).UTC(),
		Text: msg.Message,
	}

	if media, ok := msg.GetMedia(); ok && out.Text == "" {
		if kind := mediaKind(media); kind != "" {
			out.Text = fmt.Sprintf("[Media: %s]", kind)
		}
	}

	if from, ok := msg.GetFromID(); ok {
		if sender, ok := senders.resolve(from); ok {
			id := sender.ID
			out.SenderID = &id
			if sender.Username != "" {
				username := sender.Username
				out.SenderUsername = &username
			}
		}
	}

	if views, ok := msg.GetViews(); ok {
		out.Views = &views
	}
	if forwards, ok := msg.GetForwards(); ok {
		out.Forwards = &forwards
	}

	return out
}

// mediaKind names the attachment kind for the placeholder text. An
// empty string means the message effectively has no media.
func mediaKind(media tg.MessageMediaClass) string {
	switch media.(type) {
	case *tg.MessageMediaEmpty:
		return ""
	case *tg.MessageMediaPhoto:
		return "Photo"
	case *tg.MessageMediaDocument:
		return "Document"
	case *tg.MessageMediaGeo:
		return "Geo"
	case *tg.MessageMediaGeoLive:
		return "GeoLive"
	case *tg.MessageMediaContact:
		return "Contact"
	case *tg.MessageMediaVenue:
		return "Venue"
	case *tg.MessageMediaGame:
		return "Game"
	case *tg.MessageMediaInvoice:
		return "Invoice"
	case *tg.MessageMediaPoll:
		return "Poll"
	case *tg.MessageMediaDice:
		return "Dice"
	case *tg.MessageMediaStory:
		return "Story"
	case *tg.MessageMediaWebPage:
		return "WebPage"
	case *tg.MessageMediaUnsupported:
		return "Unsupported"
	default:
		return "Media"
	}
}
