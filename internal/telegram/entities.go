package telegram

import "github.com/gotd/td/tg"

// PeerKind is a closed set of Telegram entity kinds. Entities are
// decoded into this tagged form once, at the session boundary, so the
// mapping layer never type-switches on raw TL classes.
type PeerKind string

const (
	KindChannel PeerKind = "channel"
	KindUser    PeerKind = "user"
	KindChat    PeerKind = "chat"
)

// Sender is the decoded originator of a message. Only user and
// channel senders carry identity into the public schema; basic-group
// senders are decoded but dropped by the mapping layer.
type Sender struct {
	Kind     PeerKind
	ID       int64
	Username string
}

// senderIndex resolves message FromID peers against the users and
// chats returned alongside a history or dialog page.
type senderIndex struct {
	users    map[int64]*tg.User
	channels map[int64]*tg.Channel
}

func newSenderIndex(users []tg.UserClass, chats []tg.ChatClass) senderIndex {
	ix := senderIndex{
		users:    make(map[int64]*tg.User, len(users)),
		channels: make(map[int64]*tg.Channel, len(chats)),
	}
	for _, uc := range users {
		if u, ok := uc.(*tg.User); ok {
			ix.users[u.ID] = u
		}
	}
	for _, cc := range chats {
		if ch, ok := cc.(*tg.Channel); ok {
			ix.channels[ch.ID] = ch
		}
	}
	return ix
}

// resolve decodes a raw peer into a Sender. It returns false when the
// peer is absent from the page entities or is a basic group, in which
// case the public schema omits the sender fields.
func (ix senderIndex) resolve(p tg.PeerClass) (Sender, bool) {
	switch peer := p.(type) {
	case *tg.PeerUser:
		u, ok := ix.users[peer.UserID]
		if !ok {
			return Sender{}, false
		}
		s := Sender{Kind: KindUser, ID: u.ID}
		s.Username, _ = u.GetUsername()
		return s, true
	case *tg.PeerChannel:
		ch, ok := ix.channels[peer.ChannelID]
		if !ok {
			return Sender{}, false
		}
		s := Sender{Kind: KindChannel, ID: ch.ID}
		s.Username, _ = ch.GetUsername()
		return s, true
	default:
		// Basic groups (tg.PeerChat) carry no sender identity in the
		// public schema.
		return Sender{}, false
	}
}
