// Package telegram owns the single authenticated MTProto session used
// by every request, and translates Telegram entities into the public
// schema. Authorization itself is performed out of band by the setup
// command; the serving process only verifies it at startup.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/edgard/tgchanapi/internal/config"
	"github.com/edgard/tgchanapi/internal/model"
	"github.com/edgard/tgchanapi/internal/peerstore"
)

// dialogPageSize is the batch size for dialog iteration. Telegram caps
// a single getDialogs response at 100 entries.
const dialogPageSize = 100

// historyPageSize is the per-request batch size for history retrieval.
// Telegram caps a single getHistory response at 100 messages, so
// larger limits are collected over several requests.
const historyPageSize = 100

// PageRequest carries pagination parameters forwarded verbatim to the
// upstream history iteration. Zero values mean "unset".
type PageRequest struct {
	Limit    int
	OffsetID int
	MinID    int
	MaxID    int
}

// PeerCache is the persisted entity cache consulted when a bare
// numeric channel ID must be turned into a full input peer.
type PeerCache interface {
	Upsert(ctx context.Context, peers []peerstore.Peer) error
	ChannelByID(ctx context.Context, id int64) (peerstore.Peer, error)
	ChannelByUsername(ctx context.Context, username string) (peerstore.Peer, error)
}

// Session maintains exactly one authenticated connection to Telegram
// for the process's lifetime. All request handlers share it; the
// underlying client multiplexes concurrent calls over the connection.
type Session struct {
	logger *slog.Logger
	client *telegram.Client
	peers  PeerCache

	api       *tg.Client
	connected atomic.Bool
	cancel    context.CancelFunc
	done      chan error
}

// NewSession creates a session for the credentials and session file in
// cfg. The connection is not established until Start is called.
func NewSession(logger *slog.Logger, cfg *config.Config, peers PeerCache) *Session {
	client := telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: &telegram.FileSessionStorage{Path: cfg.SessionFile},
	})
	return &Session{
		logger: logger.With("component", "telegram"),
		client: client,
		peers:  peers,
		done:   make(chan error, 1),
	}
}

// Start establishes the connection and verifies that the persisted
// session is authorized. It blocks until the session is usable, the
// client fails, or ctx expires. An unauthorized session is fatal.
func (s *Session) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	ready := make(chan struct{})

	go func() {
		s.done <- s.client.Run(runCtx, func(ctx context.Context) error {
			status, err := s.client.Auth().Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to query auth status: %w", err)
			}
			if !status.Authorized {
				return ErrNotAuthorized
			}

			s.api = s.client.API()
			s.connected.Store(true)
			defer s.connected.Store(false)
			close(ready)

			<-ctx.Done()
			return ctx.Err()
		})
	}()

	select {
	case <-ready:
		if self, err := s.client.Self(ctx); err == nil {
			username, _ := self.GetUsername()
			s.logger.Info("Telegram session established",
				"user_id", self.ID, "username", username)
		}
		return nil
	case err := <-s.done:
		cancel()
		if err == nil {
			err = errors.New("telegram client stopped during startup")
		}
		return err
	case <-ctx.Done():
		cancel()
		<-s.done
		return fmt.Errorf("timed out waiting for telegram connection: %w", ctx.Err())
	}
}

// Stop releases the connection. Best effort: shutdown failures are
// returned for logging but the session is gone either way.
func (s *Session) Stop() error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	err := <-s.done
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Done reports the termination of the client run loop. It yields at
// most one error; Stop consumes it when shutdown is orderly.
func (s *Session) Done() <-chan error {
	return s.done
}

// Connected reports whether the session is currently live. Used by the
// health endpoint.
func (s *Session) Connected() bool {
	return s.connected.Load()
}

// Channels returns every channel-type dialog visible to the account,
// in the order the upstream iteration yields them. Direct chats and
// basic groups are skipped. Discovered channels are persisted to the
// peer cache as a side effect.
func (s *Session) Channels(ctx context.Context) ([]model.Channel, error) {
	channels := make([]model.Channel, 0, dialogPageSize)
	seen := make(map[int64]struct{})

	err := s.walkDialogs(ctx, func(page tg.ModifiedMessagesDialogs) {
		byID := channelIndex(page.GetChats())
		for _, dc := range page.GetDialogs() {
			dialog, ok := dc.(*tg.Dialog)
			if !ok {
				continue
			}
			peer, ok := dialog.Peer.(*tg.PeerChannel)
			if !ok {
				continue
			}
			ch, ok := byID[peer.ChannelID]
			if !ok {
				continue
			}
			if _, dup := seen[ch.ID]; dup {
				continue
			}
			seen[ch.ID] = struct{}{}
			channels = append(channels, channelModel(ch))
		}
	})
	if err != nil {
		return nil, err
	}
	return channels, nil
}

// RefreshDialogs walks the account's dialogs and refreshes the peer
// cache. It returns the number of channels seen. The scheduler runs it
// periodically so by-ID resolution rarely needs an inline rescan.
func (s *Session) RefreshDialogs(ctx context.Context) (int, error) {
	count := 0
	err := s.walkDialogs(ctx, func(page tg.ModifiedMessagesDialogs) {
		count += len(channelIndex(page.GetChats()))
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ChannelMessages returns up to page.Limit messages from the channel
// with the given numeric ID, newest first (upstream order).
func (s *Session) ChannelMessages(ctx context.Context, channelID int64, page PageRequest) ([]model.Message, error) {
	peer, err := s.resolveChannelID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return s.history(ctx, peer, page)
}

// ChannelMessagesByUsername returns up to page.Limit messages from the
// channel with the given public username (without the @).
func (s *Session) ChannelMessagesByUsername(ctx context.Context, username string, page PageRequest) ([]model.Message, error) {
	peer, err := s.resolveUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.history(ctx, peer, page)
}

// history fetches a bounded, eagerly-materialized window of messages.
// min/max/offset parameters are forwarded verbatim; the upstream
// applies the windowing and ordering. Telegram caps one getHistory
// response at historyPageSize messages, so limits above that are
// collected over several requests, advancing the offset past the last
// message of each page.
func (s *Session) history(ctx context.Context, peer tg.InputPeerClass, page PageRequest) ([]model.Message, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = historyPageSize
	}

	out := make([]model.Message, 0, min(limit, historyPageSize))
	offsetID := page.OffsetID

	for len(out) < limit {
		batch := min(limit-len(out), historyPageSize)
		res, err := s.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:     peer,
			Limit:    batch,
			OffsetID: offsetID,
			MinID:    page.MinID,
			MaxID:    page.MaxID,
		})
		if err != nil {
			return nil, classifyFlood(err)
		}

		modified, ok := res.AsModified()
		if !ok {
			break
		}
		raw := modified.GetMessages()
		if len(raw) == 0 {
			break
		}

		senders := newSenderIndex(modified.GetUsers(), modified.GetChats())
		for _, mc := range raw {
			// Service messages and deleted-message holes carry no text or
			// media and are not part of the public schema.
			msg, ok := mc.(*tg.Message)
			if !ok {
				continue
			}
			out = append(out, messageModel(msg, senders))
			if len(out) == limit {
				break
			}
		}

		offsetID = raw[len(raw)-1].GetID()
		if len(raw) < batch {
			break
		}
	}
	return out, nil
}

// resolveChannelID turns a bare numeric channel ID into an input peer.
// The peer cache is consulted first; on a miss the dialogs are
// rescanned once (repopulating the cache) before giving up.
func (s *Session) resolveChannelID(ctx context.Context, channelID int64) (tg.InputPeerClass, error) {
	peer, err := s.peers.ChannelByID(ctx, channelID)
	if errors.Is(err, peerstore.ErrNotFound) {
		if _, rescanErr := s.RefreshDialogs(ctx); rescanErr != nil {
			return nil, rescanErr
		}
		peer, err = s.peers.ChannelByID(ctx, channelID)
		if errors.Is(err, peerstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: no channel with id %d", ErrNotFound, channelID)
		}
	}
	if err != nil {
		return nil, err
	}
	return &tg.InputPeerChannel{ChannelID: peer.ID, AccessHash: peer.AccessHash}, nil
}

// resolveUsername turns a public handle into an input peer, consulting
// the cache before asking Telegram. Only channels are accepted.
func (s *Session) resolveUsername(ctx context.Context, username string) (tg.InputPeerClass, error) {
	if cached, err := s.peers.ChannelByUsername(ctx, username); err == nil {
		return &tg.InputPeerChannel{ChannelID: cached.ID, AccessHash: cached.AccessHash}, nil
	} else if !errors.Is(err, peerstore.ErrNotFound) {
		return nil, err
	}

	res, err := s.api.ContactsResolveUsername(ctx, username)
	if err != nil {
		if tgerr.Is(err, "USERNAME_NOT_OCCUPIED", "USERNAME_INVALID") {
			return nil, fmt.Errorf("%w: no channel with username %q", ErrNotFound, username)
		}
		return nil, classifyFlood(err)
	}

	peer, ok := res.Peer.(*tg.PeerChannel)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a channel", ErrNotFound, username)
	}
	ch, ok := channelIndex(res.Chats)[peer.ChannelID]
	if !ok {
		return nil, fmt.Errorf("%w: no channel with username %q", ErrNotFound, username)
	}

	s.cacheChannels(ctx, []*tg.Channel{ch})

	hash, _ := ch.GetAccessHash()
	return &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: hash}, nil
}

// walkDialogs pages through the account's dialog list, calling visit
// for each page and persisting every channel it sees.
func (s *Session) walkDialogs(ctx context.Context, visit func(page tg.ModifiedMessagesDialogs)) error {
	req := &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      dialogPageSize,
	}
	for {
		res, err := s.api.MessagesGetDialogs(ctx, req)
		if err != nil {
			return classifyFlood(err)
		}
		page, ok := res.AsModified()
		if !ok {
			return nil
		}

		byID := channelIndex(page.GetChats())
		found := make([]*tg.Channel, 0, len(byID))
		for _, ch := range byID {
			found = append(found, ch)
		}
		s.cacheChannels(ctx, found)

		visit(page)

		dialogs := page.GetDialogs()
		if _, complete := res.(*tg.MessagesDialogs); complete || len(dialogs) < dialogPageSize {
			return nil
		}
		offsetPeer, offsetID, offsetDate, ok := nextDialogOffset(page)
		if !ok {
			return nil
		}
		req.OffsetPeer = offsetPeer
		req.OffsetID = offsetID
		req.OffsetDate = offsetDate
	}
}

// cacheChannels persists channels to the peer cache. Failures are
// logged, not propagated: the cache is an optimization, not a source
// of truth for the current request.
func (s *Session) cacheChannels(ctx context.Context, channels []*tg.Channel) {
	if len(channels) == 0 {
		return
	}
	peers := make([]peerstore.Peer, 0, len(channels))
	for _, ch := range channels {
		hash, ok := ch.GetAccessHash()
		if !ok {
			continue
		}
		username, _ := ch.GetUsername()
		peers = append(peers, peerstore.Peer{
			ID:         ch.ID,
			AccessHash: hash,
			Kind:       peerstore.KindChannel,
			Username:   username,
			Title:      ch.Title,
		})
	}
	if err := s.peers.Upsert(ctx, peers); err != nil {
		s.logger.Warn("Failed to persist peers", "error", err, "count", len(peers))
	}
}

// nextDialogOffset computes the getDialogs offset triple pointing past
// the last dialog of the current page.
func nextDialogOffset(page tg.ModifiedMessagesDialogs) (tg.InputPeerClass, int, int, bool) {
	dialogs := page.GetDialogs()
	var last *tg.Dialog
	for i := len(dialogs) - 1; i >= 0; i-- {
		if d, ok := dialogs[i].(*tg.Dialog); ok {
			last = d
			break
		}
	}
	if last == nil {
		return nil, 0, 0, false
	}

	offsetDate := 0
	for _, mc := range page.GetMessages() {
		if mc.GetID() != last.TopMessage {
			continue
		}
		switch msg := mc.(type) {
		case *tg.Message:
			offsetDate = msg.Date
		case *tg.MessageService:
			offsetDate = msg.Date
		}
		break
	}

	peer, ok := inputPeerFor(last.Peer, page.GetChats(), page.GetUsers())
	if !ok {
		return nil, 0, 0, false
	}
	return peer, last.TopMessage, offsetDate, true
}

// inputPeerFor builds an input peer for a raw peer reference using the
// access hashes shipped with the page.
func inputPeerFor(p tg.PeerClass, chats []tg.ChatClass, users []tg.UserClass) (tg.InputPeerClass, bool) {
	switch peer := p.(type) {
	case *tg.PeerChannel:
		for _, cc := range chats {
			if ch, ok := cc.(*tg.Channel); ok && ch.ID == peer.ChannelID {
				hash, _ := ch.GetAccessHash()
				return &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: hash}, true
			}
		}
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: peer.ChatID}, true
	case *tg.PeerUser:
		for _, uc := range users {
			if u, ok := uc.(*tg.User); ok && u.ID == peer.UserID {
				hash, _ := u.GetAccessHash()
				return &tg.InputPeerUser{UserID: u.ID, AccessHash: hash}, true
			}
		}
	}
	return nil, false
}

// channelIndex indexes the channel entities of a chat list by ID.
func channelIndex(chats []tg.ChatClass) map[int64]*tg.Channel {
	byID := make(map[int64]*tg.Channel, len(chats))
	for _, cc := range chats {
		if ch, ok := cc.(*tg.Channel); ok {
			byID[ch.ID] = ch
		}
	}
	return byID
}
