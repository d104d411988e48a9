package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/tgchanapi/internal/config"
	"github.com/edgard/tgchanapi/internal/metrics"
	"github.com/edgard/tgchanapi/internal/model"
	"github.com/edgard/tgchanapi/internal/telegram"
)

// fakeTelegram is a scriptable session standing in for the upstream.
type fakeTelegram struct {
	connected bool

	channels    []model.Channel
	channelsErr error

	messages    []model.Message
	messagesErr error

	calls        int
	gotChannelID int64
	gotUsername  string
	gotPage      telegram.PageRequest
}

func (f *fakeTelegram) Connected() bool { return f.connected }

func (f *fakeTelegram) Channels(context.Context) ([]model.Channel, error) {
	f.calls++
	return f.channels, f.channelsErr
}

func (f *fakeTelegram) ChannelMessages(_ context.Context, channelID int64, page telegram.PageRequest) ([]model.Message, error) {
	f.calls++
	f.gotChannelID = channelID
	f.gotPage = page
	return f.limited(page)
}

func (f *fakeTelegram) ChannelMessagesByUsername(_ context.Context, username string, page telegram.PageRequest) ([]model.Message, error) {
	f.calls++
	f.gotUsername = username
	f.gotPage = page
	return f.limited(page)
}

func (f *fakeTelegram) limited(page telegram.PageRequest) ([]model.Message, error) {
	if f.messagesErr != nil {
		return nil, f.messagesErr
	}
	if f.messages == nil {
		return []model.Message{}, nil
	}
	if page.Limit > 0 && len(f.messages) > page.Limit {
		return f.messages[:page.Limit], nil
	}
	return f.messages, nil
}

func newTestServer(t *testing.T, fake *fakeTelegram) *httptest.Server {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(log, config.ServerConfig{
		Addr:         ":0",
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}, fake, metrics.New())

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, ts *httptest.Server, path string) (*http.Response, []byte) {
	t.Helper()

	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, body
}

func detail(t *testing.T, body []byte) string {
	t.Helper()

	var payload struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	return payload.Detail
}

func TestRootEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &fakeTelegram{connected: true})
	resp, body := get(t, ts, "/")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var payload map[string]string
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, ServiceName, payload["message"])
	assert.Equal(t, Version, payload["version"])
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		connected bool
		status    string
	}{
		{name: "connected", connected: true, status: "healthy"},
		{name: "disconnected", connected: false, status: "degraded"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ts := newTestServer(t, &fakeTelegram{connected: tc.connected})
			resp, body := get(t, ts, "/health")

			assert.Equal(t, http.StatusOK, resp.StatusCode)

			var payload struct {
				Status    string `json:"status"`
				Connected bool   `json:"connected"`
			}
			require.NoError(t, json.Unmarshal(body, &payload))
			assert.Equal(t, tc.status, payload.Status)
			assert.Equal(t, tc.connected, payload.Connected)
		})
	}
}

func TestListChannels(t *testing.T) {
	t.Parallel()

	username := "newsch"
	count := 5000
	fake := &fakeTelegram{
		connected: true,
		channels: []model.Channel{
			{ID: 100, Title: "News", Username: &username, ParticipantsCount: &count},
		},
	}

	ts := newTestServer(t, fake)
	resp, body := get(t, ts, "/channels")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t,
		`[{"id":100,"title":"News","username":"newsch","participants_count":5000}]`,
		string(body))
}

func TestListChannelsUpstreamFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeTelegram{channelsErr: fmt.Errorf("connection dropped")}

	ts := newTestServer(t, fake)
	resp, body := get(t, ts, "/channels")

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Error listing channels: connection dropped", detail(t, body))
}

func TestMessagesByID(t *testing.T) {
	t.Parallel()

	t.Run("default limit forwarded", func(t *testing.T) {
		t.Parallel()

		fake := &fakeTelegram{connected: true}
		ts := newTestServer(t, fake)

		resp, body := get(t, ts, "/channels/100/messages")

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, int64(100), fake.gotChannelID)
		assert.Equal(t, telegram.PageRequest{Limit: 50}, fake.gotPage)
		assert.JSONEq(t, `[]`, string(body))
	})

	t.Run("pagination parameters forwarded verbatim", func(t *testing.T) {
		t.Parallel()

		fake := &fakeTelegram{connected: true}
		ts := newTestServer(t, fake)

		resp, _ := get(t, ts, "/channels/100/messages?limit=10&offset_id=900&min_id=100&max_id=1000")

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, telegram.PageRequest{Limit: 10, OffsetID: 900, MinID: 100, MaxID: 1000}, fake.gotPage)
	})

	t.Run("limit caps the result in upstream order", func(t *testing.T) {
		t.Parallel()

		fake := &fakeTelegram{connected: true}
		for i := 5; i >= 1; i-- {
			fake.messages = append(fake.messages, model.Message{
				ID:   i,
				Date: time.Unix(1700000000, 0).UTC(),
				Text: fmt.Sprintf("message %d", i),
			})
		}
		ts := newTestServer(t, fake)

		resp, body := get(t, ts, "/channels/100/messages?limit=2")

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var messages []model.Message
		require.NoError(t, json.Unmarshal(body, &messages))
		require.Len(t, messages, 2)
		assert.Equal(t, 5, messages[0].ID)
		assert.Equal(t, 4, messages[1].ID)
	})

	t.Run("limit bounds rejected before upstream call", func(t *testing.T) {
		t.Parallel()

		for _, limit := range []string{"0", "1001", "-5", "abc"} {
			fake := &fakeTelegram{connected: true}
			ts := newTestServer(t, fake)

			resp, _ := get(t, ts, "/channels/100/messages?limit="+limit)

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "limit=%s", limit)
			assert.Zero(t, fake.calls, "limit=%s must not reach upstream", limit)
		}
	})

	t.Run("marked channel id normalized to the bare id", func(t *testing.T) {
		t.Parallel()

		fake := &fakeTelegram{connected: true}
		ts := newTestServer(t, fake)

		resp, _ := get(t, ts, "/channels/-1001234567890/messages")

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, int64(1234567890), fake.gotChannelID)
	})

	t.Run("negative id without the channel mark rejected", func(t *testing.T) {
		t.Parallel()

		fake := &fakeTelegram{connected: true}
		ts := newTestServer(t, fake)

		resp, _ := get(t, ts, "/channels/-123/messages")

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Zero(t, fake.calls)
	})

	t.Run("negative pagination ids forwarded verbatim", func(t *testing.T) {
		t.Parallel()

		fake := &fakeTelegram{connected: true}
		ts := newTestServer(t, fake)

		resp, _ := get(t, ts, "/channels/100/messages?offset_id=-1&min_id=-2&max_id=-3")

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, telegram.PageRequest{Limit: 50, OffsetID: -1, MinID: -2, MaxID: -3}, fake.gotPage)
	})

	t.Run("non-numeric channel id rejected", func(t *testing.T) {
		t.Parallel()

		fake := &fakeTelegram{connected: true}
		ts := newTestServer(t, fake)

		resp, _ := get(t, ts, "/channels/notanumber/messages")

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Zero(t, fake.calls)
	})

	t.Run("unknown channel yields not found", func(t *testing.T) {
		t.Parallel()

		fake := &fakeTelegram{
			connected:   true,
			messagesErr: fmt.Errorf("%w: no channel with id 100", telegram.ErrNotFound),
		}
		ts := newTestServer(t, fake)

		resp, body := get(t, ts, "/channels/100/messages")

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Contains(t, detail(t, body), "Channel not found")
	})

	t.Run("flood wait yields rate limited with wait seconds", func(t *testing.T) {
		t.Parallel()

		fake := &fakeTelegram{
			connected:   true,
			messagesErr: &telegram.FloodWaitError{Wait: 13 * time.Second},
		}
		ts := newTestServer(t, fake)

		resp, body := get(t, ts, "/channels/100/messages")

		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.Equal(t, "13", resp.Header.Get("Retry-After"))
		assert.Equal(t, "Rate limited. Wait 13 seconds", detail(t, body))
	})

	t.Run("other upstream failures collapse to server error", func(t *testing.T) {
		t.Parallel()

		fake := &fakeTelegram{
			connected:   true,
			messagesErr: fmt.Errorf("RPC_CALL_FAIL"),
		}
		ts := newTestServer(t, fake)

		resp, body := get(t, ts, "/channels/100/messages")

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "Error retrieving messages: RPC_CALL_FAIL", detail(t, body))
	})
}

func TestMessagesByUsername(t *testing.T) {
	t.Parallel()

	t.Run("handle forwarded", func(t *testing.T) {
		t.Parallel()

		fake := &fakeTelegram{connected: true}
		ts := newTestServer(t, fake)

		resp, _ := get(t, ts, "/channels/by-username/newsch/messages?limit=7")

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "newsch", fake.gotUsername)
		assert.Equal(t, telegram.PageRequest{Limit: 7}, fake.gotPage)
	})

	t.Run("unknown handle yields not found", func(t *testing.T) {
		t.Parallel()

		fake := &fakeTelegram{
			connected:   true,
			messagesErr: fmt.Errorf("%w: no channel with username %q", telegram.ErrNotFound, "ghost"),
		}
		ts := newTestServer(t, fake)

		resp, body := get(t, ts, "/channels/by-username/ghost/messages")

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Contains(t, detail(t, body), "ghost")
	})

	t.Run("invalid limit rejected before upstream call", func(t *testing.T) {
		t.Parallel()

		fake := &fakeTelegram{connected: true}
		ts := newTestServer(t, fake)

		resp, _ := get(t, ts, "/channels/by-username/newsch/messages?limit=2000")

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Zero(t, fake.calls)
	})
}

func TestOptionalFieldsSerializeAsNull(t *testing.T) {
	t.Parallel()

	fake := &fakeTelegram{
		connected: true,
		channels:  []model.Channel{{ID: 7, Title: "Private"}},
	}
	ts := newTestServer(t, fake)

	_, body := get(t, ts, "/channels")

	assert.JSONEq(t, `[{"id":7,"title":"Private","username":null,"participants_count":null}]`, string(body))
}
