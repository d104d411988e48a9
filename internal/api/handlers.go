package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/edgard/tgchanapi/internal/telegram"
)

const defaultLimit = 50

// channelIDOffset is the magnitude added to a bare channel ID in the
// "marked" form used by the Bot API and by telethon-style clients:
// channel 1234567890 is marked as -1001234567890.
const channelIDOffset = 1_000_000_000_000

var validate = validator.New()

// messagesParams are the pagination query parameters shared by both
// message endpoints. The limit bounds are enforced before any upstream
// call; the ID parameters are forwarded verbatim.
type messagesParams struct {
	Limit    int `validate:"min=1,max=1000"`
	OffsetID int
	MinID    int
	MaxID    int
}

func (p messagesParams) page() telegram.PageRequest {
	return telegram.PageRequest{
		Limit:    p.Limit,
		OffsetID: p.OffsetID,
		MinID:    p.MinID,
		MaxID:    p.MaxID,
	}
}

func parseMessagesParams(q url.Values) (messagesParams, error) {
	p := messagesParams{Limit: defaultLimit}

	for _, field := range []struct {
		name string
		dst  *int
	}{
		{"limit", &p.Limit},
		{"offset_id", &p.OffsetID},
		{"min_id", &p.MinID},
		{"max_id", &p.MaxID},
	} {
		raw := q.Get(field.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return p, fmt.Errorf("invalid %s: %q is not an integer", field.name, raw)
		}
		*field.dst = v
	}

	if err := validate.Struct(p); err != nil {
		return p, fmt.Errorf("invalid pagination parameters: limit must be 1-1000")
	}
	return p, nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": ServiceName,
		"version": Version,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if !s.tg.Connected() {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"connected": s.tg.Connected(),
	})
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.tg.Channels(r.Context())
	if err != nil {
		s.writeUpstreamError(w, r, err, "Error listing channels")
		return
	}
	writeJSON(w, http.StatusOK, channels)
}

func (s *Server) handleMessagesByID(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err == nil && channelID < -channelIDOffset {
		channelID = -channelID - channelIDOffset
	}
	if err != nil || channelID <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid channel id: %q", r.PathValue("id")))
		return
	}

	params, err := parseMessagesParams(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	messages, err := s.tg.ChannelMessages(r.Context(), channelID, params.page())
	if err != nil {
		s.writeUpstreamError(w, r, err, "Error retrieving messages")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleMessagesByUsername(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("name")
	if username == "" {
		writeError(w, http.StatusBadRequest, "Invalid channel username")
		return
	}

	params, err := parseMessagesParams(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	messages, err := s.tg.ChannelMessagesByUsername(r.Context(), username, params.page())
	if err != nil {
		s.writeUpstreamError(w, r, err, "Error retrieving messages")
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// writeUpstreamError converts a session error into the public error
// taxonomy: 404 for unresolved channels, 429 with the mandated wait
// for flood signals, and 500 with the raw error text for everything
// else.
func (s *Server) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error, context string) {
	if errors.Is(err, telegram.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Channel not found: %v", err))
		return
	}
	if fw, ok := telegram.AsFloodWait(err); ok {
		s.metrics.ObserveFloodWait()
		seconds := int(math.Ceil(fw.Wait.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		writeError(w, http.StatusTooManyRequests, fmt.Sprintf("Rate limited. Wait %d seconds", seconds))
		return
	}

	s.logger.ErrorContext(r.Context(), "Upstream request failed",
		"error", err, "path", r.URL.Path)
	writeError(w, http.StatusInternalServerError, fmt.Sprintf("%s: %v", context, err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the error body. The shape matches the original
// service contract: a single "detail" field.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
