package telegram

import (
	"errors"
	"fmt"
	"time"

	"github.com/gotd/td/tgerr"
)

// ErrNotFound indicates that a channel ID or username could not be
// resolved to a known channel. Handlers map it to 404.
var ErrNotFound = errors.New("channel not found")

// ErrNotAuthorized indicates that the persisted session exists but is
// not authorized. It is fatal at startup; the setup command must be
// run first.
var ErrNotAuthorized = errors.New("telegram session is not authorized, run the setup command first")

// FloodWaitError carries the wait duration mandated by a Telegram
// FLOOD_WAIT response. Handlers map it to 429 with the wait attached;
// no automatic retry is performed.
type FloodWaitError struct {
	Wait time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("rate limited by telegram, wait %s", e.Wait)
}

// AsFloodWait reports whether err carries a flood-wait signal.
func AsFloodWait(err error) (*FloodWaitError, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw, true
	}
	return nil, false
}

// classifyFlood converts an upstream FLOOD_WAIT error into a
// FloodWaitError and leaves every other error untouched.
func classifyFlood(err error) error {
	if err == nil {
		return nil
	}
	if d, ok := tgerr.AsFloodWait(err); ok {
		return &FloodWaitError{Wait: d}
	}
	return err
}
