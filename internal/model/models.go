// Package model declares the public JSON schema served by the API.
// Optional fields are pointers so that absent values serialize as
// explicit nulls rather than being omitted.
package model

import "time"

// Channel is a channel-type dialog visible to the account. Username
// and ParticipantsCount are nil when the channel is private or the
// upstream entity carries no member count.
type Channel struct {
	ID                int64   `json:"id"`
	Title             string  `json:"title"`
	Username          *string `json:"username"`
	ParticipantsCount *int    `json:"participants_count"`
}

// Message is a single channel message. Text is never empty: messages
// without text carry a media placeholder instead. Sender fields are
// nil for anonymous channel posts; Views and Forwards are nil when the
// upstream message has no counters.
type Message struct {
	ID             int       `json:"id"`
	Date           time.Time `json:"date"`
	Text           string    `json:"text"`
	SenderID       *int64    `json:"sender_id"`
	SenderUsername *string   `json:"sender_username"`
	Views          *int      `json:"views"`
	Forwards       *int      `json:"forwards"`
}
