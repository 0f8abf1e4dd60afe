package models

import "time"

// Message is a stored board message. ClientIP never leaves the server.
type Message struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Text      string    `db:"text" json:"text"`
	ClientIP  string    `db:"client_ip" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MessageView is the client-facing shape of a message.
type MessageView struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Hash      string    `json:"hash"`
}

// CursorPagination describes a cursor-mode page.
type CursorPagination struct {
	AfterID int  `json:"after_id"`
	HasMore bool `json:"has_more"`
	Count   int  `json:"count"`
}

// PagePagination describes a page-mode page.
type PagePagination struct {
	Page    int  `json:"page"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// MessagePage is returned by list operations. Pagination holds either a
// CursorPagination or a PagePagination.
type MessagePage struct {
	Messages   []MessageView `json:"messages"`
	Pagination any           `json:"pagination"`
}

// BoardEvent is broadcast over websocket connections.
type BoardEvent struct {
	Type string       `json:"type"`
	Data *MessageView `json:"data,omitempty"`
}

// EventNewMessage is the type of a BoardEvent carrying a freshly stored message.
const EventNewMessage = "new_message"
