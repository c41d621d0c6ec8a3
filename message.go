package swcache

import (
	"time"
)

// BroadcastType is a type tag of a message sent to clients.
type BroadcastType string

// Client broadcast messages.
const (
	SyncRequest       = BroadcastType("SYNC_REQUEST")
	SyncCompleted     = BroadcastType("SYNC_COMPLETED")
	SyncError         = BroadcastType("SYNC_ERROR")
	Activated         = BroadcastType("SW_ACTIVATED")
	NotificationClick = BroadcastType("NOTIFICATION_CLICK")
	NotificationShown = BroadcastType("NOTIFICATION")
	Focus             = BroadcastType("FOCUS")
)

// ClientMessage is posted to client contexts.
type ClientMessage struct {
	Type         BroadcastType `json:"type"`
	Timestamp    int64         `json:"timestamp"`
	Error        string        `json:"error,omitempty"`
	Action       string        `json:"action,omitempty"`
	CacheName    string        `json:"cacheName,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

// NewClientMessage creates message with timestamp in Unix milliseconds.
func NewClientMessage(t BroadcastType, now time.Time) ClientMessage {
	return ClientMessage{Type: t, Timestamp: now.UnixMilli()}
}

// MessageType is a control message type.
type MessageType string

// Control messages.
const (
	SkipWaiting   = MessageType("SKIP_WAITING")
	GetCacheNames = MessageType("GET_CACHE_NAMES")
	ClearCache    = MessageType("CLEAR_CACHE")
	UpdateCache   = MessageType("UPDATE_CACHE")
	SyncData      = MessageType("SYNC_DATA")
)

// Message is a control message from application to gatekeeper.
type Message struct {
	Type MessageType `json:"type"`
}

// Reply is a result of control message.
type Reply struct {
	Success    bool     `json:"success"`
	Error      string   `json:"error,omitempty"`
	CacheNames []string `json:"cacheNames,omitempty"`
}

// Failure makes unsuccessful reply.
func Failure(err error) Reply {
	return Reply{Error: err.Error()}
}

// ReplyPort receives control message replies.
type ReplyPort interface {
	PostMessage(r Reply)
}

// ReplyFunc implements ReplyPort.
type ReplyFunc func(r Reply)

// PostMessage delivers reply.
func (f ReplyFunc) PostMessage(r Reply) {
	f(r)
}
