package swcache

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bool64/ctxd"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/tidwall/gjson"
)

// Notification actions.
const (
	ActionOpen    = "open"
	ActionDismiss = "dismiss"
)

// NotificationAction is a button of a notification.
type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Notification is a user notification displayed on push.
type Notification struct {
	ID        string               `json:"id"`
	Tag       string               `json:"tag,omitempty"`
	Title     string               `json:"title"`
	Body      string               `json:"body"`
	Icon      string               `json:"icon,omitempty"`
	Badge     string               `json:"badge,omitempty"`
	URL       string               `json:"url,omitempty"`
	Vibrate   []int                `json:"vibrate,omitempty"`
	Actions   []NotificationAction `json:"actions"`
	Timestamp int64                `json:"timestamp"`
}

// Notifier displays user notifications.
type Notifier interface {
	ShowNotification(ctx context.Context, n Notification) error
}

// ParsePush builds notification from push payload.
//
// Payload is treated as JSON object with optional title, body, url and tag fields,
// invalid JSON is used as plain text body, empty payload results in default body.
func ParsePush(payload []byte, t NotificationTemplate, now time.Time) Notification {
	n := Notification{
		Tag:     t.Tag,
		Title:   t.Title,
		Body:    t.DefaultBody,
		Icon:    t.Icon,
		Badge:   t.Badge,
		URL:     t.URL,
		Vibrate: []int{100, 50, 100},
		Actions: []NotificationAction{
			{Action: ActionOpen, Title: "Open", Icon: t.ActionIcon},
			{Action: ActionDismiss, Title: "Dismiss", Icon: t.ActionIcon},
		},
		Timestamp: now.UnixMilli(),
	}

	text := strings.TrimSpace(string(payload))
	if text == "" {
		return n
	}

	if !gjson.Valid(text) {
		n.Body = text

		return n
	}

	doc := gjson.Parse(text)

	if !doc.IsObject() {
		if s := doc.String(); s != "" {
			n.Body = s
		}

		return n
	}

	if v := doc.Get("title").String(); v != "" {
		n.Title = v
	}

	if v := doc.Get("body").String(); v != "" {
		n.Body = v
	}

	if v := doc.Get("url").String(); v != "" {
		n.URL = v
	}

	if v := doc.Get("tag").String(); v != "" {
		n.Tag = v
	}

	return n
}

// NotificationConfig controls NotificationCenter.
type NotificationConfig struct {
	// Logger collects messages with context.
	Logger ctxd.Logger

	// TimeToLive is a duration of notification visibility, default 24h.
	TimeToLive time.Duration

	// Display is called for every shown notification, e.g. to deliver it to a desktop agent.
	Display func(ctx context.Context, n Notification) error
}

var _ Notifier = &NotificationCenter{}

// NotificationCenter keeps displayed notifications until they are clicked, closed or expired.
type NotificationCenter struct {
	shown  *gocache.Cache
	config NotificationConfig
	log    ctxd.Logger
}

// NewNotificationCenter creates notification registry.
//
// Expired notifications are purged by a background janitor every hour,
// janitor stops when the center is garbage collected.
func NewNotificationCenter(cfg NotificationConfig) *NotificationCenter {
	if cfg.TimeToLive == 0 {
		cfg.TimeToLive = 24 * time.Hour
	}

	nc := &NotificationCenter{
		shown:  gocache.New(cfg.TimeToLive, time.Hour),
		config: cfg,
		log:    cfg.Logger,
	}

	if nc.log == nil {
		nc.log = ctxd.NoOpLogger{}
	}

	return nc
}

// ShowNotification registers and displays notification.
//
// Notification with the same tag replaces previous one.
func (nc *NotificationCenter) ShowNotification(ctx context.Context, n Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	if n.Tag != "" {
		for _, prev := range nc.Active() {
			if prev.Tag == n.Tag {
				nc.shown.Delete(prev.ID)
			}
		}
	}

	nc.shown.Set(n.ID, n, gocache.DefaultExpiration)
	nc.log.Info(ctx, "notification shown", "id", n.ID, "title", n.Title, "body", n.Body)

	if nc.config.Display != nil {
		if err := nc.config.Display(ctx, n); err != nil {
			return ctxd.WrapError(ctx, err, "failed to display notification", "id", n.ID)
		}
	}

	return nil
}

// Get returns displayed notification.
func (nc *NotificationCenter) Get(id string) (Notification, bool) {
	v, ok := nc.shown.Get(id)
	if !ok {
		return Notification{}, false
	}

	return v.(Notification), true
}

// Close removes notification and returns it.
func (nc *NotificationCenter) Close(id string) (Notification, bool) {
	n, ok := nc.Get(id)
	if ok {
		nc.shown.Delete(id)
	}

	return n, ok
}

// Active returns displayed notifications ordered by time.
func (nc *NotificationCenter) Active() []Notification {
	items := nc.shown.Items()
	res := make([]Notification, 0, len(items))

	for _, item := range items {
		res = append(res, item.Object.(Notification))
	}

	sort.Slice(res, func(i, j int) bool {
		if res[i].Timestamp == res[j].Timestamp {
			return res[i].ID < res[j].ID
		}

		return res[i].Timestamp < res[j].Timestamp
	})

	return res
}
