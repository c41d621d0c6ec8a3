package swcache

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/bool64/ctxd"
)

// Kind is a lifecycle event kind.
type Kind string

// Event kinds.
const (
	KindInstall            = Kind("install")
	KindActivate           = Kind("activate")
	KindFetch              = Kind("fetch")
	KindMessage            = Kind("message")
	KindPush               = Kind("push")
	KindNotificationClick  = Kind("notificationclick")
	KindSync               = Kind("sync")
	KindError              = Kind("error")
	KindUnhandledRejection = Kind("unhandledrejection")
)

// Event is delivered by host to gatekeeper.
type Event interface {
	Kind() Kind
}

// InstallEvent requests cache population.
type InstallEvent struct{}

// Kind implements Event.
func (InstallEvent) Kind() Kind { return KindInstall }

// ActivateEvent requests cleanup of stale generations.
type ActivateEvent struct{}

// Kind implements Event.
func (ActivateEvent) Kind() Kind { return KindActivate }

// FetchEvent carries outgoing request.
//
// If no response is set after dispatch, request must be passed through untouched.
type FetchEvent struct {
	Request *http.Request

	mu        sync.Mutex
	response  *Response
	responded bool
}

// Kind implements Event.
func (*FetchEvent) Kind() Kind { return KindFetch }

// RespondWith overrides response of request.
func (e *FetchEvent) RespondWith(resp *Response) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.response = resp
	e.responded = true
}

// Response returns overridden response.
func (e *FetchEvent) Response() (*Response, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.response, e.responded
}

// MessageEvent carries control message with optional reply channel.
type MessageEvent struct {
	Message Message
	Source  string
	Port    ReplyPort
}

// Kind implements Event.
func (MessageEvent) Kind() Kind { return KindMessage }

// PushEvent carries push payload.
type PushEvent struct {
	Data []byte
}

// Kind implements Event.
func (PushEvent) Kind() Kind { return KindPush }

// NotificationClickEvent carries activated notification.
type NotificationClickEvent struct {
	Notification Notification
	Action       string
}

// Kind implements Event.
func (NotificationClickEvent) Kind() Kind { return KindNotificationClick }

// SyncEvent signals background sync opportunity.
type SyncEvent struct {
	Tag string
}

// Kind implements Event.
func (SyncEvent) Kind() Kind { return KindSync }

// ErrorEvent reports uncaught failure.
type ErrorEvent struct {
	Err error
}

// Kind implements Event.
func (ErrorEvent) Kind() Kind { return KindError }

// RejectionEvent reports failure of a detached task.
type RejectionEvent struct {
	Reason error
}

// Kind implements Event.
func (RejectionEvent) Kind() Kind { return KindUnhandledRejection }

// HandlerFunc handles event.
type HandlerFunc func(ctx context.Context, e Event) error

// Dispatcher maps event kinds to handlers.
type Dispatcher struct {
	handlers map[Kind]HandlerFunc
	name     string
	log      ctxd.Logger
}

// NewDispatcher creates dispatch table of gatekeeper.
func NewDispatcher(g *Gatekeeper) *Dispatcher {
	d := &Dispatcher{
		name: g.version.Name,
		log:  g.log,
	}

	d.handlers = map[Kind]HandlerFunc{
		KindInstall: func(ctx context.Context, _ Event) error {
			return g.Install(ctx)
		},
		KindActivate: func(ctx context.Context, _ Event) error {
			return g.Activate(ctx)
		},
		KindFetch: func(ctx context.Context, e Event) error {
			fe := e.(*FetchEvent)

			resp, handled, err := g.Fetch(ctx, fe.Request)
			if handled && resp != nil {
				fe.RespondWith(resp)
			}

			return err
		},
		KindMessage: func(ctx context.Context, e Event) error {
			me := e.(MessageEvent)
			reply := g.HandleMessage(WithClientID(ctx, me.Source), me.Message)

			if me.Port != nil {
				me.Port.PostMessage(reply)
			}

			return nil
		},
		KindPush: func(ctx context.Context, e Event) error {
			return g.Push(ctx, e.(PushEvent).Data)
		},
		KindNotificationClick: func(ctx context.Context, e Event) error {
			ce := e.(NotificationClickEvent)

			return g.NotificationClick(ctx, ce.Notification, ce.Action)
		},
		KindSync: func(ctx context.Context, e Event) error {
			return g.Sync(ctx, e.(SyncEvent).Tag)
		},
		KindError: func(ctx context.Context, e Event) error {
			d.log.Error(ctx, "uncaught error", "name", d.name, "error", e.(ErrorEvent).Err)

			return nil
		},
		KindUnhandledRejection: func(ctx context.Context, e Event) error {
			d.log.Error(ctx, "unhandled rejection", "name", d.name, "reason", e.(RejectionEvent).Reason)

			return nil
		},
	}

	return d
}

// Handle replaces handler of event kind.
func (d *Dispatcher) Handle(k Kind, h HandlerFunc) {
	d.handlers[k] = h
}

// Dispatch calls handler of event, panics are recovered and reported as uncaught errors.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s handler panicked: %v", e.Kind(), r)

			if e.Kind() != KindError {
				_ = d.Dispatch(ctx, ErrorEvent{Err: err})
			}
		}
	}()

	h, ok := d.handlers[e.Kind()]
	if !ok {
		return fmt.Errorf("unsupported event: %s", e.Kind())
	}

	err = h(ctx, e)

	switch e.Kind() {
	case KindPush, KindNotificationClick, KindSync:
		if err != nil {
			d.log.Error(ctx, "event handler failed", "name", d.name, "event", e.Kind(), "error", err)
		}
	default:
	}

	return err
}
