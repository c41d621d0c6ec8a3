package httpgate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
	"github.com/go-chi/chi/v5"
	"github.com/vearutop/swcache"
)

// ClientIDHeader identifies client context in control requests.
const ClientIDHeader = "X-Client-ID"

// MetricRequests counts application requests by result: served, failed or passed.
const MetricRequests = "swcache_http_requests"

// Config controls Gateway.
type Config struct {
	// Registration routes events to active gatekeeper, required.
	Registration *swcache.Registration

	// Hub keeps client contexts connected over server-sent events, required.
	Hub *swcache.ClientHub

	// Notifications keeps displayed notifications, required.
	Notifications *swcache.NotificationCenter

	// PassThrough serves requests that gatekeeper does not intercept, required.
	PassThrough http.Handler

	// Heartbeat is an interval of keep-alive comments in event streams, default 15s.
	Heartbeat time.Duration

	// MaxMessageSize limits control request body, default 64KB.
	MaxMessageSize int64

	Logger ctxd.Logger
	Stats  stats.Tracker
}

// Gateway is an HTTP host of gatekeeper.
type Gateway struct {
	router chi.Router
	config Config
	log    ctxd.Logger
	stat   stats.Tracker
}

// New creates gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.Registration == nil || cfg.Hub == nil || cfg.Notifications == nil || cfg.PassThrough == nil {
		return nil, errors.New("registration, hub, notifications and pass-through handler are required")
	}

	if cfg.Heartbeat == 0 {
		cfg.Heartbeat = 15 * time.Second
	}

	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = 64 << 10
	}

	gw := &Gateway{
		router: chi.NewRouter(),
		config: cfg,
		log:    cfg.Logger,
		stat:   cfg.Stats,
	}

	if gw.log == nil {
		gw.log = ctxd.NoOpLogger{}
	}

	if gw.stat == nil {
		gw.stat = stats.NoOp{}
	}

	gw.router.Route("/sw", func(r chi.Router) {
		r.Get("/clients", gw.handleClients)
		r.Get("/notifications", gw.handleNotifications)
		r.Post("/message", gw.handleMessage)
		r.Post("/push", gw.handlePush)
		r.Post("/notificationclick", gw.handleNotificationClick)
		r.Post("/sync", gw.handleSync)
	})
	gw.router.HandleFunc("/*", gw.handleFetch)

	return gw, nil
}

// ServeHTTP implements http.Handler.
func (gw *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gw.router.ServeHTTP(w, r)
}

// handleFetch serves application request through gatekeeper.
func (gw *Gateway) handleFetch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := r.Clone(ctx)
	req.RequestURI = ""

	fe := &swcache.FetchEvent{Request: req}
	err := gw.config.Registration.Dispatch(ctx, fe)

	if resp, ok := fe.Response(); ok {
		gw.stat.Add(ctx, MetricRequests, 1, "result", "served")
		writeResponse(w, resp)

		return
	}

	if err != nil {
		gw.stat.Add(ctx, MetricRequests, 1, "result", "failed")
		gw.log.Warn(ctx, "no response", "url", r.URL.String(), "error", err)

		status := http.StatusInternalServerError
		if errors.Is(err, swcache.ErrNoResponse) {
			status = http.StatusGatewayTimeout
		}

		http.Error(w, http.StatusText(status), status)

		return
	}

	gw.stat.Add(ctx, MetricRequests, 1, "result", "passed")
	gw.config.PassThrough.ServeHTTP(w, r)
}

func writeResponse(w http.ResponseWriter, resp *swcache.Response) {
	h := w.Header()

	for k, v := range resp.Header {
		h[k] = v
	}

	h.Del("Content-Length")
	h.Set("Content-Length", strconv.Itoa(len(resp.Body)))

	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

// handleClients streams client messages as server-sent events.
//
// Query parameters "id" and "url" identify client context, id is generated when empty.
func (gw *Gateway) handleClients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming is not supported", http.StatusInternalServerError)

		return
	}

	c := gw.config.Hub.Connect(ctx, r.URL.Query().Get("id"), r.URL.Query().Get("url"))
	defer gw.config.Hub.Disconnect(ctx, c.ID())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	hello, err := json.Marshal(map[string]string{"id": c.ID()})
	if err != nil {
		return
	}

	if _, err := fmt.Fprintf(w, "event: hello\ndata: %s\n\n", hello); err != nil {
		return
	}

	flusher.Flush()

	ticker := time.NewTicker(gw.config.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		case msg, ok := <-c.Messages():
			if !ok {
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				gw.log.Error(ctx, "failed to marshal client message", "client", c.ID(), "error", err)

				continue
			}

			if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", data); err != nil {
				return
			}
		}

		flusher.Flush()
	}
}

func (gw *Gateway) handleNotifications(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, gw.config.Notifications.Active())
}

// handleMessage delivers control message and responds with reply.
func (gw *Gateway) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg swcache.Message

	if !gw.decode(w, r, &msg) {
		return
	}

	var reply swcache.Reply

	err := gw.config.Registration.Dispatch(r.Context(), swcache.MessageEvent{
		Message: msg,
		Source:  r.Header.Get(ClientIDHeader),
		Port: swcache.ReplyFunc(func(rp swcache.Reply) {
			reply = rp
		}),
	})
	if err != nil {
		reply = swcache.Failure(err)
	}

	writeJSON(w, http.StatusOK, reply)
}

func (gw *Gateway) handlePush(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, gw.config.MaxMessageSize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	gw.dispatch(w, r, swcache.PushEvent{Data: payload})
}

type notificationClick struct {
	ID     string `json:"id"`
	Action string `json:"action"`
}

// handleNotificationClick closes displayed notification and reacts to chosen action.
func (gw *Gateway) handleNotificationClick(w http.ResponseWriter, r *http.Request) {
	var click notificationClick

	if !gw.decode(w, r, &click) {
		return
	}

	n, ok := gw.config.Notifications.Close(click.ID)
	if !ok {
		http.Error(w, "notification not found", http.StatusNotFound)

		return
	}

	gw.dispatch(w, r, swcache.NotificationClickEvent{Notification: n, Action: click.Action})
}

type syncRequest struct {
	Tag string `json:"tag"`
}

func (gw *Gateway) handleSync(w http.ResponseWriter, r *http.Request) {
	var sr syncRequest

	if !gw.decode(w, r, &sr) {
		return
	}

	gw.dispatch(w, r, swcache.SyncEvent{Tag: sr.Tag})
}

func (gw *Gateway) dispatch(w http.ResponseWriter, r *http.Request, e swcache.Event) {
	if err := gw.config.Registration.Dispatch(r.Context(), e); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (gw *Gateway) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, gw.config.MaxMessageSize)).Decode(v); err != nil {
		http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)

		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
