package swcache

import (
	"net/http"
	"net/url"
)

// ResponseType describes origin relation of response.
type ResponseType string

// Response types.
const (
	// TypeBasic is a same-origin response.
	TypeBasic = ResponseType("basic")
	// TypeCORS is a cross-origin response with readable body.
	TypeCORS = ResponseType("cors")
	// TypeOpaque is a cross-origin response with unreadable body.
	TypeOpaque = ResponseType("opaque")
	// TypeError is a network error response.
	TypeError = ResponseType("error")
)

// Response is a snapshot of HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Type   ResponseType
	URL    string
}

// OK is true for 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Clone returns a deep copy of response.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}

	c := *r
	c.Header = r.Header.Clone()

	if r.Body != nil {
		c.Body = make([]byte, len(r.Body))
		copy(c.Body, r.Body)
	}

	return &c
}

// Key returns request identity used to store responses.
//
// Only method and URL without fragment are significant.
func Key(method string, u *url.URL) string {
	if method == "" {
		method = http.MethodGet
	}

	uu := *u
	uu.Fragment = ""
	uu.RawFragment = ""

	return method + " " + uu.String()
}

// RequestKey returns request identity.
func RequestKey(req *http.Request) string {
	return Key(req.Method, req.URL)
}
