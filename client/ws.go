package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/witanlabs/witan-assist/action"
)

// WSClassifier classifies text over a persistent WebSocket to /ws. One
// request is in flight at a time; a broken connection is redialed on the
// next call.
type WSClassifier struct {
	URL    string
	APIKey string
	Locale string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSClassifier creates a classifier for a ws:// or wss:// endpoint.
func NewWSClassifier(rawURL, apiKey string) *WSClassifier {
	return &WSClassifier{URL: rawURL, APIKey: apiKey}
}

// Classify implements action.Classifier.
func (w *WSClassifier) Classify(ctx context.Context, text string) (action.Classification, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	conn, err := w.connect(ctx)
	if err != nil {
		return action.Classification{}, err
	}
	if err := wsjson.Write(ctx, conn, AnalyzeRequest{Message: text, Locale: w.Locale}); err != nil {
		w.drop()
		return action.Classification{}, fmt.Errorf("sending classify request: %w", err)
	}
	var reply wsReply
	if err := wsjson.Read(ctx, conn, &reply); err != nil {
		w.drop()
		return action.Classification{}, fmt.Errorf("reading classify reply: %w", err)
	}
	if reply.Error != "" {
		return action.Classification{}, &APIError{StatusCode: http.StatusBadRequest, Message: reply.Error}
	}
	return classification(reply.Action, reply.Description, w.Locale), nil
}

// Close closes the connection, if any.
func (w *WSClassifier) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close(websocket.StatusNormalClosure, "")
	w.conn = nil
	return err
}

func (w *WSClassifier) connect(ctx context.Context) (*websocket.Conn, error) {
	if w.conn != nil {
		return w.conn, nil
	}
	opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
	opts.HTTPHeader.Set("User-Agent", defaultUserAgent)
	if w.APIKey != "" {
		opts.HTTPHeader.Set("Authorization", "Bearer "+w.APIKey)
	}
	conn, resp, err := websocket.Dial(ctx, w.URL, opts)
	if err != nil {
		if resp != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: err.Error()}
		}
		return nil, fmt.Errorf("dialing classifier: %w", err)
	}
	w.conn = conn
	return conn, nil
}

func (w *WSClassifier) drop() {
	if w.conn != nil {
		w.conn.CloseNow()
		w.conn = nil
	}
}

// NewRemote picks the transport from the URL scheme: http(s) uses Client,
// ws(s) uses WSClassifier.
func NewRemote(rawURL, apiKey, locale string) (action.Classifier, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid classifier URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		c := New(rawURL, apiKey)
		c.Locale = locale
		c.Cache = NewResponseCache()
		return c, nil
	case "ws", "wss":
		w := NewWSClassifier(rawURL, apiKey)
		w.Locale = locale
		return w, nil
	}
	return nil, errors.New("classifier URL must use http, https, ws or wss")
}
