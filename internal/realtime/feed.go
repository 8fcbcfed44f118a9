package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gorilla/websocket"
)

var ErrFeedClosed = errors.New("change feed is closed")

// feedFrame is the wire format shared by subscribe/unsubscribe requests and
// delivered events. Channel names the logical channel; for events the row
// carries the changed record verbatim.
type feedFrame struct {
	Action     string          `json:"action,omitempty"`
	Channel    string          `json:"channel"`
	Collection string          `json:"collection,omitempty"`
	Type       EventType       `json:"type,omitempty"`
	Column     string          `json:"column,omitempty"`
	Value      string          `json:"value,omitempty"`
	Row        json.RawMessage `json:"row,omitempty"`
}

// WSFeed implements Feed over a single websocket connection to the store's
// change-feed endpoint. All open channels share the connection; a read
// failure is fanned out to every channel's error callback and the feed is
// unusable afterwards.
type WSFeed struct {
	conn *websocket.Conn

	mu       sync.Mutex
	channels map[string]*wsChannel
	closed   bool
}

type wsChannel struct {
	feed    *WSFeed
	name    string
	onEvent func(Event)
	onError func(error)
	once    sync.Once
}

// DialFeed connects to the change-feed endpoint and starts dispatching
// incoming events.
func DialFeed(url string) (*WSFeed, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial change feed: %w", err)
	}

	feed := &WSFeed{
		conn:     conn,
		channels: make(map[string]*wsChannel),
	}
	go feed.readPump()

	return feed, nil
}

func (f *WSFeed) Open(name string, filter Filter, onEvent func(Event), onError func(error)) (io.Closer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrFeedClosed
	}
	if _, exists := f.channels[name]; exists {
		return nil, fmt.Errorf("channel %q is already open", name)
	}

	frame := feedFrame{
		Action:     "subscribe",
		Channel:    name,
		Collection: filter.Collection,
		Type:       filter.Type,
		Column:     filter.Column,
		Value:      filter.Value,
	}
	if err := f.conn.WriteJSON(frame); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", name, err)
	}

	channel := &wsChannel{feed: f, name: name, onEvent: onEvent, onError: onError}
	f.channels[name] = channel

	return channel, nil
}

func (f *WSFeed) readPump() {
	for {
		var frame feedFrame
		if err := f.conn.ReadJSON(&frame); err != nil {
			f.fail(err)
			return
		}

		f.mu.Lock()
		channel := f.channels[frame.Channel]
		f.mu.Unlock()
		if channel == nil {
			// Events for a channel closed moments ago are expected noise.
			continue
		}

		channel.onEvent(Event{
			Type:       frame.Type,
			Collection: frame.Collection,
			Row:        frame.Row,
		})
	}
}

// fail marks the feed dead and surfaces the failure to every open channel.
func (f *WSFeed) fail(err error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	channels := make([]*wsChannel, 0, len(f.channels))
	for _, c := range f.channels {
		channels = append(channels, c)
	}
	f.channels = make(map[string]*wsChannel)
	f.mu.Unlock()

	log.Warn("Change feed connection lost: %v", err)
	for _, c := range channels {
		c.onError(err)
	}
}

func (f *WSFeed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.channels = make(map[string]*wsChannel)
	f.mu.Unlock()

	return f.conn.Close()
}

// Close unsubscribes the channel. The websocket stays up for the feed's
// remaining channels.
func (c *wsChannel) Close() error {
	var err error
	c.once.Do(func() {
		// feed.mu also serializes writers on the shared connection.
		c.feed.mu.Lock()
		defer c.feed.mu.Unlock()

		delete(c.feed.channels, c.name)
		if !c.feed.closed {
			err = c.feed.conn.WriteJSON(feedFrame{Action: "unsubscribe", Channel: c.name})
		}
	})
	return err
}
