package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 256
)

// Client is one console websocket subscribed to a single Kind.
type Client struct {
	hub  *Hub
	kind Kind
	conn *websocket.Conn
	send chan Message
}

// Subscribe registers conn for messages of kind. replay is written before
// anything published afterwards.
func Subscribe(h *Hub, kind Kind, conn *websocket.Conn, replay ...[]byte) *Client {
	c := &Client{
		hub:  h,
		kind: kind,
		conn: conn,
		send: make(chan Message, sendBuffer+len(replay)),
	}
	for _, data := range replay {
		c.send <- Message{Kind: kind, Data: data}
	}
	h.add(c)
	return c
}

// Run writes in the background and blocks reading until the peer goes away.
func (c *Client) Run() {
	go c.write()
	c.read()
}

// read discards inbound frames; it exists to notice disconnects and pongs.
func (c *Client) read() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) write() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		var (
			frame int
			data  []byte
		)
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			frame, data = websocket.TextMessage, msg.Data
		case <-ping.C:
			frame = websocket.PingMessage
		}
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(frame, data); err != nil {
			return
		}
	}
}
