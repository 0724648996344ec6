package socket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// conn is one live socket. Only writeLoop writes frames.
type conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newConn(id string, ws *websocket.Conn, buffer int) *conn {
	return &conn{id: id, ws: ws, send: make(chan []byte, buffer), done: make(chan struct{})}
}

// Deliver never blocks. A full buffer drops the frame and closes the connection.
func (c *conn) Deliver(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.shutdown()
		return false
	}
}

func (c *conn) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *conn) writeLoop(ping, writeWait time.Duration) {
	t := time.NewTicker(ping)
	defer func() {
		t.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.shutdown()
				return
			}
		case <-t.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}
