package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// ServeChannel relays frames between a server-side WebSocket and a channel until either side
// closes. Client frames sent before the channel opens are held until it does; frames sent while
// a simulated drop is in progress are discarded.
func ServeChannel(conn *websocket.Conn, ch *Channel) {
	opened := make(chan struct{})
	var once sync.Once

	remove := ch.AddListener(ListenerFuncs{
		Open: func() { once.Do(func() { close(opened) }) },
		Message: func(data []byte) {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				ch.log.L().Debug("Bridge write failed", zap.Error(err))
			}
		},
		Close: func(code int, reason string) {
			if code == CloseGoingAway {
				ch.log.L().Debug("Bridge holding connection through simulated drop", zap.String("reason", reason))
			}
		},
	})
	defer remove()
	if ch.ReadyState() == StateOpen {
		once.Do(func() { close(opened) })
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					ch.log.L().Debug("Bridge read failed", zap.Error(err))
				}
				return
			}

			select {
			case <-opened:
			case <-ch.Done():
				return
			}

			if err := ch.Send(data); err != nil && !errors.Is(err, ErrNotOpen) {
				ch.log.L().Debug("Bridge send failed", zap.Error(err))
			}
		}
	}()

	select {
	case <-readDone:
		_ = ch.Close(CloseNormal, "client closed")
		<-ch.Done()
		_ = conn.Close()
	case <-ch.Done():
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		<-readDone
	}
}
