package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hoshinonyaruko/snake-torus/protocol"
	"github.com/hoshinonyaruko/snake-torus/snake"
	"github.com/hoshinonyaruko/snake-torus/structs"
	"github.com/rs/zerolog/log"
)

const (
	protocolVersion = 1
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = 25 * time.Second
)

var upgrader = websocket.Upgrader{
	// 本地游戏，允许任意来源
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamHandler pushes every snapshot to a websocket client and accepts intent and
// pointer messages on the same connection.
func (s *Server) StreamHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		codec, err := protocol.ParseCodec(c.Query("codec"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade")
			return
		}
		defer conn.Close()

		snaps, unsubscribe := s.sched.Subscribe(16)
		defer unsubscribe()

		conn.SetReadLimit(1 << 16)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})

		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			s.readInput(conn, codec)
		}()

		frame := websocket.TextMessage
		if codec == protocol.MsgPack {
			frame = websocket.BinaryMessage
		}
		send := func(t string, payload any) error {
			b, err := protocol.Encode(codec, t, payload)
			if err != nil {
				return err
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			return conn.WriteMessage(frame, b)
		}

		current := s.sched.Snapshot()
		hello := protocol.Hello{
			V:        protocolVersion,
			GridSize: current.GridSize,
			CellSize: s.cfg.Blocksize,
			TickMs:   s.cfg.TickMs,
			Codec:    string(codec),
		}
		if err := send(protocol.MsgHello, hello); err != nil {
			return
		}
		if err := send(snapshotType(current), current); err != nil {
			return
		}

		ping := time.NewTicker(pingPeriod)
		defer ping.Stop()
		for {
			select {
			case snap, ok := <-snaps:
				if !ok {
					return
				}
				if err := send(snapshotType(snap), snap); err != nil {
					log.Debug().Err(err).Msg("stream write")
					return
				}
			case <-ping.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-readDone:
				return
			case <-s.ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeWait))
				return
			}
		}
	}
}

func snapshotType(snap structs.Snapshot) string {
	if snap.Phase == structs.PhaseOver {
		return protocol.MsgOver
	}
	return protocol.MsgSnapshot
}

// readInput applies client messages until the connection fails. Malformed messages
// are logged and dropped.
func (s *Server) readInput(conn *websocket.Conn, codec protocol.Codec) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("stream read")
			}
			return
		}
		env, err := protocol.DecodeEnvelope(codec, msg)
		if err != nil {
			log.Debug().Err(err).Msg("bad client message")
			continue
		}
		switch env.T {
		case protocol.MsgIntent:
			in, err := protocol.DecodePayload[protocol.Intent](codec, env)
			if err != nil {
				continue
			}
			d, err := snake.ParseDirection(in.Direction)
			if err != nil {
				log.Debug().Str("direction", in.Direction).Msg("bad intent")
				continue
			}
			s.sched.SetIntent(d)
		case protocol.MsgPointer:
			p, err := protocol.DecodePayload[protocol.Pointer](codec, env)
			if err != nil {
				continue
			}
			s.sched.Pointer(p.X, p.Y, float64(s.cfg.Blocksize))
		default:
			log.Debug().Str("type", env.T).Msg("unknown client message")
		}
	}
}
