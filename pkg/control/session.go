package control

import (
	"crypto/subtle"
	"errors"
	"log/slog"

	"github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/go-rover/pkg/hub"
	"github.com/teslashibe/go-rover/pkg/protocol"
)

// session is one operator connection. It is only touched from the
// connection's read loop.
type session struct {
	srv    *Server
	client *hub.Client
	log    *slog.Logger

	authed bool
}

// handleWS serves one websocket connection until it closes.
func (s *Server) handleWS(c *websocket.Conn) {
	client := hub.NewClient(s.hub, c)
	sess := &session{
		srv:    s,
		client: client,
		log:    s.log.With("client", client.ID),
	}
	sess.log.Debug("connection opened", "remote", c.RemoteAddr().String())
	client.Run(sess.handle)
	sess.log.Debug("connection closed")
}

// handle processes one inbound frame. Nothing is dispatched once
// shutdown has begun.
func (ss *session) handle(data []byte) {
	if ss.srv.state.Stopped() {
		return
	}

	msg, err := protocol.Parse(data)
	if err != nil {
		var unknown *protocol.UnknownTypeError
		if errors.As(err, &unknown) {
			ss.replyError(err.Error())
		} else {
			ss.replyError("invalid message: " + err.Error())
		}
		return
	}

	if key, ok := msg.(protocol.KeyMessage); ok {
		ss.authenticate(string(key.Value))
		return
	}
	if !ss.authed {
		ss.replyError("authentication required")
		return
	}
	ss.srv.dispatch(ss, msg)
}

// authenticate checks key against the configured secret. A rejected
// client stays connected but gated.
func (ss *session) authenticate(key string) {
	if ss.authed {
		ss.replyError("already authenticated")
		return
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(ss.srv.cfg.Key)) != 1 {
		ss.log.Warn("authentication failed")
		ss.replyError("invalid key")
		return
	}
	ss.authed = true
	ss.reply(protocol.NewNotice(protocol.TypeConnected, "authenticated"))
	// Joins the broadcast set only after the reply is queued.
	ss.srv.hub.Register(ss.client)
	ss.log.Info("client authenticated")
}

func (ss *session) reply(v any) {
	if err := ss.client.SendJSON(v); err != nil {
		ss.log.Debug("reply dropped", "error", err)
	}
}

func (ss *session) replyError(msg string) {
	ss.reply(protocol.NewError(msg))
}
