package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sirupsen/logrus"

	"circuitcraft.ai/internal/protocol"
	"circuitcraft.ai/internal/sim/world"
	"circuitcraft.ai/schemas"
)

// Server is the edit socket: HELLO -> WELCOME, then EDIT -> ACK.
type Server struct {
	world *world.World
	log   logrus.FieldLogger

	// Token, when set, must match HELLO.auth.token.
	Token string

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		world: w,
		log:   log.WithField("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

var (
	editSchemaOnce sync.Once
	editSchema     *jsonschema.Schema
	editSchemaErr  error
)

func compiledEditSchema() (*jsonschema.Schema, error) {
	editSchemaOnce.Do(func() {
		const name = "edit.schema.json"
		raw, err := schemas.FS.ReadFile(name)
		if err != nil {
			editSchemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(name, bytes.NewReader(raw)); err != nil {
			editSchemaErr = err
			return
		}
		editSchema, editSchemaErr = c.Compile(name)
	})
	return editSchema, editSchemaErr
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		actorID, ok := s.handshake(r.Context(), conn)
		if !ok {
			return
		}
		log := s.log.WithField("actor", actorID)
		log.Info("actor connected")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		acks := make(chan protocol.AckMsg, 16)

		// Writer goroutine.
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for {
				select {
				case <-ctx.Done():
					return
				case ack := <-acks:
					if err := writeJSON(conn, ack); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			env, reject := s.decodeEdit(actorID, msg, acks)
			if reject != nil {
				select {
				case acks <- *reject:
				default:
				}
				continue
			}
			select {
			case s.world.EditChan() <- env:
			default:
				select {
				case acks <- rejectAck(env.ReqID, protocol.ErrWorldBusy, "edit queue full"):
				default:
				}
			}
		}
		cancel()
		<-writerDone

		select {
		case s.world.LeaveChan() <- actorID:
		case <-time.After(time.Second):
			log.Warn("leave not delivered; world loop busy")
		}
		log.Info("actor disconnected")
	}
}

// decodeEdit turns one socket message into an envelope, or an ACK rejecting it.
func (s *Server) decodeEdit(actorID string, msg []byte, acks chan protocol.AckMsg) (world.EditEnvelope, *protocol.AckMsg) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		ack := rejectAck("", protocol.ErrProtoBadRequest, "malformed json")
		return world.EditEnvelope{}, &ack
	}
	if base.Type != protocol.TypeEdit {
		ack := rejectAck("", protocol.ErrProtoBadRequest, "expected EDIT")
		return world.EditEnvelope{}, &ack
	}
	var edit protocol.EditMsg
	if err := json.Unmarshal(msg, &edit); err != nil {
		ack := rejectAck("", protocol.ErrProtoBadRequest, err.Error())
		return world.EditEnvelope{}, &ack
	}
	if edit.ProtocolVersion != protocol.Version {
		ack := rejectAck(edit.ReqID, protocol.ErrProtoBadRequest, "bad protocol_version")
		return world.EditEnvelope{}, &ack
	}
	if sch, err := compiledEditSchema(); err != nil {
		s.log.WithError(err).Error("edit schema")
	} else {
		var v any
		_ = json.Unmarshal(msg, &v)
		if err := sch.Validate(v); err != nil {
			ack := rejectAck(edit.ReqID, protocol.ErrProtoBadRequest, err.Error())
			return world.EditEnvelope{}, &ack
		}
	}
	return world.EditEnvelope{ActorID: actorID, ReqID: edit.ReqID, Edits: edit.Edits, Resp: acks}, nil
}

func rejectAck(reqID, code, message string) protocol.AckMsg {
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          reqID,
		Code:            code,
		Message:         message,
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (string, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, websocket.ClosePolicyViolation, "expected HELLO")
		return "", false
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", false
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, websocket.ClosePolicyViolation, "bad protocol_version")
		return "", false
	}
	if s.Token != "" {
		token := ""
		if hello.Auth != nil {
			token = strings.TrimSpace(hello.Auth.Token)
		}
		if token != s.Token {
			closeWith(conn, websocket.ClosePolicyViolation, "bad token")
			return "", false
		}
	}
	if hello.ActorName == "" {
		hello.ActorName = "actor"
	}

	respCh := make(chan world.JoinResponse, 1)
	select {
	case s.world.JoinChan() <- world.JoinRequest{Name: hello.ActorName, Resp: respCh}:
	case <-time.After(5 * time.Second):
		closeWith(conn, websocket.CloseTryAgainLater, "server busy")
		return "", false
	case <-ctx.Done():
		return "", false
	}
	var resp world.JoinResponse
	select {
	case resp = <-respCh:
	case <-time.After(10 * time.Second):
		closeWith(conn, websocket.CloseTryAgainLater, "join timed out")
		return "", false
	}

	if err := writeJSON(conn, resp.Welcome); err != nil {
		return "", false
	}
	return resp.Welcome.ActorID, true
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
