package server

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/chainsight/chainsight/internal/modules/agent"
)

// Per-connection ceiling for one agent turn.
const wsTurnTimeout = 2 * time.Minute

// wsInbound is one client message on the agent socket.
type wsInbound struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// wsEvent streams turn progress to the client. Type is "stage" while the
// turn runs and "answer" when it completes.
type wsEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Stage     string `json:"stage,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Answer    string `json:"answer,omitempty"`
}

// handleAgentWS upgrades to a websocket and streams agent turns. Each
// inbound message runs one turn; stage events arrive as the loop plans
// and calls tools, then a final answer event closes the turn.
// GET /api/agent/ws
func (s *Server) handleAgentWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "connection closed")

	ctx := r.Context()
	s.log.Debug().Msg("Agent websocket connected")

	for {
		var in wsInbound
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			s.log.Debug().Err(err).Msg("Agent websocket read failed")
			return
		}
		if in.Message == "" {
			continue
		}

		conv := s.session(in.SessionID)
		s.runWSTurn(ctx, conn, conv, in.Message)
	}
}

func (s *Server) runWSTurn(ctx context.Context, conn *websocket.Conn, conv *agent.ConversationState, message string) {
	turnCtx, cancel := context.WithTimeout(ctx, wsTurnTimeout)
	defer cancel()

	events := func(stage, detail string) {
		if stage == "answer" {
			return // the final frame carries the answer
		}
		evt := wsEvent{Type: "stage", SessionID: conv.ID(), Stage: stage, Detail: detail}
		if err := wsjson.Write(turnCtx, conn, evt); err != nil {
			s.log.Debug().Err(err).Msg("Agent websocket event write failed")
		}
	}

	answer, err := s.agent.ChatWithEvents(turnCtx, conv, message, events)
	if err != nil {
		answer = agent.GenericFailureAnswer
		s.log.Warn().Err(err).Msg("Agent turn failed on websocket")
	}

	final := wsEvent{Type: "answer", SessionID: conv.ID(), Answer: answer}
	if err := wsjson.Write(turnCtx, conn, final); err != nil {
		s.log.Debug().Err(err).Msg("Agent websocket answer write failed")
	}
}
