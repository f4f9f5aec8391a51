package httpapi

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/avrebarra/lumora/pkg/builder"
	"github.com/avrebarra/lumora/pkg/llm"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// streamFrame is one websocket message sent during a streamed builder run.
type streamFrame struct {
	Type   string           `json:"type"` // event, result, error
	Event  *builder.Event   `json:"event,omitempty"`
	Result *builderResponse `json:"result,omitempty"`
	Error  *errorResponse   `json:"error,omitempty"`
}

// handleBuilderStream runs a builder run over a websocket, streaming
// progress events as they happen. The client sends one builderRequest
// frame; the run's tool results stay internal, only events and the final
// summary go out.
func (s *Server) handleBuilderStream(w http.ResponseWriter, r *http.Request, accountID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	var req builderRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read builder stream request")
		return
	}
	if req.ProjectID == "" || len(req.Messages) == 0 {
		s.writeStreamError(conn, llm.NewError(llm.KindBackendError, "projectId and messages are required"))
		return
	}

	// Writes come from the run goroutine and this handler; serialize them.
	var writeMu sync.Mutex
	writeFrame := func(frame streamFrame) {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(frame); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to write stream frame")
		}
	}

	result, err := s.runner.Run(r.Context(), builder.RunParams{
		AccountID:      accountID,
		ProjectID:      req.ProjectID,
		ConversationID: req.ConversationID,
		Model:          req.Model,
		Messages:       req.Messages,
	}, func(event builder.Event) {
		writeFrame(streamFrame{Type: "event", Event: &event})
	})
	if err != nil {
		s.writeStreamErrorLocked(&writeMu, conn, err)
		return
	}

	writeFrame(streamFrame{Type: "result", Result: &builderResponse{
		Summary:        result.Summary,
		ConversationID: result.ConversationID,
		Outcome:        string(result.Outcome),
		Steps:          result.Steps,
		ToolCalls:      result.ToolCalls,
	}})
}

func (s *Server) writeStreamError(conn *websocket.Conn, err error) {
	var mu sync.Mutex
	s.writeStreamErrorLocked(&mu, conn, err)
}

func (s *Server) writeStreamErrorLocked(mu *sync.Mutex, conn *websocket.Conn, err error) {
	kind := llm.KindOf(err)
	body := errorResponse{Kind: string(kind), Error: "internal error"}
	var cerr *llm.Error
	if errors.As(err, &cerr) {
		body.Error = cerr.Message
	}

	mu.Lock()
	defer mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if writeErr := conn.WriteJSON(streamFrame{Type: "error", Error: &body}); writeErr != nil {
		s.logger.Debug().Err(writeErr).Msg("Failed to write stream error")
	}
}
