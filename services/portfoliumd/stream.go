package portfoliumd

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"portfolium/core/types"
)

const wsWriteTimeout = 10 * time.Second

type eventView struct {
	ID         uint64            `json:"id"`
	Height     uint64            `json:"height"`
	Module     string            `json:"module"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt time.Time         `json:"recordedAt"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.writeJSON(w, http.StatusNotFound, errorBody{Code: "NOT_FOUND", Message: "event index not enabled"})
		return
	}
	q := r.URL.Query()
	filter := EventFilter{
		Type:      q.Get("type"),
		Module:    q.Get("module"),
		Portfolio: q.Get("portfolio"),
	}
	if raw := strings.TrimSpace(q.Get("after")); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, badRequest("after must be an unsigned integer"))
			return
		}
		filter.AfterID = after
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, badRequest("limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}
	records, err := s.events.Query(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]eventView, 0, len(records))
	for _, rec := range records {
		out = append(out, eventView{
			ID:         rec.ID,
			Height:     rec.Height,
			Module:     rec.Module,
			Type:       rec.Type,
			Attributes: rec.Decoded(),
			RecordedAt: rec.RecordedAt,
		})
	}
	resp := map[string]interface{}{"events": out}
	if len(records) > 0 {
		resp["next"] = records[len(records)-1].ID
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleEventStream pushes platform events to a websocket client as they are
// emitted. The subscription opens before the handshake completes. ?type= narrows the stream to one event type or, with a trailing
// dot, to one module (for example ?type=fund.).
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	filter := strings.TrimSpace(r.URL.Query().Get("type"))
	events, cancel := s.platform.Subscribe(s.streamBuffer)
	defer cancel()
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	if err := streamEvents(r.Context(), conn, events, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamEvents(ctx context.Context, conn *websocket.Conn, events <-chan *types.Event, filter string) error {
	ctx = conn.CloseRead(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			if !matchesType(evt, filter) {
				continue
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func matchesType(evt *types.Event, filter string) bool {
	if evt == nil {
		return false
	}
	if filter == "" {
		return true
	}
	if strings.HasSuffix(filter, ".") {
		return strings.HasPrefix(evt.Type, filter)
	}
	return evt.Type == filter
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt *types.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
