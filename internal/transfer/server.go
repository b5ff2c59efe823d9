package transfer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// DefaultAckEvery is the progress-ack cadence: one ack per N chunks. The ack
// is purely informational, not flow control.
const DefaultAckEvery = 10

// Config carries the transfer server settings.
type Config struct {
	InboxDir     string
	ProductDir   string
	AckEvery     int
	SessionTTL   time.Duration
	HandleParsed bool
}

// Server is the chunked-transfer protocol endpoint. It tracks in-flight
// sessions, reassembles chunk streams and writes each completed document
// exactly once.
type Server struct {
	mgr      *SessionManager
	dedup    DedupSet
	router   Router
	ackEvery int
	parsed   bool
	logger   *log.Logger
	upgrader websocket.Upgrader
}

// NewServer wires a transfer server. dedup may be nil, in which case the
// saved-id set is process-local.
func NewServer(cfg Config, dedup DedupSet) *Server {
	if cfg.AckEvery == 0 {
		cfg.AckEvery = DefaultAckEvery
	}
	if dedup == nil {
		dedup = NewMemoryDedup()
	}
	return &Server{
		mgr:      NewSessionManager(cfg.SessionTTL),
		dedup:    dedup,
		router:   Router{InboxDir: cfg.InboxDir, ProductDir: cfg.ProductDir},
		ackEvery: cfg.AckEvery,
		parsed:   cfg.HandleParsed,
		logger:   log.New(log.Writer(), "[XFER] ", log.LstdFlags),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1 << 16,
			WriteBufferSize: 1 << 16,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Sessions exposes the session manager so the owner can run its janitor.
func (s *Server) Sessions() *SessionManager { return s.mgr }

// HandleWS upgrades an echo request to a websocket and serves the message
// loop until the client disconnects.
func (s *Server) HandleWS(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}
	defer conn.Close()

	s.logger.Printf("client connected from %s", conn.RemoteAddr())
	defer s.logger.Printf("client disconnected")

	ctx := c.Request().Context()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Printf("bad json: %v", err)
			continue
		}
		reply := s.Process(ctx, msg)
		if reply == nil {
			continue
		}
		if err := conn.WriteJSON(reply); err != nil {
			return nil
		}
	}
}

// Process handles one protocol message and returns the reply to send, or nil
// when the message is silently absorbed (most chunks, unknown types).
func (s *Server) Process(ctx context.Context, msg Message) *Reply {
	switch msg.Type {
	case MsgBegin:
		return s.handleBegin(msg)
	case MsgChunk:
		return s.handleChunk(msg)
	case MsgEnd:
		return s.handleEnd(ctx, msg)
	case MsgParsed:
		return s.handleParsed(msg)
	default:
		s.logger.Printf("unknown message type %q", msg.Type)
		return nil
	}
}

func (s *Server) handleBegin(msg Message) *Reply {
	s.mgr.Begin(msg.ID, msg.Total, msg.URL, msg.DocType)
	s.logger.Printf("begin id=%s total=%d url=%s docType=%s", msg.ID, msg.Total, msg.URL, msg.DocType)
	return &Reply{OK: true, Type: "begin_ack", ID: msg.ID}
}

func (s *Server) handleChunk(msg Message) *Reply {
	data, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		// the chunk is reported and dropped; the session keeps its state
		decodeErrors.Inc()
		s.logger.Printf("decode error id=%s seq=%d: %v", msg.ID, msg.Seq, err)
		return &Reply{OK: false, Error: ErrDecode, ID: msg.ID, Seq: intPtr(msg.Seq)}
	}
	s.mgr.AddChunk(msg.ID, msg.Seq, data, msg.Total, msg.URL)
	chunksReceived.Inc()
	if s.ackEvery > 0 && msg.Seq%s.ackEvery == 0 {
		return &Reply{OK: true, Type: "ack", ID: msg.ID, Seq: intPtr(msg.Seq)}
	}
	return nil
}

func (s *Server) handleEnd(ctx context.Context, msg Message) *Reply {
	saved, err := s.dedup.Contains(ctx, msg.ID)
	if err != nil {
		s.logger.Printf("dedup lookup id=%s: %v", msg.ID, err)
	}
	if saved {
		s.logger.Printf("already saved id=%s, skip", msg.ID)
		return &Reply{OK: true, Skipped: true, Reason: "already_saved", ID: msg.ID}
	}

	fin, ok := s.mgr.Finalize(msg.ID)
	if !ok {
		s.logger.Printf("end without begin id=%s", msg.ID)
		return &Reply{OK: false, Error: ErrNoBegin, ID: msg.ID}
	}
	if fin.Missing > 0 {
		// session stays alive so the client can resend and retry end
		s.logger.Printf("missing chunks id=%s: %d", msg.ID, fin.Missing)
		return &Reply{OK: false, Error: ErrMissingChunks, ID: msg.ID, Missing: intPtr(fin.Missing)}
	}

	text := decodeText(fin.Payload)
	out := s.router.TargetPath(fin.URL, msg.ID, fin.DocType)
	if err := writeDocument(out, text); err != nil {
		s.logger.Printf("save id=%s: %v", msg.ID, err)
		return &Reply{OK: false, Error: err.Error(), ID: msg.ID}
	}

	if err := s.dedup.Add(ctx, msg.ID); err != nil {
		s.logger.Printf("dedup add id=%s: %v", msg.ID, err)
	}
	s.mgr.Remove(msg.ID)
	documentsSaved.Inc()
	s.logger.Printf("saved → %s (stream, docType=%s)", out, fin.DocType)
	return &Reply{OK: true, Saved: out, ID: msg.ID}
}

// handleParsed saves a one-shot, pre-assembled document. Off by default;
// streamed transfers are the normal path.
func (s *Server) handleParsed(msg Message) *Reply {
	if !s.parsed {
		return &Reply{OK: true, Skipped: true, Reason: "parsed_ignored"}
	}
	url := msg.URL
	if url == "" {
		url = "unknown"
	}
	id := uuid.NewString()
	out := s.router.TargetPath(url, id, msg.DocType)
	if err := writeDocument(out, msg.HTML); err != nil {
		s.logger.Printf("save parsed: %v", err)
		return &Reply{OK: false, Error: err.Error(), ID: id}
	}
	documentsSaved.Inc()
	s.logger.Printf("saved → %s (parsed)", out)
	return &Reply{OK: true, Saved: out, ID: id}
}

func writeDocument(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create target dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

// decodeText interprets an assembled payload as UTF-8, falling back to a
// permissive Latin-1 byte decode when it is not valid UTF-8. Nothing is ever
// rejected at this stage; a capture with a broken charset is still a capture.
func decodeText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}
