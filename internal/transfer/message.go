package transfer

// Message is one client→server frame of the chunked-transfer protocol.
// Type selects which of the remaining fields are meaningful.
type Message struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Total   int    `json:"total,omitempty"`
	Seq     int    `json:"seq,omitempty"`
	URL     string `json:"url,omitempty"`
	DocType string `json:"docType,omitempty"`
	Data    string `json:"data,omitempty"` // base64 chunk payload
	HTML    string `json:"html,omitempty"` // one-shot parsed document
}

// Message types accepted by the server.
const (
	MsgBegin  = "begin"
	MsgChunk  = "chunk"
	MsgEnd    = "end"
	MsgParsed = "parsed"
)

// Reply is one server→client frame. Fields are omitted when empty so each
// reply kind carries exactly the shape the protocol table defines.
type Reply struct {
	OK      bool   `json:"ok"`
	Type    string `json:"type,omitempty"`
	ID      string `json:"id,omitempty"`
	Seq     *int   `json:"seq,omitempty"`
	Saved   string `json:"saved,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Error   string `json:"error,omitempty"`
	Missing *int   `json:"missing,omitempty"`
}

// Reply error codes.
const (
	ErrDecode        = "decode"
	ErrMissingChunks = "missing_chunks"
	ErrNoBegin       = "no_begin"
)

func intPtr(v int) *int { return &v }
