// internal/parser/response.go
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Stage names the parse attempt that produced a Response
type Stage string

const (
	StageDirect     Stage = "direct"
	StageTruncation Stage = "truncation"
	StageEscaping   Stage = "escaping"
	StageAggressive Stage = "aggressive"
	StageFailed     Stage = "failed"
)

// InstructionKind discriminates the shapes a file tree entry can take
type InstructionKind int

const (
	KindInvalid InstructionKind = iota
	KindUpsert
	KindDelete
)

func (k InstructionKind) String() string {
	switch k {
	case KindUpsert:
		return "upsert"
	case KindDelete:
		return "delete"
	default:
		return "invalid"
	}
}

// Instruction is one decoded file tree entry. Exactly one of the
// upsert/delete shapes is ever reported; anything else is KindInvalid
// with Reason set.
type Instruction struct {
	Kind     InstructionKind
	Contents string
	Reason   string

	raw json.RawMessage
}

// Upsert builds a create/modify instruction
func Upsert(contents string) Instruction {
	return Instruction{Kind: KindUpsert, Contents: contents}
}

// Delete builds a deletion marker
func Delete() Instruction {
	return Instruction{Kind: KindDelete}
}

// DecodeInstruction classifies a raw entry. Both the wrapped form
// {"file":{"contents":"..."}} and the bare form {"contents":"..."} are
// accepted.
func DecodeInstruction(data []byte) Instruction {
	inst := Instruction{raw: append(json.RawMessage(nil), data...)}

	node := gjson.ParseBytes(data)
	if !node.IsObject() {
		inst.Reason = "entry is not an object"
		return inst
	}
	if file := node.Get("file"); file.Exists() {
		if !file.IsObject() {
			inst.Reason = "file is not an object"
			return inst
		}
		node = file
	}

	deleted := node.Get("deleted")
	contents := node.Get("contents")

	switch {
	case deleted.Type == gjson.True && contents.Exists():
		inst.Reason = "entry carries both deleted and contents"
	case deleted.Type == gjson.True:
		inst.Kind = KindDelete
	case contents.Exists() && contents.Type != gjson.String:
		inst.Reason = fmt.Sprintf("contents is %s, not a string", contents.Type)
	case contents.Exists():
		inst.Kind = KindUpsert
		inst.Contents = contents.String()
	default:
		inst.Reason = "entry has neither contents nor a deleted marker"
	}
	return inst
}

// MarshalJSON re-emits the entry exactly as it was received, or the
// canonical {"file":{...}} shape for instructions built in code.
func (i Instruction) MarshalJSON() ([]byte, error) {
	if len(i.raw) > 0 {
		return i.raw, nil
	}
	switch i.Kind {
	case KindDelete:
		return []byte(`{"file":{"deleted":true}}`), nil
	case KindUpsert:
		contents, err := json.Marshal(i.Contents)
		if err != nil {
			return nil, err
		}
		return []byte(`{"file":{"contents":` + string(contents) + `}}`), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler
func (i *Instruction) UnmarshalJSON(data []byte) error {
	*i = DecodeInstruction(data)
	return nil
}

// Response is the structured form of one model reply
type Response struct {
	Text     string
	FileTree map[string]Instruction

	Error            bool
	ErrorMessage     string
	OriginalResponse string

	// Stage is the attempt that succeeded, or StageFailed
	Stage Stage

	// fields holds every top-level member as received so the client
	// payload round-trips unknown keys untouched
	fields map[string]json.RawMessage
}

// HasFileTree reports whether the reply carried any file entries
func (r *Response) HasFileTree() bool {
	return len(r.FileTree) > 0
}

// ValidFiles counts entries that decoded to an upsert or delete
func (r *Response) ValidFiles() int {
	n := 0
	for _, inst := range r.FileTree {
		if inst.Kind != KindInvalid {
			n++
		}
	}
	return n
}

type errorPayload struct {
	Text             string `json:"text"`
	Error            bool   `json:"error"`
	ErrorMessage     string `json:"errorMessage"`
	OriginalResponse string `json:"originalResponse,omitempty"`
}

// MarshalJSON produces the client payload
func (r *Response) MarshalJSON() ([]byte, error) {
	if r.Error {
		return json.Marshal(errorPayload{
			Text:             r.Text,
			Error:            true,
			ErrorMessage:     r.ErrorMessage,
			OriginalResponse: r.OriginalResponse,
		})
	}
	if r.fields != nil {
		return json.Marshal(r.fields)
	}

	out := make(map[string]any, 2)
	if r.Text != "" {
		out["text"] = r.Text
	}
	if r.FileTree != nil {
		out["fileTree"] = r.FileTree
	}
	return json.Marshal(out)
}

// Payload returns the client payload as a string. It never fails: an
// encoding error is reported through the error payload shape instead.
func (r *Response) Payload() string {
	data, err := json.Marshal(r)
	if err != nil {
		data, _ = json.Marshal(errorPayload{
			Text:         failureText,
			Error:        true,
			ErrorMessage: fmt.Sprintf("encode response: %v", err),
		})
	}
	return string(data)
}

// NewErrorResponse builds the error payload used for every failure the
// caller can see
func NewErrorResponse(message, original string) *Response {
	return &Response{
		Text:             failureText,
		Error:            true,
		ErrorMessage:     message,
		OriginalResponse: truncateRunes(original, originalResponseLimit),
		Stage:            StageFailed,
	}
}

// decode is a strict decode of one candidate document
func decode(text string) (*Response, error) {
	data := []byte(text)
	if len(bytes.TrimSpace(data)) == 0 || bytes.TrimSpace(data)[0] != '{' {
		return nil, fmt.Errorf("response is not a JSON object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}

	resp := &Response{fields: fields}
	if raw, ok := fields["text"]; ok {
		var text string
		if json.Unmarshal(raw, &text) == nil {
			resp.Text = text
		}
	}

	if raw, ok := fields["fileTree"]; ok && !isNull(raw) {
		var tree map[string]json.RawMessage
		if err := json.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("fileTree is not an object: %w", err)
		}
		resp.FileTree = make(map[string]Instruction, len(tree))
		for path, entry := range tree {
			resp.FileTree[path] = DecodeInstruction(entry)
		}
	}

	return resp, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
