package orchestrate

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// Placeholder answers used when the agent output has no extractable text.
const (
	NoResultText      = "No result text found."
	NoResponse        = "The agent returned no response."
	UserDefinedMarker = "[user_defined response]"
)

// ChatResponse is the normalized reply returned to API clients. Data is the
// agent's JSON body, unmodified.
type ChatResponse struct {
	Status string          `json:"status"`
	Answer string          `json:"answer"`
	Data   json.RawMessage `json:"data"`
}

var errNotObject = errors.New("agent response is not a JSON object")

// GenericItem is one entry of a V2 output.generic list. The set of
// implementations is closed: TextItem, OptionItem, UserDefinedItem and
// UnknownItem.
type GenericItem interface {
	contribution() string
}

// TextItem is a plain text reply.
type TextItem struct{ Text string }

// OptionItem offers choices; only its title is shown.
type OptionItem struct{ Title string }

// UserDefinedItem carries an application payload the relay cannot render.
type UserDefinedItem struct{}

// UnknownItem is any other response_type. It contributes nothing.
type UnknownItem struct{ ResponseType string }

func (i TextItem) contribution() string      { return i.Text }
func (i OptionItem) contribution() string    { return i.Title }
func (UserDefinedItem) contribution() string { return UserDefinedMarker }
func (UnknownItem) contribution() string     { return "" }

type rawGenericItem struct {
	ResponseType string `json:"response_type"`
	Text         string `json:"text"`
	Title        string `json:"title"`
}

// DecodeGenericItem maps a raw item onto its variant. Items that fail to
// decode are Unknown.
func DecodeGenericItem(raw json.RawMessage) GenericItem {
	var item rawGenericItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return UnknownItem{}
	}
	switch item.ResponseType {
	case "text":
		return TextItem{Text: item.Text}
	case "option":
		return OptionItem{Title: item.Title}
	case "user_defined":
		return UserDefinedItem{}
	}
	return UnknownItem{ResponseType: item.ResponseType}
}

// JoinGeneric joins the non-empty contributions of items with newlines.
func JoinGeneric(items []GenericItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if c := item.contribution(); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// decodeObject parses body as a JSON object. null, arrays and scalars fail.
func decodeObject(body []byte) (map[string]json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errNotObject
	}
	if doc == nil {
		return nil, errNotObject
	}
	return doc, nil
}

// NormalizeV1 extracts the answer from a legacy response: the first
// result's data.output, then top-level output, then a placeholder.
func NormalizeV1(body []byte) (string, error) {
	doc, err := decodeObject(body)
	if err != nil {
		return "", err
	}

	var results []json.RawMessage
	_ = json.Unmarshal(doc["results"], &results)

	if len(results) == 0 {
		if s, ok := renderOutput(doc["output"]); ok {
			return s, nil
		}
		return NoResponse, nil
	}

	var first struct {
		Data struct {
			Output json.RawMessage `json:"output"`
		} `json:"data"`
	}
	_ = json.Unmarshal(results[0], &first)
	if s, ok := renderOutput(first.Data.Output); ok {
		return s, nil
	}
	if s, ok := renderOutput(doc["output"]); ok {
		return s, nil
	}
	return NoResultText, nil
}

// renderOutput turns an output value into answer text. Strings are used as
// is; other JSON values are rendered compactly. Absent and null report false.
func renderOutput(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw), true
	}
	return buf.String(), true
}

// NormalizeV2 walks output.generic in order and joins what each item
// contributes. An empty result becomes the no-response placeholder.
func NormalizeV2(body []byte) (string, error) {
	doc, err := decodeObject(body)
	if err != nil {
		return "", err
	}

	var output struct {
		Generic []json.RawMessage `json:"generic"`
	}
	_ = json.Unmarshal(doc["output"], &output)

	items := make([]GenericItem, 0, len(output.Generic))
	for _, raw := range output.Generic {
		items = append(items, DecodeGenericItem(raw))
	}
	if answer := JoinGeneric(items); answer != "" {
		return answer, nil
	}
	return NoResponse, nil
}

// normalize builds the client response for a 2xx agent body.
func normalize(version Version, body []byte) (*ChatResponse, error) {
	var (
		answer string
		err    error
	)
	if version == V1 {
		answer, err = NormalizeV1(body)
	} else {
		answer, err = NormalizeV2(body)
	}
	if err != nil {
		return nil, err
	}
	return &ChatResponse{Status: "success", Answer: answer, Data: json.RawMessage(body)}, nil
}
