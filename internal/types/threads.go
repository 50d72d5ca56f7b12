// Package types holds the wire-level types shared by the executor, the
// providers, and the thread store: chat completion request/response shapes
// and the positional content-part encoding used for persisted messages.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MessageContentType discriminates the kinds of multimodal content a
// message part can carry.
type MessageContentType string

const (
	MessageContentTypeText       MessageContentType = "Text"
	MessageContentTypeImageUrl   MessageContentType = "ImageUrl"
	MessageContentTypeInputAudio MessageContentType = "InputAudio"
)

// ImageDetail is the requested fidelity for image inputs.
type ImageDetail string

const (
	ImageDetailAuto ImageDetail = "Auto"
	ImageDetailLow  ImageDetail = "Low"
	ImageDetailHigh ImageDetail = "High"
)

// AudioFormat is the container format of audio inputs.
type AudioFormat string

const (
	AudioFormatMp3 AudioFormat = "Mp3"
	AudioFormatWav AudioFormat = "Wav"
)

// AudioDetail carries audio-specific options for an InputAudio part.
type AudioDetail struct {
	Type AudioFormat `json:"type"`
}

// ContentPartOptions holds the modality-specific options of a content
// part. Exactly one of the fields is set, keyed by the parent part's
// content type: Image for ImageUrl parts, Audio for InputAudio parts.
type ContentPartOptions struct {
	Image *ImageDetail
	Audio *AudioDetail
}

// MarshalJSON writes the option payload in its historical shape: a bare
// detail string for images, an object for audio.
func (o ContentPartOptions) MarshalJSON() ([]byte, error) {
	switch {
	case o.Image != nil:
		return json.Marshal(*o.Image)
	case o.Audio != nil:
		return json.Marshal(*o.Audio)
	default:
		return []byte("null"), nil
	}
}

// CacheControl is a caching hint attached to a content part, e.g.
// {"type":"ephemeral","ttl":"5m"}.
type CacheControl struct {
	Type string `json:"type"`
	TTL  string `json:"ttl,omitempty"`
}

// InvalidLengthError reports a positional content-part array that is
// shorter than the required three elements. Index names the first
// missing position.
type InvalidLengthError struct {
	Index int
}

func (e *InvalidLengthError) Error() string {
	return fmt.Sprintf("content part: invalid length, missing element at index %d", e.Index)
}

// ContentPart is one unit of multimodal message content. On the wire it
// is a positional array: historically 3 elements, later extended with an
// optional fourth cache-control element. Encoding always produces the
// 3-element form; the cache control is never persisted.
type ContentPart struct {
	Type              MessageContentType
	Value             string
	AdditionalOptions *ContentPartOptions
	CacheControl      *CacheControl
}

// MarshalJSON encodes the part as [type, value, options]. The fourth
// (cache control) element is intentionally omitted: decode accepts it for
// compatibility but it is a transient hint, not part of the stored form.
func (p ContentPart) MarshalJSON() ([]byte, error) {
	var opts any
	if p.AdditionalOptions != nil {
		opts = p.AdditionalOptions
	}
	return json.Marshal([]any{p.Type, p.Value, opts})
}

// UnmarshalJSON decodes either the 3- or 4-element positional form.
func (p *ContentPart) UnmarshalJSON(data []byte) error {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return fmt.Errorf("content part: expected a positional array: %w", err)
	}

	if len(elems) < 1 {
		return &InvalidLengthError{Index: 0}
	}
	var typ MessageContentType
	if err := json.Unmarshal(elems[0], &typ); err != nil {
		return fmt.Errorf("content part: %w", err)
	}
	switch typ {
	case MessageContentTypeText, MessageContentTypeImageUrl, MessageContentTypeInputAudio:
	default:
		return fmt.Errorf("content part: unknown content type %q", typ)
	}

	if len(elems) < 2 {
		return &InvalidLengthError{Index: 1}
	}
	var value string
	if err := json.Unmarshal(elems[1], &value); err != nil {
		return fmt.Errorf("content part: %w", err)
	}

	if len(elems) < 3 {
		return &InvalidLengthError{Index: 2}
	}
	opts, err := decodePartOptions(typ, elems[2])
	if err != nil {
		return err
	}

	var cc *CacheControl
	if len(elems) > 3 {
		cc = decodeCacheControl(elems[3])
	}

	*p = ContentPart{
		Type:              typ,
		Value:             value,
		AdditionalOptions: opts,
		CacheControl:      cc,
	}
	return nil
}

func isJSONNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

// decodePartOptions decodes element 2 keyed by the parent content type,
// so the option payload shape is never guessed from structure.
func decodePartOptions(typ MessageContentType, raw json.RawMessage) (*ContentPartOptions, error) {
	if isJSONNull(raw) {
		return nil, nil
	}

	switch typ {
	case MessageContentTypeImageUrl:
		var detail ImageDetail
		if err := json.Unmarshal(raw, &detail); err != nil {
			return nil, fmt.Errorf("content part: image options: %w", err)
		}
		switch detail {
		case ImageDetailAuto, ImageDetailLow, ImageDetailHigh:
		default:
			return nil, fmt.Errorf("content part: unknown image detail %q", detail)
		}
		return &ContentPartOptions{Image: &detail}, nil

	case MessageContentTypeInputAudio:
		var detail AudioDetail
		if err := json.Unmarshal(raw, &detail); err != nil {
			return nil, fmt.Errorf("content part: audio options: %w", err)
		}
		switch detail.Type {
		case AudioFormatMp3, AudioFormatWav:
		default:
			return nil, fmt.Errorf("content part: unknown audio format %q", detail.Type)
		}
		return &ContentPartOptions{Audio: &detail}, nil

	default:
		return nil, fmt.Errorf("content part: content type %q takes no options", typ)
	}
}

// decodeCacheControl is best-effort: a missing, null, or malformed cache
// directive yields nil rather than failing the whole part.
func decodeCacheControl(raw json.RawMessage) *CacheControl {
	if isJSONNull(raw) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var cc CacheControl
	if err := dec.Decode(&cc); err != nil {
		return nil
	}
	if cc.Type == "" {
		return nil
	}
	return &cc
}

// MessageType distinguishes who authored a stored message.
type MessageType string

const (
	MessageTypeHuman MessageType = "human"
	MessageTypeAI    MessageType = "ai"
)

// Message is a persisted thread message.
type Message struct {
	ModelName    string             `json:"model_name"`
	ThreadID     *string            `json:"thread_id,omitempty"`
	UserID       string             `json:"user_id"`
	ContentType  MessageContentType `json:"content_type"`
	Content      *string            `json:"content,omitempty"`
	ContentArray []ContentPart      `json:"content_array"`
	Type         MessageType        `json:"type"`
	ToolCallID   *string            `json:"tool_call_id,omitempty"`
	ToolCalls    []ToolCall         `json:"tool_calls,omitempty"`
}

// UnmarshalJSON normalizes tool_calls, which historically arrived either
// as a native array or as a JSON string embedding the array.
func (m *Message) UnmarshalJSON(data []byte) error {
	var helper struct {
		ModelName    string             `json:"model_name"`
		ThreadID     *string            `json:"thread_id"`
		UserID       string             `json:"user_id"`
		ContentType  MessageContentType `json:"content_type"`
		Content      *string            `json:"content"`
		ContentArray []ContentPart      `json:"content_array"`
		Type         MessageType        `json:"type"`
		ToolCallID   *string            `json:"tool_call_id"`
		ToolCalls    json.RawMessage    `json:"tool_calls"`
	}
	if err := json.Unmarshal(data, &helper); err != nil {
		return err
	}

	toolCalls, err := normalizeToolCalls(helper.ToolCalls)
	if err != nil {
		return err
	}

	*m = Message{
		ModelName:    helper.ModelName,
		ThreadID:     helper.ThreadID,
		UserID:       helper.UserID,
		ContentType:  helper.ContentType,
		Content:      helper.Content,
		ContentArray: helper.ContentArray,
		Type:         helper.Type,
		ToolCallID:   helper.ToolCallID,
		ToolCalls:    toolCalls,
	}
	return nil
}

// normalizeToolCalls accepts a JSON array, a string embedding a JSON
// value, or anything else (dropped). A string that is not valid JSON is a
// hard error; a valid JSON value that is not a tool-call array is dropped.
func normalizeToolCalls(raw json.RawMessage) ([]ToolCall, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("tool_calls: %w", err)
		}
		var inner json.RawMessage
		if err := json.Unmarshal([]byte(s), &inner); err != nil {
			return nil, fmt.Errorf("tool_calls: embedded value is not valid JSON: %w", err)
		}
		var calls []ToolCall
		if err := json.Unmarshal(inner, &calls); err != nil {
			return nil, nil
		}
		return calls, nil
	case '[':
		var calls []ToolCall
		if err := json.Unmarshal(trimmed, &calls); err != nil {
			return nil, nil
		}
		return calls, nil
	default:
		return nil, nil
	}
}

// InnerMessage is the two-variant content representation consumed by
// downstream formatting: plain text or an ordered sequence of parts. The
// parts variant wins whenever any parts are present.
type InnerMessage struct {
	Text  string
	Parts []ContentPart
}

// IsText reports whether the message is the plain-text variant.
func (m InnerMessage) IsText() bool {
	return len(m.Parts) == 0
}

// String flattens the content to text, concatenating text parts for the
// parts variant.
func (m InnerMessage) String() string {
	if m.IsText() {
		return m.Text
	}
	var out string
	for _, part := range m.Parts {
		if part.Type == MessageContentTypeText {
			out += part.Value
		}
	}
	return out
}

// MarshalJSON writes the text variant as a bare string and the parts
// variant as an array of positional parts.
func (m InnerMessage) MarshalJSON() ([]byte, error) {
	if m.IsText() {
		return json.Marshal(m.Text)
	}
	return json.Marshal(m.Parts)
}

// UnmarshalJSON accepts either a bare string or an array of parts.
func (m *InnerMessage) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = InnerMessage{Text: s}
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	*m = InnerMessage{Parts: parts}
	return nil
}

// Text returns a text-variant InnerMessage.
func Text(s string) InnerMessage {
	return InnerMessage{Text: s}
}

// Parts returns a parts-variant InnerMessage.
func Parts(parts ...ContentPart) InnerMessage {
	return InnerMessage{Parts: parts}
}

// Inner derives the message's content representation: the parts variant
// when any content parts are present, otherwise the plain text (empty
// when absent).
func (m Message) Inner() InnerMessage {
	if len(m.ContentArray) > 0 {
		return InnerMessage{Parts: m.ContentArray}
	}
	var text string
	if m.Content != nil {
		text = *m.Content
	}
	return InnerMessage{Text: text}
}
