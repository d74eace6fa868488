package domain

// MediaRef points to a media file either by remote URL or local path
type MediaRef struct {
	Kind MediaKind `json:"type,omitempty" yaml:"type,omitempty"`
	URL  string    `json:"url,omitempty" yaml:"url,omitempty"`
	Path string    `json:"path,omitempty" yaml:"path,omitempty"`
}

// MediaKind is the kind of a media file
type MediaKind string

const (
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaDocument  MediaKind = "document"
	MediaVideoNote MediaKind = "video_note"
)

// Empty reports whether the reference points nowhere
func (m MediaRef) Empty() bool {
	return m.URL == "" && m.Path == ""
}

// Button is an inline control: a link when URL is set, a callback otherwise
type Button struct {
	Text string `json:"text" yaml:"text"`
	URL  string `json:"url,omitempty" yaml:"url,omitempty"`
	Data string `json:"callback_data,omitempty" yaml:"callback_data,omitempty"`
}

// MessageKind selects how an Outgoing message is delivered
type MessageKind string

const (
	MessageText      MessageKind = "text"
	MessagePhoto     MessageKind = "photo"
	MessageVideo     MessageKind = "video"
	MessageDocument  MessageKind = "document"
	MessageVideoNote MessageKind = "video_note"
	MessageAlbum     MessageKind = "album"
)

// Outgoing is a transport independent message. Text is the body for text
// messages and the caption for media.
type Outgoing struct {
	Kind    MessageKind
	Text    string
	Media   MediaRef
	Album   []MediaRef
	Buttons [][]Button
}

// TextMessage builds a plain text message
func TextMessage(text string, buttons ...[]Button) Outgoing {
	return Outgoing{Kind: MessageText, Text: text, Buttons: buttons}
}
