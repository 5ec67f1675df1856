package model

import (
	"time"
)

// State identifies the conversation step awaiting user input.
type State string

const (
	StateLanguage    State = "language"
	StateAction      State = "action"
	StateDescription State = "description"
	StateMedia       State = "media"
	StateLocation    State = "location"
	StateDone        State = "done"
)

type InputKind string

const (
	InputNone     InputKind = "none"
	InputText     InputKind = "text"
	InputPhoto    InputKind = "photo"
	InputVideo    InputKind = "video"
	InputLocation InputKind = "location"
	InputCancel   InputKind = "cancel"
	InputReset    InputKind = "reset"
)

// Input is one user message, already normalized by the transport.
type Input struct {
	Kind   InputKind
	Text   string
	Blob   []byte
	Width  int
	Height int
	Lat    float64
	Lon    float64
}

func TextInput(text string) Input {
	return Input{Kind: InputText, Text: text}
}

func PhotoInput(blob []byte, width, height int) Input {
	return Input{Kind: InputPhoto, Blob: blob, Width: width, Height: height}
}

func VideoInput(blob []byte) Input {
	return Input{Kind: InputVideo, Blob: blob}
}

func LocationInput(lat, lon float64) Input {
	return Input{Kind: InputLocation, Lat: lat, Lon: lon}
}

func CancelInput() Input {
	return Input{Kind: InputCancel}
}

func ResetInput() Input {
	return Input{Kind: InputReset}
}

type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
)

// Media is one uploaded item with its durable URL.
type Media struct {
	URL          string
	ThumbnailURL string
	Kind         MediaKind
	Width        int
	Height       int
}

// Provider identifies a recognized map link provider.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderYandex Provider = "yandex"
)

func (p Provider) DisplayName() string {
	switch p {
	case ProviderGoogle:
		return "Google Maps"
	case ProviderYandex:
		return "Yandex Maps"
	}
	return string(p)
}

type Coordinates struct {
	Lat float64
	Lon float64
}

type ExternalLink struct {
	Provider Provider
	URL      string
	RawText  string
}

// Location holds exactly one of the three location variants.
type Location struct {
	Coordinates *Coordinates
	PhotoURL    string
	Link        *ExternalLink
}

func (l Location) IsSet() bool {
	return l.Coordinates != nil || l.PhotoURL != "" || l.Link != nil
}

// Reporter is the chat-platform identity captured at conversation start.
type Reporter struct {
	FirstName string
	Username  string
}

// ScratchReport accumulates one conversation's draft report. It is owned by a
// single conversation and is discarded on completion or cancellation.
type ScratchReport struct {
	Language    string
	Action      string
	Description string
	Media       []Media
	Comments    []string
	Location    Location
	Reporter    Reporter
	StartedAt   time.Time
}

// WellFormed reports whether the draft satisfies the persistence invariant.
func (r *ScratchReport) WellFormed(mediaRequired bool) bool {
	if r.Language == "" || r.Action == "" || r.Description == "" {
		return false
	}
	if mediaRequired && len(r.Media) == 0 {
		return false
	}
	return r.Location.IsSet()
}

// Conversation is the per-chat state threaded through the engine.
type Conversation struct {
	ChatID int64
	State  State
	Report *ScratchReport
}

// Preference is a user's remembered language choice.
type Preference struct {
	Username string
	Language string
}
