package signaling

import (
	"encoding/json"

	"github.com/pion/webrtc/v3"
)

// Control messages carry a top-level "msg" discriminator. Only the offer and
// candidate payloads get typed decoding; everything else is surfaced raw so
// the schema can evolve on the host side without breaking this client.
const (
	MessageOffer     = "offer"
	MessageCandidate = "candidate"
	MessageSession   = "session"
)

type receivedMessage struct {
	Msg     string `json:"msg"`
	Payload []byte
}

func (m *receivedMessage) UnmarshalJSON(bytes []byte) error {
	var t struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(bytes, &t); err != nil {
		return err
	}
	m.Msg = t.Msg
	m.Payload = bytes
	return nil
}

type offerMessage struct {
	Msg string `json:"msg"`
	SDP string `json:"sdp"`
}

type candidateMessage struct {
	Msg       string                   `json:"msg"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// Message is one decoded control message delivered to the owner.
type Message struct {
	Msg string
	// Offer is set for "offer" messages.
	Offer *webrtc.SessionDescription
	// Candidate is set for "candidate" messages.
	Candidate *webrtc.ICECandidateInit
	// Raw is the full message body, always set.
	Raw json.RawMessage
}

// inputEventMessage is the legacy JSON input path, superseded by the binary
// event channel but still understood by older hosts.
type inputEventMessage struct {
	MsgType   string  `json:"msg-type"`
	InputType int     `json:"input-type"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}
