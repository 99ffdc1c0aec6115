package session

import "fmt"

// Status of the connection. Exactly one status holds at a time.
type Status int

const (
	// StatusIdle means not connected, not connecting, and not waiting
	// before retrying connection.
	StatusIdle Status = iota
	// StatusConnecting means the signaling websocket is being opened.
	StatusConnecting
	// StatusSignalingFailed means the signaling websocket failed to open.
	StatusSignalingFailed
	// StatusNegotiating means signaling is established and the media
	// pipeline is being negotiated.
	StatusNegotiating
	// StatusConnectedNoData means the pipeline is up but the event channel
	// handshake has not completed yet.
	StatusConnectedNoData
	// StatusConnected means the full session, event channel included, is up.
	StatusConnected
	// StatusDisconnectedError means disconnected following a connection
	// error; no retry.
	StatusDisconnectedError
	// StatusDisconnectedRemote means the remote side closed the channel;
	// no retry.
	StatusDisconnectedRemote
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusConnecting:
		return "Connecting"
	case StatusSignalingFailed:
		return "SignalingFailed"
	case StatusNegotiating:
		return "Negotiating"
	case StatusConnectedNoData:
		return "ConnectedNoData"
	case StatusConnected:
		return "Connected"
	case StatusDisconnectedError:
		return "DisconnectedError"
	case StatusDisconnectedRemote:
		return "DisconnectedRemote"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}
