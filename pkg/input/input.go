package input

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Type identifies one discrete input event. The numeric values are part of
// the wire protocol and must match the host's table exactly.
type Type uint8

const (
	CursorLeftDown Type = iota
	CursorLeftUp
	CursorLeftClick
	CursorRightClick
	CursorMove
	CursorScroll
	GamepadButtonX
	GamepadButtonY
	GamepadButtonA
	GamepadButtonB
	GamepadButtonL1
	GamepadButtonR1
	GamepadButtonL2
	GamepadButtonR2
	GamepadUp
	GamepadDown
	GamepadLeft
	GamepadRight
	GamepadLeftStick
	GamepadRightStick
	GamepadButtonStart
	GamepadButtonSelect
)

var typeNames = map[Type]string{
	CursorLeftDown:      "CursorLeftDown",
	CursorLeftUp:        "CursorLeftUp",
	CursorLeftClick:     "CursorLeftClick",
	CursorRightClick:    "CursorRightClick",
	CursorMove:          "CursorMove",
	CursorScroll:        "CursorScroll",
	GamepadButtonX:      "GamepadButtonX",
	GamepadButtonY:      "GamepadButtonY",
	GamepadButtonA:      "GamepadButtonA",
	GamepadButtonB:      "GamepadButtonB",
	GamepadButtonL1:     "GamepadButtonL1",
	GamepadButtonR1:     "GamepadButtonR1",
	GamepadButtonL2:     "GamepadButtonL2",
	GamepadButtonR2:     "GamepadButtonR2",
	GamepadUp:           "GamepadUp",
	GamepadDown:         "GamepadDown",
	GamepadLeft:         "GamepadLeft",
	GamepadRight:        "GamepadRight",
	GamepadLeftStick:    "GamepadLeftStick",
	GamepadRightStick:   "GamepadRightStick",
	GamepadButtonStart:  "GamepadButtonStart",
	GamepadButtonSelect: "GamepadButtonSelect",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// DeliveryClass decides how a command travels over the event channel.
type DeliveryClass int

const (
	// Reliable commands must arrive, in program order.
	Reliable DeliveryClass = iota
	// Unsequenced commands carry continuously superseded values (pointer
	// and stick motion); losing or reordering them is acceptable.
	Unsequenced
)

// ClassOf returns the delivery class for a command type. Only continuous
// motion goes unsequenced; every discrete press or click is reliable.
func ClassOf(t Type) DeliveryClass {
	switch t {
	case CursorMove, GamepadLeftStick, GamepadRightStick:
		return Unsequenced
	default:
		return Reliable
	}
}

// CommandSize is the exact wire size of one encoded command.
const CommandSize = 9

// Command is one input event: [type u8][data0 i32 LE][data1 i32 LE],
// 9 bytes with no padding. For cursor and stick events data0/data1 hold the
// raw bit pattern of two float32 values; for buttons data0 is 0 or 1.
type Command struct {
	Type  Type
	Data0 int32
	Data1 int32
}

// NewAxisCommand builds a command whose payload is two float32 values
// reinterpreted bit for bit. No rounding happens, so NaN and friends
// survive the trip.
func NewAxisCommand(t Type, x, y float32) Command {
	return Command{
		Type:  t,
		Data0: int32(math.Float32bits(x)),
		Data1: int32(math.Float32bits(y)),
	}
}

// NewButtonCommand builds a command for a discrete press or release.
func NewButtonCommand(t Type, pressed bool) Command {
	var state int32
	if pressed {
		state = 1
	}
	return Command{Type: t, Data0: state}
}

// Axes reverses the bit reinterpretation done by NewAxisCommand.
func (c Command) Axes() (x, y float32) {
	return math.Float32frombits(uint32(c.Data0)), math.Float32frombits(uint32(c.Data1))
}

// Marshal encodes the command into its fixed 9-byte layout. The receiving
// process reads byte 0 as the discriminant, so the layout is built by hand
// instead of relying on struct memory layout.
func (c Command) Marshal() []byte {
	buf := make([]byte, CommandSize)
	buf[0] = byte(c.Type)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(c.Data0))
	binary.LittleEndian.PutUint32(buf[5:9], uint32(c.Data1))
	return buf
}

// Unmarshal decodes a 9-byte buffer produced by Marshal. The client is
// send-only; this mirrors the host side's parser.
func Unmarshal(data []byte) (Command, error) {
	if len(data) != CommandSize {
		return Command{}, errors.Errorf("wrong command size: %d", len(data))
	}
	return Command{
		Type:  Type(data[0]),
		Data0: int32(binary.LittleEndian.Uint32(data[1:5])),
		Data1: int32(binary.LittleEndian.Uint32(data[5:9])),
	}, nil
}
