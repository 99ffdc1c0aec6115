package input

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarshalLayout(t *testing.T) {
	cmd := Command{Type: CursorMove, Data0: 0x04030201, Data1: 0x08070605}
	buf := cmd.Marshal()
	assert.Equal(t, CommandSize, len(buf))
	assert.Equal(t, []byte{4, 1, 2, 3, 4, 5, 6, 7, 8}, buf)
}

func TestAxisRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		x, y float32
	}{
		{"zero", 0, 0},
		{"normalized", 0.5, -0.25},
		{"negative zero", float32(math.Copysign(0, -1)), 0},
		{"nan", float32(math.NaN()), float32(math.NaN())},
		{"inf", float32(math.Inf(1)), float32(math.Inf(-1))},
		{"extremes", math.MaxFloat32, math.SmallestNonzeroFloat32},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := NewAxisCommand(CursorMove, tc.x, tc.y)
			decoded, err := Unmarshal(cmd.Marshal())
			assert.NoError(t, err)
			assert.Equal(t, CursorMove, decoded.Type)
			x, y := decoded.Axes()
			// Compare raw bits so NaN payloads and negative zero count.
			assert.Equal(t, math.Float32bits(tc.x), math.Float32bits(x))
			assert.Equal(t, math.Float32bits(tc.y), math.Float32bits(y))
		})
	}
}

func TestAllTypesRoundTrip(t *testing.T) {
	for ty := CursorLeftDown; ty <= GamepadButtonSelect; ty++ {
		cmd := NewAxisCommand(ty, 0.125, -3)
		decoded, err := Unmarshal(cmd.Marshal())
		assert.NoError(t, err)
		assert.Equal(t, cmd, decoded)
	}
}

func TestButtonCommand(t *testing.T) {
	down := NewButtonCommand(GamepadButtonA, true)
	assert.Equal(t, int32(1), down.Data0)
	assert.Equal(t, int32(0), down.Data1)

	up := NewButtonCommand(GamepadButtonA, false)
	assert.Equal(t, int32(0), up.Data0)
}

func TestUnmarshalRejectsWrongSize(t *testing.T) {
	_, err := Unmarshal(make([]byte, 8))
	assert.Error(t, err)
	_, err = Unmarshal(make([]byte, 10))
	assert.Error(t, err)
}

func TestDeliveryClass(t *testing.T) {
	unsequenced := map[Type]bool{
		CursorMove:        true,
		GamepadLeftStick:  true,
		GamepadRightStick: true,
	}
	for ty := CursorLeftDown; ty <= GamepadButtonSelect; ty++ {
		want := Reliable
		if unsequenced[ty] {
			want = Unsequenced
		}
		assert.Equal(t, want, ClassOf(ty), "type %s", ty)
	}
}
