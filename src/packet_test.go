package lampyrid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func Test_convert_millis_adr_boundaries(t *testing.T) {
	assert.Equal(t, uint8(0), convert_millis_adr(0))
	assert.Equal(t, uint8(0), convert_millis_adr(9))
	assert.Equal(t, uint8(1), convert_millis_adr(10))
	assert.Equal(t, uint8(127), convert_millis_adr(1279))

	// 1280 ms flips to the coarse 100 ms unit with the high bit set
	assert.Equal(t, uint8(0x80|12), convert_millis_adr(1280))
	assert.Equal(t, uint8(0x80|25), convert_millis_adr(2500))
}

func Test_convert_millis_sustain_boundaries(t *testing.T) {
	// zero is the hold-until-off sentinel
	assert.Equal(t, uint8(255), convert_millis_sustain(0))

	assert.Equal(t, uint8(0), convert_millis_sustain(1))
	assert.Equal(t, uint8(0), convert_millis_sustain(99))
	assert.Equal(t, uint8(1), convert_millis_sustain(100))
	assert.Equal(t, uint8(127), convert_millis_sustain(12799))

	// 12.8 s flips to whole seconds with the high bit set
	assert.Equal(t, uint8(0x80|12), convert_millis_sustain(12800))
	assert.Equal(t, uint8(0x80|60), convert_millis_sustain(60000))
}

func Test_convert_millis_adr_monotone(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var a = rapid.Uint32Range(0, 1279).Draw(t, "a")
		var b = rapid.Uint32Range(a, 1279).Draw(t, "b")

		assert.LessOrEqual(t, convert_millis_adr(a), convert_millis_adr(b))
		assert.Zero(t, convert_millis_adr(a)&0x80, "fine band must keep the high bit clear")
	})

	rapid.Check(t, func(t *rapid.T) {
		var a = rapid.Uint32Range(1280, 12799).Draw(t, "a")
		var b = rapid.Uint32Range(a, 12799).Draw(t, "b")

		assert.LessOrEqual(t, convert_millis_adr(a), convert_millis_adr(b))
		assert.NotZero(t, convert_millis_adr(a)&0x80, "coarse band must set the high bit")
	})
}

func Test_convert_millis_sustain_monotone(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var a = rapid.Uint32Range(1, 12799).Draw(t, "a")
		var b = rapid.Uint32Range(a, 12799).Draw(t, "b")

		assert.LessOrEqual(t, convert_millis_sustain(a), convert_millis_sustain(b))
	})
}

func Test_convert_tempo(t *testing.T) {
	assert.Equal(t, uint8(120), convert_tempo(120))
	assert.Equal(t, uint8(120), convert_tempo(120.4))
	assert.Equal(t, uint8(121), convert_tempo(120.6))
	assert.Equal(t, uint8(0), convert_tempo(0))
	assert.Equal(t, uint8(255), convert_tempo(1000))
}

func Test_is_broadcast(t *testing.T) {
	var show = ShowPacket{}

	// empty target list: every receiver
	assert.True(t, (&Packet{Payload: &show}).is_broadcast())

	// multiple targets
	assert.True(t, (&Packet{Recipients: []uint8{80, 81}, Payload: &show}).is_broadcast())

	// a single group target
	assert.True(t, (&Packet{Recipients: []uint8{10}, Payload: &show}).is_broadcast())

	// a single receiver target is the only unicast case
	assert.False(t, (&Packet{Recipients: []uint8{80}, Payload: &show}).is_broadcast())
}

func Test_marshal_show_unicast(t *testing.T) {
	var packet = Packet{
		Recipients: []uint8{81},
		Payload: &ShowPacket{
			Effect:  EFFECT_CHASE,
			Color:   Color{H: 1, S: 2, V: 3},
			Attack:  4,
			Sustain: 5,
			Release: 6,
			Param1:  7,
			Param2:  8,
			Tempo:   120,
		},
	}

	var frame = packet.Marshal(1, 42, 0)

	assert.Equal(t, []byte{
		14,        // length of everything after this byte
		81,        // sole receiver, not the broadcast address
		1, 42, 0,  // from, packet id, flags
		3,         // chase
		1, 2, 3,   // hsv
		4, 5, 6,   // attack, sustain, release
		7, 8, 120, // params, tempo
	}, frame)
}

func Test_marshal_show_broadcast_appends_targets(t *testing.T) {
	var packet = Packet{
		Recipients: []uint8{10},
		Payload: &ShowPacket{
			Effect:  EFFECT_POP,
			Color:   Color{H: 0, S: 255, V: 255},
			Sustain: 255,
			Tempo:   120,
		},
	}

	var frame = packet.Marshal(1, 0, 0)

	assert.Equal(t, []byte{
		15,
		0xFF, // group target forces the broadcast address
		1, 0, 0,
		1,
		0, 255, 255,
		0, 255, 0,
		0, 0, 120,
		10, // the logical target list rides after the payload
	}, frame)
}

func Test_marshal_control(t *testing.T) {
	var packet = Packet{
		Recipients: []uint8{80},
		Payload:    set_led_count_command(300),
	}

	var frame = packet.Marshal(2, 7, 0)

	assert.Equal(t, []byte{
		9,
		80,
		2, 7, 0,
		0xFF,              // command marker
		110,               // set led count
		0x01, 0x2C, 0x00,  // 300 big-endian, then padding
	}, frame)
}

func Test_marshal_reset_broadcast(t *testing.T) {
	var packet = Packet{Payload: reset_command()}

	var frame = packet.Marshal(1, 3, 0)

	assert.Equal(t, []byte{9, 0xFF, 1, 3, 0, 0xFF, 255, 0, 0, 0}, frame)
}

func Test_frame_round_trip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var sp = ShowPacket{
			Effect: EffectId(rapid.Uint8Range(0, 20).Draw(t, "effect")),
			Color: Color{
				H: rapid.Uint8().Draw(t, "h"),
				S: rapid.Uint8().Draw(t, "s"),
				V: rapid.Uint8().Draw(t, "v"),
			},
			Attack:  rapid.Uint8().Draw(t, "attack"),
			Sustain: rapid.Uint8().Draw(t, "sustain"),
			Release: rapid.Uint8().Draw(t, "release"),
			Param1:  rapid.Uint8().Draw(t, "param1"),
			Param2:  rapid.Uint8().Draw(t, "param2"),
			Tempo:   rapid.Uint8().Draw(t, "tempo"),
		}

		var recipients = rapid.SliceOfN(rapid.Uint8Range(10, 254), 0, 5).Draw(t, "recipients")

		var packet = Packet{Recipients: recipients, Payload: &sp}
		var from = rapid.Uint8Range(0, 9).Draw(t, "from")
		var pkt_id = rapid.Uint8().Draw(t, "pkt_id")

		var frame = packet.Marshal(from, pkt_id, 0)

		require.LessOrEqual(t, len(frame), MAX_FRAME_LEN)
		assert.Equal(t, int(frame[0]), len(frame)-1)

		var info, parseErr = ParseFrame(frame)
		require.NoError(t, parseErr)

		assert.Equal(t, from, info.FromId)
		assert.Equal(t, pkt_id, info.PacketId)
		require.NotNil(t, info.Show)
		assert.Equal(t, sp, *info.Show)

		if packet.is_broadcast() {
			assert.Equal(t, uint8(0xFF), info.Dest)
			if len(recipients) > 0 {
				assert.Equal(t, recipients, info.Targets)
			} else {
				assert.Empty(t, info.Targets)
			}
		} else {
			assert.Equal(t, recipients[0], info.Dest)
			assert.Empty(t, info.Targets)
		}
	})
}

func Test_parse_frame_rejects_garbage(t *testing.T) {
	var _, shortErr = ParseFrame([]byte{1, 2, 3})
	assert.Error(t, shortErr)

	var frame = (&Packet{Payload: reset_command()}).Marshal(1, 0, 0)
	frame[0] = 99
	var _, lengthErr = ParseFrame(frame)
	assert.Error(t, lengthErr)
}

func Test_marshal_extension_commands(t *testing.T) {
	// kept for receiver parity; no show path emits these yet
	var bright, brightErr = ParseFrame((&Packet{
		Recipients: []uint8{80},
		Payload:    new_brightness_command(200),
	}).Marshal(1, 0, 0))
	require.NoError(t, brightErr)
	assert.Equal(t, COMMAND_NEW_BRIGHTNESS, bright.Control.Id)
	assert.Equal(t, uint8(200), bright.Control.P1)

	var tempo, tempoErr = ParseFrame((&Packet{
		Recipients: []uint8{80},
		Payload:    new_tempo_command(90),
	}).Marshal(1, 0, 0))
	require.NoError(t, tempoErr)
	assert.Equal(t, COMMAND_NEW_TEMPO, tempo.Control.Id)
	assert.Equal(t, uint8(90), tempo.Control.P1)
}

func Test_control_round_trip(t *testing.T) {
	var packet = Packet{
		Recipients: []uint8{80},
		Payload:    set_group_command(11),
	}

	var info, err = ParseFrame(packet.Marshal(1, 0, 0))
	require.NoError(t, err)
	require.NotNil(t, info.Control)

	assert.Equal(t, COMMAND_SET_GROUP, info.Control.Id)
	assert.Equal(t, uint8(11), info.Control.P1)
}
