package lampyrid

/*------------------------------------------------------------------
 *
 * Purpose:   	Build and parse the radio frames understood by the
 *		LED receivers.
 *
 * Description:	A frame is laid out as
 *
 *		[len][dest][from_id][pkt_id][flags][payload...][targets...]
 *
 *		len counts everything after the length byte itself.
 *		dest is 0xFF for broadcast/multi/group packets, otherwise
 *		the single receiver id.  from_id/pkt_id/flags are there
 *		for compatibility with the RadioHead framing used by the
 *		receiver firmware.
 *
 *		Two payloads share the framing: a 10 byte "show" payload
 *		that starts an effect, and a 5 byte control payload whose
 *		first byte is the 0xFF command marker.  For broadcast
 *		packets the logical target ids are appended after the
 *		payload so receivers can self-filter.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"math"
)

/*
 * A single byte addresses transmitters, groups, and receivers.
 * Group ids are handed out dynamically by the resolver, starting
 * at the bottom of the group range.
 */

const (
	TRANSMITTER_ID_MIN uint8 = 0
	GROUP_ID_MIN       uint8 = 10
	RECEIVER_ID_MIN    uint8 = 80
)

const BROADCAST_ADDR uint8 = 0xFF

const MAX_FRAME_LEN = 64

func is_group_id(id uint8) bool {
	return id >= GROUP_ID_MIN && id < RECEIVER_ID_MIN
}

type EffectId uint8

const (
	EFFECT_OFF EffectId = iota
	EFFECT_POP
	EFFECT_FIRECRACKERS
	EFFECT_CHASE
	EFFECT_STROBE
	EFFECT_BIDI_CHASE
	EFFECT_ONESHOT_CHASE
	EFFECT_BIDI_ONESHOT_CHASE
	EFFECT_SPARKLE
	EFFECT_WAVE
	EFFECT_PIEZO_TRIGGER
	EFFECT_FLAME
	EFFECT_FLAME2
	EFFECT_GRASS
	EFFECT_CIRCULAR_CHASE
	EFFECT_BATTERY_TEST
	EFFECT_RAINBOW
	EFFECT_TWINKLE
	EFFECT_DIGITAL_PIN
	EFFECT_PIN_AND_SPIN
	EFFECT_POP_AND_SPIN
)

type CommandId uint8

const (
	COMMAND_SET_GROUP      CommandId = 109
	COMMAND_SET_LED_COUNT  CommandId = 110
	COMMAND_NEW_BRIGHTNESS CommandId = 127
	COMMAND_NEW_TEMPO      CommandId = 128
	COMMAND_RESET          CommandId = 255
)

const command_marker uint8 = 0xFF

/*-------------------------------------------------------------------
 *
 * Durations travel as a single byte each.  The JSON speaks
 * milliseconds; on the wire the high bit selects a coarser unit so
 * long fades keep fitting in seven bits.
 *
 * Attack/release: below 1.28 s the unit is 10 ms, above it is 100 ms
 * with the high bit set.  The resolution matters less the longer the
 * fade actually is.
 *
 * Sustain: 0 ms is the hold-until-off sentinel 255.  Otherwise the
 * unit is 100 ms up to 12.799 s, then whole seconds with the high
 * bit set.
 *
 *--------------------------------------------------------------------*/

func convert_millis_adr(millis uint32) uint8 {
	if millis <= 1279 {
		return uint8((millis / 10) & 0x7F)
	}

	return uint8(((millis / 100) & 0x7F) | 0x80)
}

func convert_millis_sustain(millis uint32) uint8 {
	if millis == 0 {
		return 255
	}

	if millis <= 12799 {
		return uint8((millis / 100) & 0x7F)
	}

	return uint8(((millis / 1000) & 0x7F) | 0x80)
}

// Tempo goes on the wire as rounded whole BPM.
func convert_tempo(bpm float32) uint8 {
	if bpm <= 0 {
		return 0
	}

	var rounded = math.Round(float64(bpm))
	if rounded > 255 {
		return 255
	}

	return uint8(rounded)
}

/*
 * The 10 byte payload that starts (or stops) an effect.  param1 and
 * param2 are effect-specific; see effect.go for the packing rules.
 */

type ShowPacket struct {
	Effect  EffectId
	Color   Color
	Attack  uint8
	Sustain uint8
	Release uint8
	Param1  uint8
	Param2  uint8
	Tempo   uint8
}

const show_payload_len = 10

func (sp *ShowPacket) payload_marshal(buf []byte) []byte {
	buf = append(buf, uint8(sp.Effect))
	buf = append(buf, sp.Color.H, sp.Color.S, sp.Color.V)
	buf = append(buf, sp.Attack, sp.Sustain, sp.Release)
	buf = append(buf, sp.Param1, sp.Param2, sp.Tempo)

	return buf
}

// The global "everything off" payload.
var off_packet = ShowPacket{}

// Sent by the test controller so a tech can see every receiver blink
// green without triggering any of the show's cues.
var test_packet = ShowPacket{
	Effect:  EFFECT_BATTERY_TEST,
	Color:   Color{H: 96, S: 255, V: 255},
	Attack:  25,
	Sustain: 158,
	Release: 25,
}

/*
 * The 5 byte control payload.  The 0xFF marker distinguishes it from
 * a show payload, whose first byte is an effect id.
 */

type Command struct {
	Id CommandId
	P1 uint8
	P2 uint8
	P3 uint8
}

const control_payload_len = 5

func set_group_command(group_id uint8) *Command {
	return &Command{Id: COMMAND_SET_GROUP, P1: group_id}
}

func set_led_count_command(led_count uint16) *Command {
	return &Command{
		Id: COMMAND_SET_LED_COUNT,
		P1: uint8(led_count >> 8),
		P2: uint8(led_count & 0xFF),
	}
}

func new_brightness_command(brightness uint8) *Command {
	return &Command{Id: COMMAND_NEW_BRIGHTNESS, P1: brightness}
}

func new_tempo_command(tempo uint8) *Command {
	return &Command{Id: COMMAND_NEW_TEMPO, P1: tempo}
}

func reset_command() *Command {
	return &Command{Id: COMMAND_RESET}
}

func (c *Command) payload_marshal(buf []byte) []byte {
	return append(buf, command_marker, uint8(c.Id), c.P1, c.P2, c.P3)
}

type PacketPayload interface {
	payload_marshal(buf []byte) []byte
}

/*
 * A packet is a payload plus its logical recipients.  An empty
 * recipient list means every receiver.
 */

type Packet struct {
	Recipients []uint8
	Payload    PacketPayload
}

/*-------------------------------------------------------------------
 *
 * Name:        is_broadcast
 *
 * Purpose:     Decide whether a packet needs the hardware broadcast
 *		address.
 *
 * Description:	A packet with no recipients (all receivers), more than
 *		one recipient, or a single group recipient cannot be
 *		addressed to one node, so it goes out as a hardware
 *		broadcast with the logical targets appended after the
 *		payload.
 *
 *--------------------------------------------------------------------*/

func (p *Packet) is_broadcast() bool {
	return len(p.Recipients) == 0 || len(p.Recipients) > 1 || is_group_id(p.Recipients[0])
}

/*-------------------------------------------------------------------
 *
 * Name:        Marshal
 *
 * Purpose:     Serialize a packet into the byte frame handed to the
 *		radio.
 *
 * Inputs:	from_id		- Configured transmitter id.
 *
 *		packet_id	- Monotonically incrementing wrapping
 *				  sequence byte, owned by the radio.
 *
 *		flags		- Reserved, send 0.
 *
 * Returns:	The complete frame, length byte first.
 *
 *--------------------------------------------------------------------*/

func (p *Packet) Marshal(from_id uint8, packet_id uint8, flags uint8) []byte {
	var buf = make([]byte, 0, MAX_FRAME_LEN)

	buf = append(buf, 0) // length, poked in below

	if p.is_broadcast() {
		buf = append(buf, BROADCAST_ADDR)
	} else {
		buf = append(buf, p.Recipients[0])
	}

	buf = append(buf, from_id, packet_id, flags)

	buf = p.Payload.payload_marshal(buf)

	if p.is_broadcast() {
		buf = append(buf, p.Recipients...)
	}

	buf[0] = uint8(len(buf) - 1)

	return buf
}

/*
 * The parsed view of a frame, for tests and the dump tool.  Exactly
 * one of Show and Control is set.
 */

type FrameInfo struct {
	Dest     uint8
	FromId   uint8
	PacketId uint8
	Flags    uint8
	Show     *ShowPacket
	Control  *Command
	Targets  []uint8
}

/*-------------------------------------------------------------------
 *
 * Name:        ParseFrame
 *
 * Purpose:     Decode a frame back into its payload and addressing,
 *		primarily for the dump tool and for round-trip tests.
 *
 * Returns:	The decoded frame, or an error if the frame is
 *		truncated or the length byte lies.
 *
 *--------------------------------------------------------------------*/

func ParseFrame(frame []byte) (*FrameInfo, error) {
	const header_len = 5

	if len(frame) < header_len+control_payload_len {
		return nil, fmt.Errorf("frame too short: %d bytes", len(frame))
	}

	if int(frame[0]) != len(frame)-1 {
		return nil, fmt.Errorf("length byte %d does not match frame length %d", frame[0], len(frame))
	}

	var info = FrameInfo{
		Dest:     frame[1],
		FromId:   frame[2],
		PacketId: frame[3],
		Flags:    frame[4],
	}

	var payload = frame[header_len:]

	if payload[0] == command_marker {
		info.Control = &Command{
			Id: CommandId(payload[1]),
			P1: payload[2],
			P2: payload[3],
			P3: payload[4],
		}
		info.Targets = payload[control_payload_len:]
	} else {
		if len(payload) < show_payload_len {
			return nil, fmt.Errorf("show payload too short: %d bytes", len(payload))
		}
		info.Show = &ShowPacket{
			Effect:  EffectId(payload[0]),
			Color:   Color{H: payload[1], S: payload[2], V: payload[3]},
			Attack:  payload[4],
			Sustain: payload[5],
			Release: payload[6],
			Param1:  payload[7],
			Param2:  payload[8],
			Tempo:   payload[9],
		}
		info.Targets = payload[show_payload_len:]
	}

	if len(info.Targets) == 0 {
		info.Targets = nil
	}

	return &info, nil
}
