package lampyrid

/*------------------------------------------------------------------
 *
 * Purpose:   	The catalog of lighting effects the receivers know.
 *
 * Description:	Each effect variant carries its own parameters and
 *		knows two things: which effect id byte codes for it on
 *		the wire, and how its parameters pack into the two
 *		param bytes of a show payload.  A few variants reach
 *		further and override the sustain or tempo byte.
 *
 *		Adding an effect means adding an id in packet.go and a
 *		variant here.  The receivers have to learn it too, so
 *		this list changes rarely.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/json"
	"fmt"
)

type Effect interface {
	effect_id() EffectId
	pack_params(sp *ShowPacket)
}

// Light every LED at once.
type PopEffect struct{}

// Receivers fire in randomized bunches.  delay_quantization controls
// how many fire together, delay_multiplier spreads the bunches out.
type FirecrackersEffect struct {
	DelayQuantization uint8 `json:"delay_quantization"`
	DelayMultiplier   uint8 `json:"delay_multiplier"`
}

// A lit segment runs down the strip.  reverse runs it from the high
// numbered LEDs toward the low ones.
type ChaseEffect struct {
	ChaseLength uint8 `json:"chase_length"`
	Reverse     bool  `json:"reverse"`
}

// division is relative to tempo: quarters (1), eighths (2), etc.
type StrobeEffect struct {
	Division uint8 `json:"division"`
}

type BidiChaseEffect struct {
	ChaseLength uint8 `json:"chase_length"`
}

// A single chase pass.  beat_denominator divides the tempo to set how
// long the head takes to cross one receiver's LED array; it rides in
// the sustain byte, which this effect does not otherwise use.
type OneShotChaseEffect struct {
	ChaseLength     uint8 `json:"chase_length"`
	Reverse         bool  `json:"reverse"`
	BeatDenominator uint8 `json:"beat_denominator"`
}

type BidiOneShotChaseEffect struct {
	ChaseLength uint8 `json:"chase_length"`
}

// 1/stride of the LEDs lit at any moment.
type SparkleEffect struct {
	Stride        uint8 `json:"stride"`
	TempoDivision uint8 `json:"tempo_division"`
}

// Color sweeps from the mapping hue to alternate_hue across the
// array; colorspace_range is the fraction of the hue circle (/256)
// mapped onto it, colorspace_phase shifts where the sweep starts.
type WaveEffect struct {
	AlternateHue        uint8 `json:"alternate_hue"`
	AlternateBrightness uint8 `json:"alternate_brightness"`
	ColorspacePhase     uint8 `json:"colorspace_phase"`
	ColorspaceRange     uint8 `json:"colorspace_range"`
}

// Flash on physical impact.  Higher threshold means less sensitive.
type PiezoTriggerEffect struct {
	FlashDecay uint8 `json:"flash_decay"`
	Threshold  uint8 `json:"threshold"`
}

type FlameEffect struct {
	MinFlicker uint8 `json:"min_flicker"`
	MaxFlicker uint8 `json:"max_flicker"`
}

type Flame2Effect struct {
	MinFlicker uint8 `json:"min_flicker"`
	MaxFlicker uint8 `json:"max_flicker"`
}

type GrassEffect struct {
	BaseHeight uint8 `json:"base_height"`
	BladeTop   uint8 `json:"blade_top"`
}

type CircularChaseEffect struct {
	ChaseLength uint8 `json:"chase_length"`
	Reverse     bool  `json:"reverse"`
}

// Diagnostic blink, also sent (in green) by the test controller.
type BatteryTestEffect struct{}

type RainbowEffect struct {
	SecondaryHue uint8 `json:"secondary_hue"`
}

type TwinkleEffect struct {
	TwinkleBrightness uint8   `json:"twinkle_brightness"`
	TwinkleFactor     float32 `json:"twinkle_factor"`
}

// Drive a bare output pin on the receiver board instead of LEDs.
type DigitalPinEffect struct {
	Pin uint8 `json:"pin"`
}

type PinAndSpinEffect struct {
	Pin uint8 `json:"pin"`
	Rpm uint8 `json:"rpm"`
}

type PopAndSpinEffect struct {
	Rpm uint8 `json:"rpm"`
}

func (PopEffect) effect_id() EffectId              { return EFFECT_POP }
func (FirecrackersEffect) effect_id() EffectId     { return EFFECT_FIRECRACKERS }
func (ChaseEffect) effect_id() EffectId            { return EFFECT_CHASE }
func (StrobeEffect) effect_id() EffectId           { return EFFECT_STROBE }
func (BidiChaseEffect) effect_id() EffectId        { return EFFECT_BIDI_CHASE }
func (OneShotChaseEffect) effect_id() EffectId     { return EFFECT_ONESHOT_CHASE }
func (BidiOneShotChaseEffect) effect_id() EffectId { return EFFECT_BIDI_ONESHOT_CHASE }
func (SparkleEffect) effect_id() EffectId          { return EFFECT_SPARKLE }
func (WaveEffect) effect_id() EffectId             { return EFFECT_WAVE }
func (PiezoTriggerEffect) effect_id() EffectId     { return EFFECT_PIEZO_TRIGGER }
func (FlameEffect) effect_id() EffectId            { return EFFECT_FLAME }
func (Flame2Effect) effect_id() EffectId           { return EFFECT_FLAME2 }
func (GrassEffect) effect_id() EffectId            { return EFFECT_GRASS }
func (CircularChaseEffect) effect_id() EffectId    { return EFFECT_CIRCULAR_CHASE }
func (BatteryTestEffect) effect_id() EffectId      { return EFFECT_BATTERY_TEST }
func (RainbowEffect) effect_id() EffectId          { return EFFECT_RAINBOW }
func (TwinkleEffect) effect_id() EffectId          { return EFFECT_TWINKLE }
func (DigitalPinEffect) effect_id() EffectId       { return EFFECT_DIGITAL_PIN }
func (PinAndSpinEffect) effect_id() EffectId       { return EFFECT_PIN_AND_SPIN }
func (PopAndSpinEffect) effect_id() EffectId       { return EFFECT_POP_AND_SPIN }

func bool_byte(b bool) uint8 {
	if b {
		return 1
	}

	return 0
}

func (PopEffect) pack_params(*ShowPacket) {}

func (e FirecrackersEffect) pack_params(sp *ShowPacket) {
	sp.Param1 = e.DelayQuantization
	sp.Param2 = e.DelayMultiplier
}

func (e ChaseEffect) pack_params(sp *ShowPacket) {
	sp.Param1 = e.ChaseLength
	sp.Param2 = bool_byte(e.Reverse)
}

func (e StrobeEffect) pack_params(sp *ShowPacket) {
	sp.Param1 = e.Division
}

func (e BidiChaseEffect) pack_params(sp *ShowPacket) {
	sp.Param1 = e.ChaseLength
}

func (e OneShotChaseEffect) pack_params(sp *ShowPacket) {
	sp.Param1 = e.ChaseLength
	sp.Param2 = bool_byte(e.Reverse)
	// one shot chase repurposes the sustain byte
	sp.Sustain = e.BeatDenominator
}

func (e BidiOneShotChaseEffect) pack_params(sp *ShowPacket) {
	sp.Param1 = e.ChaseLength
}

func (e SparkleEffect) pack_params(sp *ShowPacket) {
	sp.Param1 = e.Stride
	sp.Param2 = e.TempoDivision
}

func (e WaveEffect) pack_params(sp *ShowPacket) {
	sp.Param1 = e.AlternateHue | (e.AlternateBrightness >> 4)
	sp.Param2 = e.ColorspaceRange | (e.ColorspacePhase >> 4)
}

func (e PiezoTriggerEffect) pack_params(sp *ShowPacket) {
	sp.Param1 = e.FlashDecay
	sp.Param2 = e.Threshold
}

func (e FlameEffect) pack_params(sp *ShowPacket) {
	sp.Param1 = e.MinFlicker
	sp.Param2 = e.MaxFlicker
}

func (e Flame2Effect) pack_params(sp *ShowPacket) {
	sp.Param1 = e.MinFlicker
	sp.Param2 = e.MaxFlicker
}

func (e GrassEffect) pack_params(sp *ShowPacket) {
	sp.Param1 = e.BaseHeight
	sp.Param2 = e.BladeTop
}

func (e CircularChaseEffect) pack_params(sp *ShowPacket) {
	sp.Param1 = e.ChaseLength
	sp.Param2 = bool_byte(e.Reverse)
}

func (BatteryTestEffect) pack_params(*ShowPacket) {}

func (RainbowEffect) pack_params(*ShowPacket) {
	// the receivers derive the secondary hue themselves; nothing to send
}

func (e TwinkleEffect) pack_params(sp *ShowPacket) {
	sp.Param1 = e.TwinkleBrightness

	var factor = e.TwinkleFactor * 256
	if factor > 255 {
		factor = 255
	} else if factor < 0 {
		factor = 0
	}
	sp.Param2 = uint8(factor)
}

func (e DigitalPinEffect) pack_params(sp *ShowPacket) {
	sp.Param1 = e.Pin
}

func (e PinAndSpinEffect) pack_params(sp *ShowPacket) {
	sp.Param1 = e.Pin
	// spin rate rides in the tempo byte
	sp.Tempo = e.Rpm
}

func (e PopAndSpinEffect) pack_params(sp *ShowPacket) {
	sp.Tempo = e.Rpm
}

/*-------------------------------------------------------------------
 *
 * Name:        decode_effect
 *
 * Purpose:     Decode the JSON form of an effect.
 *
 * Description:	Parameterless effects appear as a bare string
 *		("Pop"); parameterized ones as a single-key object
 *		({"Chase": {"chase_length": 5, "reverse": false}}).
 *
 *--------------------------------------------------------------------*/

func decode_effect(raw json.RawMessage) (Effect, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		switch name {
		case "Pop":
			return PopEffect{}, nil
		case "BatteryTest":
			return BatteryTestEffect{}, nil
		default:
			return nil, fmt.Errorf("unknown effect: %q", name)
		}
	}

	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(raw, &tagged); err != nil {
		return nil, fmt.Errorf("effect must be a string or a single-key object: %w", err)
	}
	if len(tagged) != 1 {
		return nil, fmt.Errorf("effect object must have exactly one key, got %d", len(tagged))
	}

	for tag, body := range tagged {
		var effect Effect
		switch tag {
		case "Pop":
			effect = &PopEffect{}
		case "Firecrackers":
			effect = &FirecrackersEffect{}
		case "Chase":
			effect = &ChaseEffect{}
		case "Strobe":
			effect = &StrobeEffect{}
		case "BidiChase":
			effect = &BidiChaseEffect{}
		case "OneShotChase":
			effect = &OneShotChaseEffect{}
		case "BidiOneShotChase":
			effect = &BidiOneShotChaseEffect{}
		case "Sparkle":
			effect = &SparkleEffect{}
		case "Wave":
			effect = &WaveEffect{}
		case "PiezoTrigger":
			effect = &PiezoTriggerEffect{}
		case "Flame":
			effect = &FlameEffect{}
		case "Flame2":
			effect = &Flame2Effect{}
		case "Grass":
			effect = &GrassEffect{}
		case "CircularChase":
			effect = &CircularChaseEffect{}
		case "BatteryTest":
			effect = &BatteryTestEffect{}
		case "Rainbow":
			effect = &RainbowEffect{}
		case "Twinkle":
			effect = &TwinkleEffect{}
		case "DigitalPin":
			effect = &DigitalPinEffect{}
		case "PinAndSpin":
			effect = &PinAndSpinEffect{}
		case "PopAndSpin":
			effect = &PopAndSpinEffect{}
		default:
			return nil, fmt.Errorf("unknown effect: %q", tag)
		}

		if err := json.Unmarshal(body, effect); err != nil {
			return nil, fmt.Errorf("bad %s parameters: %w", tag, err)
		}

		return effect, nil
	}

	return nil, fmt.Errorf("empty effect object")
}
