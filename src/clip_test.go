package lampyrid

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_clip_on_wait_off(t *testing.T) {
	var f = new_runtime_fixture(t)

	// MappingOn fires immediately on activation
	f.note_on(0, "A4")

	require.Len(t, f.radio.frames, 1)
	var on = f.radio.frames[0].Show
	require.NotNil(t, on)
	assert.Equal(t, EFFECT_POP, on.Effect)
	assert.Equal(t, []uint8{10}, f.radio.frames[0].Targets)
	assert.Equal(t, id_intro_on, f.owner(80))
	assert.Equal(t, id_intro_on, f.owner(81))

	// one beat at 120 BPM is 500 ms; just before it, nothing
	f.clock.advance(499 * time.Millisecond)
	var wake, err = f.state.tick()
	require.NoError(t, err)
	assert.Len(t, f.radio.frames, 1)
	assert.Equal(t, time.Millisecond, wake, "next wake is the pending step, not the lights-out period")

	// on the beat: MappingOff, then End stops the clip
	f.clock.advance(time.Millisecond)
	_, err = f.state.tick()
	require.NoError(t, err)

	require.Len(t, f.radio.frames, 2)
	assert.Equal(t, EFFECT_OFF, f.radio.frames[1].Show.Effect)
	assert.Equal(t, []uint8{10}, f.radio.frames[1].Targets)
	assert.Equal(t, INACTIVE, f.owner(80))
	assert.Equal(t, INACTIVE, f.owner(81))
	assert.False(t, f.state.clips.any_playing())

	// no further packets ever
	f.clock.advance(time.Second)
	_, err = f.state.tick()
	require.NoError(t, err)
	assert.Len(t, f.radio.frames, 2)
}

func Test_clip_color_override(t *testing.T) {
	var f = new_runtime_fixture(t)

	// intro-trigger sets override_clip_color with color white, so
	// the clip's own red mapping goes out white
	f.note_on(0, "A4")

	require.Len(t, f.radio.frames, 1)
	assert.Equal(t, Color{H: 0, S: 0, V: 255}, f.radio.frames[0].Show.Color)
}

func Test_clip_stops_when_trigger_releases(t *testing.T) {
	var f = new_runtime_fixture(t)

	f.note_on(0, "A4")
	f.radio.clear()

	f.note_off(0, "A4")

	require.Len(t, f.radio.frames, 1, "stopping the clip releases what it owns")
	assert.Equal(t, EFFECT_OFF, f.radio.frames[0].Show.Effect)
	assert.Equal(t, INACTIVE, f.owner(80))
	assert.False(t, f.state.clips.any_playing())
}

func Test_clip_stop_buffered_by_sustain(t *testing.T) {
	var f = new_runtime_fixture(t)

	f.note_on(0, "A4")
	f.radio.clear()

	f.controller(15, CC_SUSTAIN, 127)
	f.note_off(0, "A4")

	assert.Empty(t, f.radio.frames)
	assert.True(t, f.state.clips.any_playing(), "the clip plays on until the pedal lifts")

	f.controller(15, CC_SUSTAIN, 0)

	require.Len(t, f.radio.frames, 1)
	assert.False(t, f.state.clips.any_playing())
}

/*
 * A separate show for the step-semantics tests: a looping two-phase
 * cycle, a tempo changer, a clip killer, and a broken MappingOff.
 */

const clip_show_json = `{
	"receivers": [
		{"id": 80, "name": "A", "led_count": 30}
	],
	"colors": {
		"red": {"h": 0, "s": 255, "v": 255},
		"green": {"h": 96, "s": 255, "v": 255}
	},
	"mappings": [
		{"cue": "cycle-trigger", "midi": {"Note": {"channel": 0, "note": "C4"}},
		 "light": {"Clip": "cycle"}, "color": "red", "tempo": 120},
		{"cue": "slow-trigger", "midi": {"Note": {"channel": 0, "note": "D4"}},
		 "light": {"Clip": "slow"}, "color": "red"},
		{"cue": "killer-trigger", "midi": {"Note": {"channel": 0, "note": "E4"}},
		 "light": {"Clip": "killer"}, "color": "red"},
		{"cue": "bad-trigger", "midi": {"Note": {"channel": 0, "note": "F4"}},
		 "light": {"Clip": "bad"}, "color": "red"},
		{"cue": "ghost-trigger", "midi": {"Note": {"channel": 0, "note": "G4"}},
		 "light": {"Clip": "ghost"}, "color": "red"}
	],
	"clips": {
		"cycle": [
			{"MappingOn": {"cue": "cycle-on", "light": {"Effect": "Pop"}, "color": "red", "targets": ["A"]}},
			{"WaitBeats": 0.5},
			{"MappingOff": 0},
			{"SetColor": {"h": 96, "s": 255, "v": 255}},
			{"WaitBeats": 0.5},
			{"Loop": 0}
		],
		"slow": [
			{"SetTempo": 60.0},
			{"MappingOn": {"cue": "slow-on", "light": {"Effect": "Pop"}, "color": "red", "targets": ["A"]}},
			{"WaitBeats": 1.0},
			{"MappingOff": 1},
			"End"
		],
		"killer": [
			{"StopOther": "cycle"},
			{"StopOther": "no-such-clip"},
			"End"
		],
		"bad": [
			{"MappingOff": 2},
			"End"
		],
		"ghost": [
			{"MappingOn": {"cue": "ghost-on", "light": {"Effect": "Pop"}, "color": "red", "targets": ["A"], "one_shot": true}},
			"End"
		]
	}
}`

type clipFixture struct {
	*runtimeFixture
}

func new_clip_fixture(t *testing.T) *clipFixture {
	t.Helper()

	var show ShowDefinition
	require.NoError(t, json.Unmarshal([]byte(clip_show_json), &show))

	var config = Config{
		TransmitterId:        1,
		MidiControlChannel:   15,
		LightsOutWindowOpen:  2.0,
		LightsOutWindowClose: 60.0,
		LightsOutPeriod:      1.0,
	}

	var radio = fakeRadio{}
	var clock = testClock{now: time.Unix(2000, 0)}

	var state, err = new_show_state(&show, &config, &radio, clock.Now)
	require.NoError(t, err)

	return &clipFixture{&runtimeFixture{t: t, radio: &radio, clock: &clock, state: state}}
}

func (f *clipFixture) tick() {
	f.t.Helper()

	var _, err = f.state.tick()
	require.NoError(f.t, err)
}

func Test_clip_loop_cycles(t *testing.T) {
	var f = new_clip_fixture(t)

	f.note_on(0, "C4")
	require.Len(t, f.radio.frames, 1, "first on")
	assert.Equal(t, Color{H: 0, S: 255, V: 255}, f.radio.frames[0].Show.Color)

	// half a beat at 120 BPM is 250 ms
	f.clock.advance(250 * time.Millisecond)
	f.tick()
	require.Len(t, f.radio.frames, 2, "first off")
	assert.Equal(t, EFFECT_OFF, f.radio.frames[1].Show.Effect)

	f.clock.advance(250 * time.Millisecond)
	f.tick()
	require.Len(t, f.radio.frames, 3, "looped around to the next on")

	// SetColor took effect for the second pass
	assert.Equal(t, Color{H: 96, S: 255, V: 255}, f.radio.frames[2].Show.Color)
	assert.True(t, f.state.clips.any_playing())
}

func Test_clip_set_tempo(t *testing.T) {
	var f = new_clip_fixture(t)

	f.note_on(0, "D4")
	require.Len(t, f.radio.frames, 1)
	assert.Equal(t, uint8(60), f.radio.frames[0].Show.Tempo, "clip tempo overrides the default")

	// one beat at the new 60 BPM is a full second
	f.clock.advance(999 * time.Millisecond)
	f.tick()
	assert.Len(t, f.radio.frames, 1)

	f.clock.advance(time.Millisecond)
	f.tick()
	require.Len(t, f.radio.frames, 2)
	assert.Equal(t, EFFECT_OFF, f.radio.frames[1].Show.Effect)
	assert.False(t, f.state.clips.any_playing())
}

func Test_clip_stop_other(t *testing.T) {
	var f = new_clip_fixture(t)

	f.note_on(0, "C4") // cycle running, owning its mapping
	f.radio.clear()

	// killer stops cycle (releasing its mapping) and silently
	// ignores the unknown clip name
	f.note_on(0, "E4")

	require.Len(t, f.radio.frames, 1)
	assert.Equal(t, EFFECT_OFF, f.radio.frames[0].Show.Effect)
	assert.False(t, f.state.clips.any_playing(), "killer itself ended too")
}

func Test_clip_bad_mapping_off_is_skipped(t *testing.T) {
	var f = new_clip_fixture(t)

	f.note_on(0, "F4")

	assert.Empty(t, f.radio.frames, "a MappingOff pointing at a non-on step sends nothing")
	assert.False(t, f.state.clips.any_playing(), "and the clip still reaches its End")
}

func Test_clip_one_shot_not_owned(t *testing.T) {
	var f = new_clip_fixture(t)

	f.note_on(0, "G4")
	require.Len(t, f.radio.frames, 1)
	f.radio.clear()

	// the ghost clip ended; stopping it releases nothing because
	// one-shots are never owned
	f.note_off(0, "G4")
	assert.Empty(t, f.radio.frames)
}

func Test_clip_restart_resets_state(t *testing.T) {
	var f = new_clip_fixture(t)

	f.note_on(0, "C4")
	f.clock.advance(250 * time.Millisecond)
	f.tick()
	require.Len(t, f.radio.frames, 2)

	// retriggering starts over from step zero with the trigger's
	// color, not the SetColor the last pass left behind
	f.note_on(0, "C4")
	require.Len(t, f.radio.frames, 3)
	assert.Equal(t, Color{H: 0, S: 255, V: 255}, f.radio.frames[2].Show.Color)
}

func Test_play_all_reports_earliest_deadline(t *testing.T) {
	var f = new_clip_fixture(t)

	f.note_on(0, "C4") // next step in 250 ms
	f.note_on(0, "D4") // next step in 1000 ms

	var wake, err = f.state.tick()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, wake)
}
