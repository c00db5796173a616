package lampyrid

/*------------------------------------------------------------------
 *
 * Purpose:   	The live state of a running show.
 *
 * Description:	This is where MIDI meets the radio.  The state tracks,
 *		per receiver, which mapping last lit it (the "owner"),
 *		because two overlapping cues can target overlapping
 *		receivers and only the most recent activator may turn
 *		a receiver off again.
 *
 *		Three policies live here as well:
 *
 *		- sustain: while the sustain pedal is down, live
 *		  deactivations are buffered and replayed in order when
 *		  the pedal lifts
 *		- lights-out: after the air has been quiet for a while,
 *		  periodic "off" broadcasts keep dozing receivers
 *		  responsive without visible light
 *		- one-shots: self-terminating effects claim no
 *		  ownership and ignore deactivation
 *
 *		Everything runs on the director goroutine; receiver
 *		cells are shared between mappings but never between
 *		threads.
 *
 *---------------------------------------------------------------*/

import (
	"time"

	"gitlab.com/gomidi/midi/v2"
)

// Fallback wake interval when nothing sooner is scheduled.
const DEFAULT_TICK = time.Second

// Reserved controllers on the control channel.  These never map to
// cues.
const (
	CC_SUSTAIN uint8 = 64
	CC_TEST    uint8 = 102
	CC_RESET   uint8 = 103
)

// The one radio operation the show state needs.  The real
// implementation is Radio in radio.go; tests substitute a recorder.
type PacketSender interface {
	Send(p *Packet) error
}

type ShowState struct {
	radio    PacketSender
	config   *Config
	resolved *ResolvedShow
	clips    *ClipEngine

	// injectable for tests; time.Now in production
	clock func() time.Time

	last_effect     time.Time
	last_lights_out time.Time

	sustain_active bool
	pending_off    []int
}

func new_show_state(show *ShowDefinition, config *Config, radio PacketSender, clock func() time.Time) (*ShowState, error) {
	var resolved, resolveErr = resolve_show(show)
	if resolveErr != nil {
		return nil, resolveErr
	}

	var now = clock()

	return &ShowState{
		radio:           radio,
		config:          config,
		resolved:        resolved,
		clips:           new_clip_engine(resolved),
		clock:           clock,
		last_effect:     now,
		last_lights_out: now,
	}, nil
}

/*-------------------------------------------------------------------
 *
 * Name:        configure_receivers
 *
 * Purpose:     Tell every receiver its group and LED count, then
 *		reset them all.
 *
 * Description:	Run at show start and after every reload.  The
 *		per-receiver configuration has to land before the
 *		broadcast reset so each receiver latches its identity
 *		before the reset flush.
 *
 *--------------------------------------------------------------------*/

func (s *ShowState) configure_receivers() error {
	for i := range s.resolved.show.Receivers {
		var receiver = &s.resolved.show.Receivers[i]
		var recipients = []uint8{receiver.Id}

		if receiver.GroupName != "" {
			var group_id = s.resolved.target_lookup[receiver.GroupName]
			if err := s.radio.Send(&Packet{
				Recipients: recipients,
				Payload:    set_group_command(group_id),
			}); err != nil {
				return err
			}
		}

		if err := s.radio.Send(&Packet{
			Recipients: recipients,
			Payload:    set_led_count_command(receiver.LedCount),
		}); err != nil {
			return err
		}

		logger.Info("Configured receiver",
			"id", receiver.Id,
			"group", receiver.GroupName,
			"led_count", receiver.LedCount)
	}

	return s.radio.Send(&Packet{Payload: reset_command()})
}

/*-------------------------------------------------------------------
 *
 * Name:        process_midi
 *
 * Purpose:     Dispatch one raw MIDI event buffer.
 *
 * Returns:	reload true when the operator hit the reset
 *		controller; any radio error.  Malformed or unhandled
 *		MIDI is logged and dropped, never an error.
 *
 *--------------------------------------------------------------------*/

func (s *ShowState) process_midi(buf []byte) (bool, error) {
	if len(buf) == 0 {
		logger.Debug("Dropping empty MIDI buffer")
		return false, nil
	}

	var msg = midi.Message(buf)

	var channel, key, velocity uint8
	var controller, value uint8

	switch {
	case msg.GetNoteStart(&channel, &key, &velocity):
		logger.Debug("Note on", "channel", channel, "note", key, "velocity", velocity)
		for _, id := range s.resolved.note_mappings[trigger_key{channel, key}] {
			if err := s.activate(s.resolved.meta(id), nil); err != nil {
				return false, err
			}
		}

	case msg.GetNoteEnd(&channel, &key):
		logger.Debug("Note off", "channel", channel, "note", key)
		for _, id := range s.resolved.note_mappings[trigger_key{channel, key}] {
			if err := s.deactivate_live(id); err != nil {
				return false, err
			}
		}

	case msg.GetControlChange(&channel, &controller, &value):
		logger.Debug("Controller", "channel", channel, "cc", controller, "value", value)
		return s.process_controller(channel, controller, value)

	default:
		logger.Debug("Ignoring MIDI event", "bytes", buf)
	}

	return false, nil
}

func (s *ShowState) process_controller(channel uint8, controller uint8, value uint8) (bool, error) {
	if channel == s.config.MidiControlChannel {
		switch controller {
		case CC_SUSTAIN:
			switch value {
			case 127:
				s.sustain_active = true
			case 0:
				return false, s.release_sustain()
			}
			return false, nil

		case CC_TEST:
			// 127 lights the battery test; everything else,
			// including the pedal release, is a global off
			if value == 127 {
				return false, s.send_test_packet()
			}
			return false, s.send_global_off()

		case CC_RESET:
			return value == 127, nil
		}
	}

	for _, id := range s.resolved.controller_mappings[trigger_key{channel, controller}] {
		switch value {
		case 127:
			if err := s.activate(s.resolved.meta(id), nil); err != nil {
				return false, err
			}
		case 0:
			if err := s.deactivate_live(id); err != nil {
				return false, err
			}
		}
	}

	return false, nil
}

/*
 * Overrides a clip applies when it activates a mapping on its
 * timeline.  A nil color means the mapping's own; a zero tempo means
 * unset.
 */

type effect_overrides struct {
	color *Color
	tempo float32
}

func (s *ShowState) activate(meta *MappingMeta, overrides *effect_overrides) error {
	if meta.source.Light.Effect != nil {
		return s.activate_effect(meta, meta.source.Light.Effect, overrides)
	}

	return s.activate_clip(meta)
}

func (s *ShowState) activate_effect(meta *MappingMeta, effect Effect, overrides *effect_overrides) error {
	var mapping = meta.source

	var color = s.resolved.show.Colors[mapping.Color]
	if overrides != nil && overrides.color != nil {
		color = *overrides.color
	}

	var tempo = mapping.Tempo
	if overrides != nil && overrides.tempo > 0 {
		tempo = overrides.tempo
	}
	if tempo <= 0 {
		tempo = 120
	}

	var sp = ShowPacket{
		Effect:  effect.effect_id(),
		Color:   color,
		Attack:  convert_millis_adr(mapping.Attack),
		Sustain: convert_millis_sustain(mapping.Sustain),
		Release: convert_millis_adr(mapping.Release),
		Tempo:   convert_tempo(tempo),
	}
	effect.pack_params(&sp)

	if err := s.radio.Send(&Packet{Recipients: meta.targets, Payload: &sp}); err != nil {
		return err
	}

	for _, cell := range meta.receivers {
		cell.activate(meta)
	}
	s.last_effect = s.clock()

	return nil
}

func (s *ShowState) activate_clip(meta *MappingMeta) error {
	var mapping = meta.source

	var override_color *Color
	if mapping.OverrideClipColor {
		var c = s.resolved.show.Colors[mapping.Color]
		override_color = &c
	}

	var tempo = mapping.Tempo
	if tempo <= 0 {
		tempo = 120
	}

	return s.clips.start(mapping.Light.Clip, override_color, tempo, s)
}

/*-------------------------------------------------------------------
 *
 * Name:        deactivate
 *
 * Purpose:     Turn off whatever a mapping turned on, respecting
 *		receiver ownership.
 *
 * Description:	One-shots are a no-op.  If every targeted receiver
 *		still attributes its state to this mapping, one off
 *		packet to the mapping's own target list covers them
 *		all (often a single group or broadcast frame).  If
 *		some receivers have since been captured by a later
 *		mapping, the off packet is addressed to exactly the
 *		receivers this mapping still owns; if it owns none,
 *		nothing is sent at all.
 *
 *		Either way the mapping's claim on its receivers is
 *		released, which is what makes a second deactivate a
 *		no-op.
 *
 *--------------------------------------------------------------------*/

func (s *ShowState) deactivate(meta *MappingMeta) error {
	if meta.source.Light.Effect != nil {
		return s.deactivate_effect(meta)
	}

	return s.clips.stop(meta.source.Light.Clip, s)
}

func (s *ShowState) deactivate_effect(meta *MappingMeta) error {
	if meta.source.OneShot {
		return nil
	}

	var simple_off = true
	for _, cell := range meta.receivers {
		if !cell.activated_by(meta) {
			simple_off = false
			break
		}
	}

	var recipients = meta.targets
	if !simple_off {
		recipients = nil
		for _, cell := range meta.receivers {
			if cell.activated_by(meta) {
				recipients = append(recipients, cell.id)
			}
		}
		if len(recipients) == 0 {
			// every receiver has been captured since; the
			// new owners will turn them off
			return nil
		}
	}

	var sp = off_packet
	if err := s.radio.Send(&Packet{Recipients: recipients, Payload: &sp}); err != nil {
		return err
	}

	for _, cell := range meta.receivers {
		cell.deactivate(meta)
	}

	return nil
}

// A deactivation that originated from live MIDI.  While the sustain
// pedal is down these are buffered instead of executed; clip-driven
// deactivations never come through here.
func (s *ShowState) deactivate_live(id int) error {
	if s.sustain_active {
		s.pending_off = append(s.pending_off, id)
		return nil
	}

	return s.deactivate(s.resolved.meta(id))
}

func (s *ShowState) release_sustain() error {
	s.sustain_active = false

	var pending = s.pending_off
	s.pending_off = nil

	for _, id := range pending {
		if err := s.deactivate(s.resolved.meta(id)); err != nil {
			return err
		}
	}

	return nil
}

func (s *ShowState) send_test_packet() error {
	var sp = test_packet
	if err := s.radio.Send(&Packet{Payload: &sp}); err != nil {
		return err
	}

	s.last_effect = s.clock()

	return nil
}

// The operator's blackout: one off broadcast, and every ownership
// claim dropped so the bookkeeping matches the now-dark field.
func (s *ShowState) send_global_off() error {
	var sp = off_packet
	if err := s.radio.Send(&Packet{Payload: &sp}); err != nil {
		return err
	}

	for _, cell := range s.resolved.receiver_order {
		cell.trigger_mapping = INACTIVE
	}
	s.last_effect = s.clock()

	return nil
}

func (s *ShowState) any_receiver_active() bool {
	for _, cell := range s.resolved.receiver_order {
		if cell.trigger_mapping != INACTIVE {
			return true
		}
	}

	return false
}

/*-------------------------------------------------------------------
 *
 * Name:        tick
 *
 * Purpose:     Advance time: run due clip steps, maybe emit a
 *		lights-out keepalive.
 *
 * Description:	Receivers infer "the show is quiet" from silence on
 *		the air and drop into power-save modes that take tens
 *		of milliseconds to wake from.  During an extended
 *		quiet window we broadcast a harmless off packet every
 *		period so they stay responsive without visible light.
 *		Nothing is sent while any receiver is lit, any clip is
 *		playing, or outside the configured idle window.
 *
 * Returns:	How long the director may sleep: the sooner of the
 *		lights-out period and the next pending clip step.
 *
 *--------------------------------------------------------------------*/

func (s *ShowState) tick() (time.Duration, error) {
	var next_step, playErr = s.clips.play_all(s)
	if playErr != nil {
		return 0, playErr
	}

	var now = s.clock()

	if !s.any_receiver_active() && !s.clips.any_playing() {
		var idle = now.Sub(s.last_effect)
		if idle >= s.config.lights_out_window_open() &&
			idle < s.config.lights_out_window_close() &&
			now.Sub(s.last_lights_out) >= s.config.lights_out_period() {

			var sp = off_packet
			if err := s.radio.Send(&Packet{Payload: &sp}); err != nil {
				return 0, err
			}
			s.last_lights_out = now
			logger.Debug("Sent lights-out keepalive")
		}
	}

	var wake = s.config.lights_out_period()
	if !next_step.IsZero() {
		var until = next_step.Sub(now)
		if until < 0 {
			until = 0
		}
		if until < wake {
			wake = until
		}
	}

	return wake, nil
}
