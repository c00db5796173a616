package lampyrid

/*------------------------------------------------------------------
 *
 * Purpose:   	Step-by-step timeline interpreter for clips.
 *
 * Description:	A clip is a named sequence of steps: turn mappings on
 *		and off, wait (in beats or milliseconds), loop, change
 *		the working color or tempo, stop itself or another
 *		clip.  The engine advances every playing clip as far
 *		as its wait deadlines allow and reports the earliest
 *		future deadline so the director knows when to come
 *		back.
 *
 *		Steps reenter the show state (activating a mapping
 *		touches the shared receiver cells), so the engine
 *		never holds private copies of runtime state across a
 *		step.
 *
 *---------------------------------------------------------------*/

import (
	"math"
	"sort"
	"time"
)

type ClipRuntime struct {
	name  string
	steps []*ClipStep

	playing    bool
	step       int
	advance_at time.Time
	tempo      float32
	override_color *Color

	// ids of mappings this clip activated and still owns; stopping
	// the clip deactivates exactly these.  One-shots are excluded.
	owned map[int]struct{}
}

type ClipEngine struct {
	clips map[string]*ClipRuntime
	order []string
}

func new_clip_engine(rs *ResolvedShow) *ClipEngine {
	var engine = ClipEngine{
		clips: make(map[string]*ClipRuntime),
		order: rs.clip_order,
	}

	for name, steps := range rs.show.Clips {
		engine.clips[name] = &ClipRuntime{
			name:  name,
			steps: steps,
			owned: make(map[int]struct{}),
		}
	}

	return &engine
}

func (e *ClipEngine) start(name string, override_color *Color, tempo float32, state *ShowState) error {
	var clip, ok = e.clips[name]
	if !ok {
		logger.Error("Cannot start unknown clip", "clip", name)
		return nil
	}

	logger.Debug("Starting clip", "clip", name, "tempo", tempo)

	clip.playing = true
	clip.step = 0
	clip.advance_at = state.clock()
	clip.tempo = tempo
	clip.override_color = override_color
	clear(clip.owned)

	return clip.play(e, state)
}

func (e *ClipEngine) stop(name string, state *ShowState) error {
	var clip, ok = e.clips[name]
	if !ok {
		// StopOther of a clip the show never defined
		return nil
	}

	return clip.stop(state)
}

func (e *ClipEngine) any_playing() bool {
	for _, clip := range e.clips {
		if clip.playing {
			return true
		}
	}

	return false
}

/*-------------------------------------------------------------------
 *
 * Name:        play_all
 *
 * Purpose:     Advance every playing clip as far as time allows.
 *
 * Returns:	The earliest future deadline among all clips, or the
 *		zero time when nothing is scheduled.
 *
 *--------------------------------------------------------------------*/

func (e *ClipEngine) play_all(state *ShowState) (time.Time, error) {
	var next time.Time

	for _, name := range e.order {
		var clip = e.clips[name]
		if !clip.playing {
			continue
		}

		if err := clip.play(e, state); err != nil {
			return time.Time{}, err
		}

		if clip.playing && (next.IsZero() || clip.advance_at.Before(next)) {
			next = clip.advance_at
		}
	}

	return next, nil
}

func (c *ClipRuntime) beats_to_duration(beats float32) time.Duration {
	var millis = math.Round(float64(beats) * 60000 / float64(c.tempo))

	return time.Duration(millis) * time.Millisecond
}

/*-------------------------------------------------------------------
 *
 * Name:        play
 *
 * Purpose:     Execute steps until the clip ends or a wait deadline
 *		lies in the future.
 *
 * Description:	Waits set the deadline and advance; the guard at the
 *		top of the loop then returns until the deadline
 *		passes.  Note a Loop step with no wait between it and
 *		its target spins forever; clips are authored with
 *		that in mind.
 *
 *--------------------------------------------------------------------*/

func (c *ClipRuntime) play(e *ClipEngine, state *ShowState) error {
	var now = state.clock()

	for c.playing {
		if c.advance_at.After(now) {
			return nil
		}

		if c.step < 0 || c.step >= len(c.steps) {
			logger.Error("Clip ran past its last step; stopping", "clip", c.name, "step", c.step)
			c.playing = false
			return nil
		}

		var step = c.steps[c.step]

		switch step.Kind {
		case STEP_MAPPING_ON:
			var meta = state.resolved.meta(step.Mapping.id)
			var overrides = effect_overrides{color: c.override_color, tempo: c.tempo}
			if err := state.activate(meta, &overrides); err != nil {
				return err
			}
			if !step.Mapping.OneShot {
				c.owned[step.Mapping.id] = struct{}{}
			}
			c.step++

		case STEP_MAPPING_OFF:
			if step.Index >= 0 && step.Index < len(c.steps) && c.steps[step.Index].Kind == STEP_MAPPING_ON {
				var mapping = c.steps[step.Index].Mapping
				if err := state.deactivate(state.resolved.meta(mapping.id)); err != nil {
					return err
				}
				delete(c.owned, mapping.id)
			} else {
				logger.Error("Mapping-off step does not point at a mapping-on step",
					"clip", c.name, "step", c.step, "index", step.Index)
			}
			c.step++

		case STEP_WAIT_BEATS:
			c.advance_at = now.Add(c.beats_to_duration(step.Beats))
			c.step++

		case STEP_WAIT_MILLIS:
			c.advance_at = now.Add(time.Duration(step.Millis) * time.Millisecond)
			c.step++

		case STEP_LOOP:
			c.step = step.Index

		case STEP_SET_COLOR:
			var color = step.Color
			c.override_color = &color
			c.step++

		case STEP_SET_TEMPO:
			c.tempo = step.Tempo
			c.step++

		case STEP_STOP:
			return c.stop(state)

		case STEP_STOP_OTHER:
			// a clip naming itself is not a Stop; it plays on
			if step.Other != c.name {
				if err := e.stop(step.Other, state); err != nil {
					return err
				}
			}
			c.step++

		case STEP_END:
			c.playing = false
		}
	}

	return nil
}

// Deactivate everything the clip still owns and halt it.  Reached by
// an external deactivation of the triggering mapping, a Stop step,
// or another clip's StopOther.
func (c *ClipRuntime) stop(state *ShowState) error {
	var ids = make([]int, 0, len(c.owned))
	for id := range c.owned {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	clear(c.owned)
	c.playing = false
	c.step = 0

	for _, id := range ids {
		if err := state.deactivate(state.resolved.meta(id)); err != nil {
			return err
		}
	}

	return nil
}
