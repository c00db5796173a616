package lampyrid

/*------------------------------------------------------------------
 *
 * Purpose:   	Turn a loaded show definition into the lookup tables
 *		the runtime works from.
 *
 * Description:	Resolution does four jobs:
 *
 *		- hand out group ids (first seen group name gets the
 *		  bottom of the group range, then one up per group)
 *		- give every mapping a stable id, including mappings
 *		  that only exist inside clip steps
 *		- index mappings by their MIDI trigger
 *		- expand every mapping's target list into the shared
 *		  receiver state cells it will touch
 *
 *		The same receiver cell is referenced from every mapping
 *		that targets it; that sharing is what makes the
 *		ownership bookkeeping in showstate.go work.
 *
 *		Any unresolvable reference fails the whole resolution
 *		and the show refuses to start.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

/*
 * What one receiver is doing right now: nothing (0), or the id of the
 * mapping whose activation it is currently showing.  Only that
 * mapping - the owner - may turn the receiver off.
 */

type ReceiverState struct {
	id              uint8
	trigger_mapping int
}

const INACTIVE = 0

func (r *ReceiverState) activate(m *MappingMeta) {
	if m.source.OneShot {
		// one-shots run themselves out; nobody owns the receiver
		r.trigger_mapping = INACTIVE
	} else {
		r.trigger_mapping = m.id
	}
}

func (r *ReceiverState) activated_by(m *MappingMeta) bool {
	return r.trigger_mapping == m.id
}

func (r *ReceiverState) deactivate(m *MappingMeta) bool {
	var owned = r.trigger_mapping == m.id
	if owned {
		r.trigger_mapping = INACTIVE
	}

	return owned
}

/*
 * A mapping plus everything resolution derived from it: the target
 * bytes that go in packets, and the receiver cells an activation
 * should claim (groups expanded, the empty target list expanded to
 * every receiver).
 */

type MappingMeta struct {
	id        int
	source    *LightMapping
	targets   []uint8
	receivers []*ReceiverState
}

type trigger_key struct {
	channel uint8
	value   uint8
}

type ResolvedShow struct {
	show *ShowDefinition

	// name or numeric string -> target byte
	target_lookup map[string]uint8

	// group id -> member receiver ids
	group_members map[uint8][]uint8

	// shared state cells, plus the same cells in show order for
	// deterministic expansion of "all receivers"
	receiver_cells map[uint8]*ReceiverState
	receiver_order []*ReceiverState

	// several mappings may share a trigger; all of them fire
	note_mappings       map[trigger_key][]int
	controller_mappings map[trigger_key][]int

	mapping_meta map[int]*MappingMeta

	// clip names in iteration order, so runs are deterministic
	clip_order []string
}

/*-------------------------------------------------------------------
 *
 * Name:        resolve_show
 *
 * Purpose:     Build a ResolvedShow from a parsed show definition.
 *
 * Returns:	The resolved tables, or an error describing the first
 *		unresolvable reference.  On error the show must not be
 *		started.
 *
 *--------------------------------------------------------------------*/

func resolve_show(show *ShowDefinition) (*ResolvedShow, error) {
	var rs = ResolvedShow{
		show:                show,
		target_lookup:       make(map[string]uint8),
		group_members:       make(map[uint8][]uint8),
		receiver_cells:      make(map[uint8]*ReceiverState),
		note_mappings:       make(map[trigger_key][]int),
		controller_mappings: make(map[trigger_key][]int),
		mapping_meta:        make(map[int]*MappingMeta),
	}

	var next_group_id = GROUP_ID_MIN

	for i := range show.Receivers {
		var r = &show.Receivers[i]

		if r.Id < RECEIVER_ID_MIN {
			return nil, fmt.Errorf("receiver id %d is below the receiver range (%d..255)", r.Id, RECEIVER_ID_MIN)
		}

		rs.target_lookup[strconv.Itoa(int(r.Id))] = r.Id
		if r.Name != "" {
			rs.target_lookup[r.Name] = r.Id
		}

		if r.GroupName != "" {
			if _, ok := rs.target_lookup[r.GroupName]; !ok {
				if next_group_id >= RECEIVER_ID_MIN {
					return nil, fmt.Errorf("too many groups; ids %d..%d are exhausted", GROUP_ID_MIN, RECEIVER_ID_MIN-1)
				}
				rs.target_lookup[r.GroupName] = next_group_id
				next_group_id++
			}
			var group_id = rs.target_lookup[r.GroupName]
			rs.group_members[group_id] = append(rs.group_members[group_id], r.Id)
		}

		var cell = &ReceiverState{id: r.Id}
		rs.receiver_cells[r.Id] = cell
		rs.receiver_order = append(rs.receiver_order, cell)
	}

	// ids start at 1; 0 is the idle sentinel in receiver cells
	var next_mapping_id = 1

	for _, m := range show.Mappings {
		if m.Midi == nil {
			return nil, fmt.Errorf("mapping %q has no midi trigger", m.Cue)
		}

		if err := rs.register_mapping(m, next_mapping_id); err != nil {
			return nil, err
		}
		next_mapping_id++
	}

	// clip-embedded mappings come after the top-level ones, clips
	// visited in name order so ids are stable for an unchanged file
	for name := range show.Clips {
		rs.clip_order = append(rs.clip_order, name)
	}
	sort.Strings(rs.clip_order)

	for _, name := range rs.clip_order {
		for _, step := range show.Clips[name] {
			if step.Kind != STEP_MAPPING_ON {
				continue
			}
			if err := rs.register_mapping(step.Mapping, next_mapping_id); err != nil {
				return nil, fmt.Errorf("clip %q: %w", name, err)
			}
			next_mapping_id++
		}
	}

	return &rs, nil
}

func (rs *ResolvedShow) register_mapping(m *LightMapping, id int) error {
	if _, ok := rs.show.Colors[m.Color]; !ok {
		return fmt.Errorf("mapping %q: unknown color %q", m.Cue, m.Color)
	}

	if m.Light.Effect == nil && m.Light.Clip != "" {
		if _, ok := rs.show.Clips[m.Light.Clip]; !ok {
			logger.Warn("Mapping refers to a clip the show does not define", "cue", m.Cue, "clip", m.Light.Clip)
		}
	}

	var targets, targetsErr = rs.resolve_targets(m)
	if targetsErr != nil {
		return fmt.Errorf("mapping %q: %w", m.Cue, targetsErr)
	}

	m.id = id
	rs.mapping_meta[id] = &MappingMeta{
		id:        id,
		source:    m,
		targets:   targets,
		receivers: rs.expand_targets(targets),
	}

	if m.Midi != nil {
		switch {
		case m.Midi.Note != nil:
			var note, noteErr = parse_note_name(m.Midi.Note.Note)
			if noteErr != nil {
				return fmt.Errorf("mapping %q: %w", m.Cue, noteErr)
			}
			var key = trigger_key{channel: m.Midi.Note.Channel, value: note}
			rs.note_mappings[key] = append(rs.note_mappings[key], id)
		case m.Midi.Controller != nil:
			var key = trigger_key{channel: m.Midi.Controller.Channel, value: m.Midi.Controller.CC}
			rs.controller_mappings[key] = append(rs.controller_mappings[key], id)
		}
	}

	return nil
}

/*
 * A target token is a JSON number (a receiver id) or a string (a
 * receiver or group name).  Numbers must be integral ids in 1..255
 * and, like names, must refer to something the show configures.
 */

func (rs *ResolvedShow) resolve_targets(m *LightMapping) ([]uint8, error) {
	if m.Targets == nil {
		// all receivers, modeled as the empty target list
		return nil, nil
	}

	var targets = make([]uint8, 0, len(m.Targets))

	for _, raw := range m.Targets {
		var token any
		if err := json.Unmarshal(raw, &token); err != nil {
			return nil, fmt.Errorf("bad target %s: %w", raw, err)
		}

		var key string
		switch v := token.(type) {
		case float64:
			if v != float64(int(v)) || v < 1 || v > 255 {
				return nil, fmt.Errorf("numeric target must be a receiver id in 1..255, got %v", v)
			}
			key = strconv.Itoa(int(v))
		case string:
			key = v
		default:
			return nil, fmt.Errorf("unsupported data type in target list: %s", raw)
		}

		var id, ok = rs.target_lookup[key]
		if !ok {
			return nil, fmt.Errorf("target %q does not match any known receiver or group", key)
		}
		targets = append(targets, id)
	}

	return targets, nil
}

// Group ids become their member cells; an empty list becomes every
// receiver, in show order.
func (rs *ResolvedShow) expand_targets(targets []uint8) []*ReceiverState {
	if len(targets) == 0 {
		return rs.receiver_order
	}

	var cells []*ReceiverState
	for _, t := range targets {
		if members, ok := rs.group_members[t]; ok {
			for _, id := range members {
				cells = append(cells, rs.receiver_cells[id])
			}
		} else {
			cells = append(cells, rs.receiver_cells[t])
		}
	}

	return cells
}

func (rs *ResolvedShow) meta(id int) *MappingMeta {
	// populated for every id the resolver handed out, so a miss is
	// a programming error, not bad input
	var meta, ok = rs.mapping_meta[id]
	if !ok {
		panic(fmt.Sprintf("no mapping meta for id %d", id))
	}

	return meta
}
