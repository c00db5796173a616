package lampyrid

/*------------------------------------------------------------------
 *
 * Purpose:   	Attach to the MIDI input and feed the director.
 *
 * Description:	The operator's controller shows up as a system MIDI
 *		input; we attach to the first port whose name starts
 *		with the configured prefix and forward every raw event
 *		buffer, with its timestamp, into the director's
 *		command channel.  The channel is bounded, so a stalled
 *		director applies backpressure instead of growing a
 *		queue.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // autoregisters the ALSA-backed driver
)

/*-------------------------------------------------------------------
 *
 * Name:        EnumerateMidiPorts
 *
 * Purpose:     List the available MIDI inputs, for --enumerate-midi.
 *
 *--------------------------------------------------------------------*/

func EnumerateMidiPorts() {
	fmt.Println("Available MIDI ports")
	fmt.Println("====================")

	for i, in := range midi.GetInPorts() {
		fmt.Printf("%d: %s\n", i+1, in.String())
	}
}

func find_midi_port(prefix string) (drivers.In, error) {
	for _, in := range midi.GetInPorts() {
		if strings.HasPrefix(in.String(), prefix) {
			return in, nil
		}
	}

	return nil, fmt.Errorf("no MIDI port matching prefix: %q", prefix)
}

/*-------------------------------------------------------------------
 *
 * Name:        StartMidiListener
 *
 * Purpose:     Begin forwarding MIDI events into the command
 *		channel.
 *
 * Inputs:	config		- For the port prefix and client name.
 *
 *		commands	- The director's channel.
 *
 * Returns:	A stop function to detach the listener, or an error
 *		if no matching port exists.
 *
 *--------------------------------------------------------------------*/

func StartMidiListener(config *Config, commands chan<- DirectorMessage) (func(), error) {
	var in, findErr = find_midi_port(config.MidiPort)
	if findErr != nil {
		return nil, findErr
	}

	logger.Info("Attaching to MIDI input",
		"client", config.MidiClientName,
		"port", in.String())

	var stop, listenErr = midi.ListenTo(in, func(msg midi.Message, timestampms int32) {
		commands <- DirectorMessage{
			Kind: MSG_MIDI,
			Ts:   uint64(timestampms),
			Buf:  []byte(msg),
		}
	})
	if listenErr != nil {
		return nil, fmt.Errorf("listening to MIDI port %s: %w", in.String(), listenErr)
	}

	return stop, nil
}

// Releases the MIDI driver; call once on the way out.
func CloseMidi() {
	midi.CloseDriver()
}
