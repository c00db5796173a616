package lampyrid

/*------------------------------------------------------------------
 *
 * Purpose:   	The single event loop that runs the show.
 *
 * Description:	One goroutine owns all show state.  It waits on the
 *		command channel with a timeout equal to the next tick
 *		deadline; MIDI events, reloads and shutdown arrive as
 *		commands, and the timeout drives the clip engine and
 *		the lights-out keepalive.
 *
 *		A show that fails to load or a radio that fails to
 *		send does not take the process down: the loop logs and
 *		parks, draining commands until the operator reloads or
 *		shuts down.
 *
 *---------------------------------------------------------------*/

import (
	"time"
)

type MessageKind int

const (
	// a raw MIDI event buffer with its host timestamp
	MSG_MIDI MessageKind = iota

	// reload the show file and reinitialize receivers
	MSG_RELOAD

	// just reinitialize receivers
	MSG_REINITIALIZE

	// unwind the event loop
	MSG_SHUTDOWN
)

type DirectorMessage struct {
	Kind MessageKind
	Ts   uint64
	Buf  []byte
}

type Director struct {
	config   *Config
	radio    PacketSender
	commands chan DirectorMessage
}

func NewDirector(config *Config, radio PacketSender, commands chan DirectorMessage) *Director {
	return &Director{
		config:   config,
		radio:    radio,
		commands: commands,
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        RunShow
 *
 * Purpose:     Load the show and process commands until shutdown.
 *
 * Description:	The outer loop reloads the show; the inner loop
 *		multiplexes commands and tick deadlines.  Both the
 *		MIDI reset controller and a Reload command land back
 *		in the outer loop.
 *
 *--------------------------------------------------------------------*/

func (d *Director) RunShow() {
exit:
	for {
		var state, startErr = d.start_show()
		if startErr != nil {
			logger.Error("Show failed to start; waiting for reload", "error", startErr)
			if d.park() == MSG_SHUTDOWN {
				break exit
			}
			continue exit
		}

		var timeout = DEFAULT_TICK

	run:
		for {
			var timer = time.NewTimer(timeout)

			select {
			case msg, ok := <-d.commands:
				timer.Stop()

				if !ok {
					logger.Error("Command channel closed, exiting show loop")
					break exit
				}

				switch msg.Kind {
				case MSG_SHUTDOWN:
					break exit

				case MSG_RELOAD:
					logger.Info("Reloading show")
					continue exit

				case MSG_REINITIALIZE:
					logger.Info("Reinitializing receivers")
					if err := state.configure_receivers(); err != nil {
						logger.Error("Receiver configuration failed; waiting for reload", "error", err)
						break run
					}

				case MSG_MIDI:
					var reload, err = state.process_midi(msg.Buf)
					if err != nil {
						logger.Error("Radio send failed; waiting for reload", "error", err)
						break run
					}
					if reload {
						logger.Info("Reload requested from the control surface")
						continue exit
					}
				}

			case <-timer.C:
			}

			var next, tickErr = state.tick()
			if tickErr != nil {
				logger.Error("Radio send failed; waiting for reload", "error", tickErr)
				break run
			}

			timeout = next
			if timeout <= 0 {
				// a clip step fell due while we were busy
				timeout = time.Millisecond
			} else if timeout > DEFAULT_TICK {
				timeout = DEFAULT_TICK
			}
		}

		// parked after a runtime failure
		if d.park() == MSG_SHUTDOWN {
			break exit
		}
	}

	logger.Info("Show loop exited")
}

func (d *Director) start_show() (*ShowState, error) {
	var show, loadErr = load_show(d.config.ShowFile)
	if loadErr != nil {
		return nil, loadErr
	}

	var state, stateErr = new_show_state(show, d.config, d.radio, time.Now)
	if stateErr != nil {
		return nil, stateErr
	}

	if err := state.configure_receivers(); err != nil {
		return nil, err
	}

	logger.Info("Show started",
		"file", d.config.ShowFile,
		"receivers", len(show.Receivers),
		"mappings", len(show.Mappings),
		"clips", len(show.Clips))

	return state, nil
}

// Drain commands until something actionable arrives.
func (d *Director) park() MessageKind {
	for msg := range d.commands {
		switch msg.Kind {
		case MSG_RELOAD:
			return MSG_RELOAD
		case MSG_SHUTDOWN:
			return MSG_SHUTDOWN
		}
	}

	return MSG_SHUTDOWN
}

// Troubleshooting helper behind the --all-on flag: every receiver
// full white until told otherwise.
func SendAllOn(radio PacketSender) error {
	var sp = ShowPacket{
		Effect:  EFFECT_POP,
		Color:   Color{V: 255},
		Sustain: 255,
	}

	return radio.Send(&Packet{Payload: &sp})
}
