package main

/*------------------------------------------------------------------
 *
 * Purpose:   	Main program for the lampyrid transmitter: live MIDI
 *		in, RFM69 lighting packets out.
 *
 * Description:	Wires the pieces together: configuration, the radio,
 *		the MIDI listener, signal handling, and the director
 *		event loop.  SIGHUP reloads the show, SIGUSR1
 *		reinitializes the receivers, SIGINT/SIGTERM shut down.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	lampyrid "github.com/jmcelwee/lampyrid/src"
)

func main() {
	var configPath = pflag.StringP("config", "c", "", "path to the config file")
	var debug = pflag.BoolP("debug", "d", false, "enable debug logging")
	var enumerateMidi = pflag.BoolP("enumerate-midi", "e", false, "list MIDI inputs and exit")
	var allOn = pflag.BoolP("all-on", "a", false, "send an all-on-white packet and exit, for troubleshooting")
	pflag.Parse()

	lampyrid.LogInit(*debug)

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "a config file is required (-c/--config)")
		pflag.Usage()
		os.Exit(1)
	}

	var config, configErr = lampyrid.LoadConfig(*configPath)
	if configErr != nil {
		fmt.Fprintln(os.Stderr, configErr)
		os.Exit(1)
	}

	if *enumerateMidi {
		lampyrid.EnumerateMidiPorts()
		lampyrid.CloseMidi()
		return
	}

	var radio, radioErr = lampyrid.OpenRadio(config)
	if radioErr != nil {
		fmt.Fprintln(os.Stderr, radioErr)
		os.Exit(1)
	}
	defer radio.Close()

	if *allOn {
		if err := lampyrid.SendAllOn(radio); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	var commands = make(chan lampyrid.DirectorMessage, config.ChannelBufDepth)

	var stopMidi, midiErr = lampyrid.StartMidiListener(config, commands)
	if midiErr != nil {
		fmt.Fprintln(os.Stderr, midiErr)
		os.Exit(1)
	}
	defer lampyrid.CloseMidi()
	defer stopMidi()

	var signals = make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for sig := range signals {
			switch sig {
			case syscall.SIGHUP:
				commands <- lampyrid.DirectorMessage{Kind: lampyrid.MSG_RELOAD}
			case syscall.SIGUSR1:
				commands <- lampyrid.DirectorMessage{Kind: lampyrid.MSG_REINITIALIZE}
			default:
				commands <- lampyrid.DirectorMessage{Kind: lampyrid.MSG_SHUTDOWN}
			}
		}
	}()

	lampyrid.NewDirector(config, radio, commands).RunShow()
}
