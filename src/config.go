package lampyrid

/*------------------------------------------------------------------
 *
 * Purpose:   	Read and validate the system configuration file.
 *
 * Description:	The config file is JSON and covers everything that is
 *		a property of the installation rather than of a show:
 *		the radio (SPI device, frequency, id, power), the MIDI
 *		input to attach to, the show file path, and the
 *		lights-out keepalive timing.
 *
 *		Details of the radio modulation are hardcoded in
 *		radio.go because changing them would require matching
 *		changes in every receiver.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const DEFAULT_SETTLE_TIME_MILLIS = 10
const DEFAULT_CHANNEL_BUF_DEPTH = 10

type Config struct {

	// the SPI device the radio hangs off, eg /dev/spidev0.1
	SpiDevice string `json:"spi_device"`

	// carrier frequency in Hz
	Frequency uint32 `json:"frequency"`

	// our id when transmitting; receivers obey ids below 10
	TransmitterId uint8 `json:"transmitter_id"`

	// transmit power in dBm, -18..20.  +17 is a good ceiling for
	// most uses; 18 and up needs the high-power register dance on
	// every packet.
	TransmitterPower int8 `json:"transmitter_power"`

	// how long to let the radio sit after reset transitions
	SettleTimeMillis uint32 `json:"settle_time_millis"`

	// client name; logged when attaching to the MIDI input, not
	// passed to the MIDI driver
	MidiClientName string `json:"midi_client_name"`

	// the input port whose name starts with this prefix is used
	MidiPort string `json:"midi_port"`

	// channel number for out-of-show controls (sustain/test/reset)
	MidiControlChannel uint8 `json:"midi_control_channel"`

	// show file loaded at startup and on reload
	ShowFile string `json:"show_file"`

	// depth of the channel between the MIDI reader and the director
	ChannelBufDepth int `json:"channel_buf_depth"`

	// idle seconds after the last show packet before keepalive
	// off-packets start, and when they stop again
	LightsOutWindowOpen  float32 `json:"lights_out_window_open"`
	LightsOutWindowClose float32 `json:"lights_out_window_close"`

	// seconds between keepalive off-packets
	LightsOutPeriod float32 `json:"lights_out_period"`
}

func LoadConfig(path string) (*Config, error) {
	var data, readErr = os.ReadFile(path)
	if readErr != nil {
		return nil, fmt.Errorf("reading config file: %w", readErr)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if config.SettleTimeMillis == 0 {
		config.SettleTimeMillis = DEFAULT_SETTLE_TIME_MILLIS
	}
	if config.ChannelBufDepth == 0 {
		config.ChannelBufDepth = DEFAULT_CHANNEL_BUF_DEPTH
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.TransmitterId >= GROUP_ID_MIN {
		return fmt.Errorf("transmitter_id must be below %d, got %d", GROUP_ID_MIN, c.TransmitterId)
	}

	if c.TransmitterPower < -18 || c.TransmitterPower > 20 {
		return fmt.Errorf("transmitter_power must be in -18..20 dBm, got %d", c.TransmitterPower)
	}

	if c.ShowFile == "" {
		return fmt.Errorf("show_file is required")
	}

	if c.LightsOutPeriod <= 0 {
		return fmt.Errorf("lights_out_period must be positive")
	}

	if c.LightsOutWindowClose <= c.LightsOutWindowOpen {
		return fmt.Errorf("lights_out window close (%v) must be after open (%v)",
			c.LightsOutWindowClose, c.LightsOutWindowOpen)
	}

	return nil
}

func convert_secs(secs float32) time.Duration {
	return time.Duration(float64(secs) * float64(time.Second))
}

func (c *Config) lights_out_window_open() time.Duration {
	return convert_secs(c.LightsOutWindowOpen)
}

func (c *Config) lights_out_window_close() time.Duration {
	return convert_secs(c.LightsOutWindowClose)
}

func (c *Config) lights_out_period() time.Duration {
	return convert_secs(c.LightsOutPeriod)
}

func (c *Config) settle_time() time.Duration {
	return time.Duration(c.SettleTimeMillis) * time.Millisecond
}
