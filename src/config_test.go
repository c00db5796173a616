package lampyrid

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write_test_config(t *testing.T, body string) string {
	t.Helper()

	var path = filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	return path
}

const test_config_json = `{
	"spi_device": "/dev/spidev0.1",
	"frequency": 915000000,
	"transmitter_id": 1,
	"transmitter_power": 17,
	"midi_client_name": "lampyrid",
	"midi_port": "Launchpad",
	"midi_control_channel": 15,
	"show_file": "show.json",
	"lights_out_window_open": 2.0,
	"lights_out_window_close": 60.0,
	"lights_out_period": 1.0
}`

func Test_load_config(t *testing.T) {
	var config, err = LoadConfig(write_test_config(t, test_config_json))
	require.NoError(t, err)

	assert.Equal(t, "/dev/spidev0.1", config.SpiDevice)
	assert.Equal(t, uint32(915000000), config.Frequency)
	assert.Equal(t, uint8(1), config.TransmitterId)
	assert.Equal(t, int8(17), config.TransmitterPower)
	assert.Equal(t, uint8(15), config.MidiControlChannel)

	// defaults
	assert.Equal(t, uint32(DEFAULT_SETTLE_TIME_MILLIS), config.SettleTimeMillis)
	assert.Equal(t, DEFAULT_CHANNEL_BUF_DEPTH, config.ChannelBufDepth)

	assert.Equal(t, 2*time.Second, config.lights_out_window_open())
	assert.Equal(t, time.Minute, config.lights_out_window_close())
	assert.Equal(t, time.Second, config.lights_out_period())
	assert.Equal(t, 10*time.Millisecond, config.settle_time())
}

func Test_load_config_validation(t *testing.T) {
	var cases = map[string]string{
		"transmitter id in group range": `{"spi_device": "x", "transmitter_id": 10, "transmitter_power": 10,
			"show_file": "s", "lights_out_window_open": 1, "lights_out_window_close": 2, "lights_out_period": 1}`,
		"power too hot": `{"spi_device": "x", "transmitter_id": 1, "transmitter_power": 21,
			"show_file": "s", "lights_out_window_open": 1, "lights_out_window_close": 2, "lights_out_period": 1}`,
		"no show file": `{"spi_device": "x", "transmitter_id": 1, "transmitter_power": 10,
			"lights_out_window_open": 1, "lights_out_window_close": 2, "lights_out_period": 1}`,
		"window inverted": `{"spi_device": "x", "transmitter_id": 1, "transmitter_power": 10,
			"show_file": "s", "lights_out_window_open": 5, "lights_out_window_close": 2, "lights_out_period": 1}`,
		"no period": `{"spi_device": "x", "transmitter_id": 1, "transmitter_power": 10,
			"show_file": "s", "lights_out_window_open": 1, "lights_out_window_close": 2}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			var _, err = LoadConfig(write_test_config(t, body))
			assert.Error(t, err)
		})
	}
}

func Test_load_config_missing_file(t *testing.T) {
	var _, err = LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func Test_pa_level_for(t *testing.T) {
	var level, err = pa_level_for(-18)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x40), level)

	level, err = pa_level_for(13)
	require.NoError(t, err)
	assert.Equal(t, uint8(31|0x40), level)

	level, err = pa_level_for(17)
	require.NoError(t, err)
	assert.Equal(t, uint8(31|0x60), level)

	level, err = pa_level_for(20)
	require.NoError(t, err)
	assert.Equal(t, uint8(31|0x60), level)

	var _, badErr = pa_level_for(21)
	assert.Error(t, badErr)
}
