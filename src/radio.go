package lampyrid

/*------------------------------------------------------------------
 *
 * Purpose:   	Drive the RFM69HCW transmitter module.
 *
 * Description:	The radio hangs off an SPI bus with its reset line on
 *		a GPIO.  We run it in variable-length FSK packet mode
 *		at 250 kbps / 250 kHz deviation with whitening and
 *		CRC, matching the GFSK_Rb250Fd250 configuration the
 *		receivers were built against.  Address filtering is
 *		left off; receivers filter on the logical target list
 *		inside the frame instead.
 *
 *		Power is the fiddly part.  Up to +13 dBm is PA1 alone,
 *		+14..17 combines PA1 and PA2, and +18..20 additionally
 *		needs the high-power test registers toggled on around
 *		every transmission (and over-current protection
 *		disabled while they are).
 *
 *		Sends are blocking: load the FIFO, switch to transmit,
 *		wait for the packet-sent flag, drop back to standby.
 *
 * References:	RFM69HCW datasheet,
 *		https://cdn.sparkfun.com/datasheets/Wireless/General/RFM69HCW-V1.1.pdf
 *		RadioHead RH_RF69.cpp MODEM_CONFIG_TABLE
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// the rf69 bonnet wires reset to GPIO25
const RESET_GPIO_CHIP = "gpiochip0"
const RESET_GPIO_LINE = 25

const BIT_RATE = 250_000
const FREQ_DEVIATION = 250_000
const PREAMBLE_LENGTH = 4
const SYNCWORD = "CHS"

// FXOSC / 2^19
const freq_step_hz = 32_000_000.0 / 524288.0

const (
	reg_fifo           uint8 = 0x00
	reg_op_mode        uint8 = 0x01
	reg_data_modul     uint8 = 0x02
	reg_bitrate_msb    uint8 = 0x03
	reg_bitrate_lsb    uint8 = 0x04
	reg_fdev_msb       uint8 = 0x05
	reg_fdev_lsb       uint8 = 0x06
	reg_frf_msb        uint8 = 0x07
	reg_frf_mid        uint8 = 0x08
	reg_frf_lsb        uint8 = 0x09
	reg_version        uint8 = 0x10
	reg_pa_level       uint8 = 0x11
	reg_ocp            uint8 = 0x13
	reg_rx_bw          uint8 = 0x19
	reg_afc_bw         uint8 = 0x1A
	reg_irq_flags1     uint8 = 0x27
	reg_irq_flags2     uint8 = 0x28
	reg_preamble_msb   uint8 = 0x2C
	reg_preamble_lsb   uint8 = 0x2D
	reg_sync_config    uint8 = 0x2E
	reg_sync_value1    uint8 = 0x2F
	reg_packet_config1 uint8 = 0x37
	reg_payload_length uint8 = 0x38
	reg_node_adrs      uint8 = 0x39
	reg_broadcast_adrs uint8 = 0x3A
	reg_fifo_thresh    uint8 = 0x3C
	reg_packet_config2 uint8 = 0x3D
	reg_test_pa1       uint8 = 0x5A
	reg_test_pa2       uint8 = 0x5C
)

const (
	mode_standby uint8 = 0x04
	mode_tx      uint8 = 0x0C
)

const irq1_mode_ready uint8 = 0x80
const irq2_packet_sent uint8 = 0x08

// silicon revision the version register reports for an RFM69
const rfm69_version = 0x24

const (
	test_pa1_normal uint8 = 0x55
	test_pa1_boost  uint8 = 0x5D
	test_pa2_normal uint8 = 0x70
	test_pa2_boost  uint8 = 0x7C

	ocp_on  uint8 = 0x1A
	ocp_off uint8 = 0x0F
)

type Radio struct {
	port  spi.PortCloser
	conn  spi.Conn
	reset *gpiocdev.Line

	from_id   uint8
	power     int8
	packet_id uint8
}

/*-------------------------------------------------------------------
 *
 * Name:        OpenRadio
 *
 * Purpose:     Bring the radio out of reset and program it.
 *
 * Description:	The bonnet pulls the reset pin high by default; the
 *		radio wakes when it is driven low.  After reset we
 *		verify the silicon version register before trusting
 *		any further configuration writes.
 *
 *--------------------------------------------------------------------*/

func OpenRadio(config *Config) (*Radio, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("initializing host drivers: %w", err)
	}

	var reset, resetErr = gpiocdev.RequestLine(RESET_GPIO_CHIP, RESET_GPIO_LINE,
		gpiocdev.AsOutput(1))
	if resetErr != nil {
		return nil, fmt.Errorf("requesting radio reset line: %w", resetErr)
	}

	// hold in reset, then release and let it settle
	time.Sleep(config.settle_time())
	if err := reset.SetValue(0); err != nil {
		reset.Close()
		return nil, fmt.Errorf("releasing radio reset: %w", err)
	}
	time.Sleep(config.settle_time())

	var port, portErr = spireg.Open(config.SpiDevice)
	if portErr != nil {
		reset.Close()
		return nil, fmt.Errorf("opening SPI device %s: %w", config.SpiDevice, portErr)
	}

	var conn, connErr = port.Connect(physic.MegaHertz, spi.Mode0, 8)
	if connErr != nil {
		port.Close()
		reset.Close()
		return nil, fmt.Errorf("configuring SPI device %s: %w", config.SpiDevice, connErr)
	}

	var radio = Radio{
		port:    port,
		conn:    conn,
		reset:   reset,
		from_id: config.TransmitterId,
		power:   config.TransmitterPower,
	}

	if err := radio.configure(config); err != nil {
		radio.Close()
		return nil, err
	}

	return &radio, nil
}

func (r *Radio) configure(config *Config) error {
	var version, versionErr = r.read_reg(reg_version)
	if versionErr != nil {
		return versionErr
	}
	if version != rfm69_version {
		return fmt.Errorf("radio not detected: version register reads 0x%02x, want 0x%02x",
			version, rfm69_version)
	}

	var pa_level, paErr = pa_level_for(config.TransmitterPower)
	if paErr != nil {
		return paErr
	}

	var frf = uint32(float64(config.Frequency)/freq_step_hz + 0.5)
	var fdev = uint32(float64(FREQ_DEVIATION)/freq_step_hz + 0.5)

	var writes = []struct {
		reg uint8
		val uint8
	}{
		{reg_op_mode, mode_standby},
		// packet mode, FSK, gaussian shaping BT=1.0
		{reg_data_modul, 0x01},
		{reg_bitrate_msb, uint8(32_000_000 / BIT_RATE >> 8)},
		{reg_bitrate_lsb, uint8(32_000_000 / BIT_RATE & 0xFF)},
		{reg_fdev_msb, uint8(fdev >> 8)},
		{reg_fdev_lsb, uint8(fdev)},
		{reg_frf_msb, uint8(frf >> 16)},
		{reg_frf_mid, uint8(frf >> 8)},
		{reg_frf_lsb, uint8(frf)},
		// RX and AFC bandwidth: 500 kHz, per the RadioHead table
		{reg_rx_bw, 0xE0},
		{reg_afc_bw, 0xE0},
		{reg_preamble_msb, PREAMBLE_LENGTH >> 8},
		{reg_preamble_lsb, PREAMBLE_LENGTH & 0xFF},
		// sync on, 3 sync bytes
		{reg_sync_config, 0x80 | ((len(SYNCWORD) - 1) << 3)},
		{reg_sync_value1 + 0, SYNCWORD[0]},
		{reg_sync_value1 + 1, SYNCWORD[1]},
		{reg_sync_value1 + 2, SYNCWORD[2]},
		// variable length, whitening, CRC, no address filtering
		{reg_packet_config1, 0xD0},
		{reg_payload_length, 0xFF},
		{reg_node_adrs, config.TransmitterId},
		{reg_broadcast_adrs, BROADCAST_ADDR},
		// start transmitting as soon as the FIFO is non-empty
		{reg_fifo_thresh, 0x8F},
		// auto RX restart
		{reg_packet_config2, 0x02},
		{reg_pa_level, pa_level},
	}

	for _, w := range writes {
		if err := r.write_reg(w.reg, w.val); err != nil {
			return err
		}
	}

	logger.Info("Radio configured",
		"spi", config.SpiDevice,
		"frequency", config.Frequency,
		"power_dbm", config.TransmitterPower,
		"transmitter_id", config.TransmitterId)

	return nil
}

/*
 * PA register selection by requested dBm.  Below +14 PA1 alone is
 * enough; +14..17 combines PA1+PA2; +18..20 uses the same combination
 * with the high-power window around each transmit.  Good writeup at
 * https://andrehessling.de/2015/02/07/figuring-out-the-power-level-settings-of-hoperfs-rfm69-hwhcw-modules/
 */

func pa_level_for(power int8) (uint8, error) {
	switch {
	case power >= -18 && power <= 13:
		return uint8(power+18) | 0x40, nil
	case power >= 14 && power <= 17:
		return uint8(power+14) | 0x60, nil
	case power >= 18 && power <= 20:
		return uint8(power+11) | 0x60, nil
	default:
		return 0, fmt.Errorf("unsupported transmit power: %d dBm", power)
	}
}

func (r *Radio) high_power() bool {
	return r.power >= 18
}

/*-------------------------------------------------------------------
 *
 * Name:        Send
 *
 * Purpose:     Transmit one packet, blocking until it is on the air.
 *
 * Description:	Marshals with the next wrapping packet id, loads the
 *		FIFO in standby, flips to transmit, and polls the
 *		packet-sent flag.  The high-power window is opened and
 *		closed around the transmission when the configured
 *		power needs it.
 *
 *--------------------------------------------------------------------*/

func (r *Radio) Send(p *Packet) error {
	var frame = p.Marshal(r.from_id, r.packet_id, 0)
	if len(frame) > MAX_FRAME_LEN {
		return fmt.Errorf("frame of %d bytes exceeds the %d byte FIFO limit", len(frame), MAX_FRAME_LEN)
	}

	logger.Debug("Sending packet", "bytes", fmt.Sprintf("% x", frame))

	if err := r.pre_tx(); err != nil {
		return err
	}

	var sendErr = r.transmit(frame)

	if err := r.post_tx(); err != nil && sendErr == nil {
		sendErr = err
	}

	r.packet_id++

	return sendErr
}

func (r *Radio) transmit(frame []byte) error {
	if err := r.set_mode(mode_standby); err != nil {
		return err
	}

	// burst write into the FIFO
	var w = make([]byte, 0, len(frame)+1)
	w = append(w, reg_fifo|0x80)
	w = append(w, frame...)
	if err := r.conn.Tx(w, nil); err != nil {
		return fmt.Errorf("loading FIFO: %w", err)
	}

	if err := r.set_mode(mode_tx); err != nil {
		return err
	}

	var deadline = time.Now().Add(100 * time.Millisecond)
	for {
		var flags, err = r.read_reg(reg_irq_flags2)
		if err != nil {
			return err
		}
		if flags&irq2_packet_sent != 0 {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for packet-sent")
		}
		time.Sleep(100 * time.Microsecond)
	}

	return r.set_mode(mode_standby)
}

func (r *Radio) pre_tx() error {
	if !r.high_power() {
		return nil
	}

	if err := r.write_reg(reg_ocp, ocp_off); err != nil {
		return err
	}
	if err := r.write_reg(reg_test_pa1, test_pa1_boost); err != nil {
		return err
	}

	return r.write_reg(reg_test_pa2, test_pa2_boost)
}

func (r *Radio) post_tx() error {
	if !r.high_power() {
		return nil
	}

	if err := r.write_reg(reg_ocp, ocp_on); err != nil {
		return err
	}
	if err := r.write_reg(reg_test_pa1, test_pa1_normal); err != nil {
		return err
	}

	return r.write_reg(reg_test_pa2, test_pa2_normal)
}

func (r *Radio) set_mode(mode uint8) error {
	if err := r.write_reg(reg_op_mode, mode); err != nil {
		return err
	}

	var deadline = time.Now().Add(10 * time.Millisecond)
	for {
		var flags, err = r.read_reg(reg_irq_flags1)
		if err != nil {
			return err
		}
		if flags&irq1_mode_ready != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for mode 0x%02x", mode)
		}
		time.Sleep(100 * time.Microsecond)
	}
}

func (r *Radio) write_reg(reg uint8, val uint8) error {
	if err := r.conn.Tx([]byte{reg | 0x80, val}, nil); err != nil {
		return fmt.Errorf("writing register 0x%02x: %w", reg, err)
	}

	return nil
}

func (r *Radio) read_reg(reg uint8) (uint8, error) {
	var rx [2]byte
	if err := r.conn.Tx([]byte{reg & 0x7F, 0}, rx[:]); err != nil {
		return 0, fmt.Errorf("reading register 0x%02x: %w", reg, err)
	}

	return rx[1], nil
}

func (r *Radio) Close() {
	if r.port != nil {
		r.port.Close()
	}
	if r.reset != nil {
		r.reset.Close()
	}
}
