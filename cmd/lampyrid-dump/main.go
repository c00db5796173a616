package main

/*------------------------------------------------------------------
 *
 * Purpose:   	Decode captured frames into something readable.
 *
 * Description:	Takes hex frames ("0f ff 01 00 00 01 ...") as
 *		arguments or on stdin, one per line, and prints the
 *		addressing, payload, and logical targets.  Handy when
 *		staring at a logic analyzer or at debug logs from the
 *		transmitter.
 *
 *---------------------------------------------------------------*/

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	lampyrid "github.com/jmcelwee/lampyrid/src"
)

func dump(line string) {
	var cleaned = strings.ReplaceAll(strings.TrimSpace(line), " ", "")
	if cleaned == "" {
		return
	}

	var frame, hexErr = hex.DecodeString(cleaned)
	if hexErr != nil {
		fmt.Fprintf(os.Stderr, "not hex: %s\n", line)
		return
	}

	var info, parseErr = lampyrid.ParseFrame(frame)
	if parseErr != nil {
		fmt.Fprintf(os.Stderr, "bad frame: %s\n", parseErr)
		return
	}

	fmt.Printf("dest=0x%02x from=%d id=%d flags=0x%02x", info.Dest, info.FromId, info.PacketId, info.Flags)

	if info.Show != nil {
		fmt.Printf(" show effect=%d hsv=(%d,%d,%d) attack=%d sustain=%d release=%d p1=%d p2=%d tempo=%d",
			info.Show.Effect,
			info.Show.Color.H, info.Show.Color.S, info.Show.Color.V,
			info.Show.Attack, info.Show.Sustain, info.Show.Release,
			info.Show.Param1, info.Show.Param2, info.Show.Tempo)
	} else {
		fmt.Printf(" control command=%d p1=%d p2=%d p3=%d",
			info.Control.Id, info.Control.P1, info.Control.P2, info.Control.P3)
	}

	if len(info.Targets) > 0 {
		fmt.Printf(" targets=%v", info.Targets)
	}
	fmt.Println()
}

func main() {
	if len(os.Args) > 1 {
		dump(strings.Join(os.Args[1:], " "))
		return
	}

	var scanner = bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		dump(scanner.Text())
	}
}
