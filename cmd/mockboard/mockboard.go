// mockboard pretends to be a capture board: it answers the command protocol
// on the config port and, once told to record, streams correctly framed
// data packets carrying a deterministic ramp pattern. Useful for exercising
// radcap end to end on a machine with no hardware attached.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"time"

	"github.com/openradarlab/radcap"
	"github.com/openradarlab/radcap/packets"
)

type mockBoard struct {
	params   *radcap.DerivedParams
	dataDest string
	rate     float64 // packets per second
	dropOne  int     // drop every Nth packet (0: never)
	shuffle  bool    // swap adjacent packet pairs to simulate reordering
}

// serveControl answers commands until RECORD_START arrives, then returns
// the requester's IP so streaming can begin.
func (b *mockBoard) serveControl(port int) (net.IP, error) {
	laddr := &net.UDPAddr{Port: port}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	fmt.Printf("Answering commands on port %d\n", port)

	buf := make([]byte, radcap.MaxPacketSize)
	for {
		n, raddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return nil, err
		}
		if n < 8 || buf[0] != 0x5a || buf[1] != 0xa5 {
			continue
		}
		code := radcap.CommandCode(binary.LittleEndian.Uint16(buf[2:4]))
		fmt.Printf("<- %v from %v\n", code, raddr)

		// Respond with HEADER || CODE || STATUS(0) || FOOTER.
		resp := []byte{0x5a, 0xa5, buf[2], buf[3], 0x00, 0x00, 0xaa, 0xee}
		if _, err := conn.WriteToUDP(resp, raddr); err != nil {
			return nil, err
		}
		if code == radcap.RecordStart {
			return raddr.IP, nil
		}
	}
}

// stream sends frames forever. Sample values are the 16-bit stream offset,
// so every receiver-side slot is predictable.
func (b *mockBoard) stream(destIP net.IP, port int) error {
	dest := &net.UDPAddr{IP: destIP, Port: port}
	conn, err := net.DialUDP("udp", nil, dest)
	if err != nil {
		return err
	}
	defer conn.Close()
	fmt.Printf("Streaming data packets to %v\n", dest)

	interval := time.Duration(float64(time.Second) / b.rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending [][]byte
	var seq int32 = 1
	var byteCount uint64
	for {
		samples := make([]uint16, radcap.Uint16PerPacket)
		for i := range samples {
			samples[i] = uint16(byteCount/2) + uint16(i)
		}
		p := &packets.Packet{SequenceNumber: seq, ByteCount: byteCount, Samples: samples}
		data, err := packets.Encode(p)
		if err != nil {
			return err
		}
		seq++
		byteCount += radcap.BytesPerPacket

		if b.dropOne > 0 && rand.Intn(b.dropOne) == 0 {
			continue
		}
		pending = append(pending, data)
		if b.shuffle && len(pending) == 2 {
			pending[0], pending[1] = pending[1], pending[0]
		}
		if !b.shuffle || len(pending) == 2 {
			for _, d := range pending {
				<-ticker.C
				if _, err := conn.Write(d); err != nil {
					return err
				}
			}
			pending = pending[:0]
		}
	}
}

func main() {
	configPort := flag.Int("config-port", 4096, "port to answer commands on")
	dataPort := flag.Int("data-port", 4098, "port to stream data packets to")
	rate := flag.Float64("rate", 10000, "packets per second")
	drop := flag.Int("drop", 0, "drop roughly one packet in N (0: never)")
	shuffle := flag.Bool("shuffle", false, "swap adjacent packets to simulate reordering")
	flag.Parse()

	params, err := radcap.StreamParams{ChirpsPerFrame: 128, NumRx: 4, NumTx: 1,
		IQComponents: 1, SamplesPerChirp: 256, BytesPerSample: 4}.Derive()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Mock board: %d-byte frames, %d full packets per frame\n",
		params.FrameBytes, params.PacketsPerFrame)

	board := &mockBoard{params: params, rate: *rate, dropOne: *drop, shuffle: *shuffle}
	destIP, err := board.serveControl(*configPort)
	if err != nil {
		log.Fatal(err)
	}
	if err := board.stream(destIP, *dataPort); err != nil {
		log.Fatal(err)
	}
}
