package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"bytemomo/harpoon/pkg/harpoonerr"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const firstPackets = 5

// Packet is the summary of one captured frame.
type Packet struct {
	Number   int       `json:"number"`
	Time     time.Time `json:"time"`
	Src      string    `json:"src,omitempty"`
	Dst      string    `json:"dst,omitempty"`
	Protocol string    `json:"protocol"`
	Length   int       `json:"length"`
}

// ProtocolCount is the number of packets seen for one protocol.
type ProtocolCount struct {
	Protocol string `json:"protocol"`
	Count    int    `json:"count"`
}

// Analysis holds the statistics of a capture file. When decoding stops
// early Error and Note are set and the remaining fields cover the packets
// read so far.
type Analysis struct {
	File          string          `json:"file"`
	PacketCount   int             `json:"packet_count"`
	UniqueIPs     int             `json:"unique_ips"`
	IPAddresses   []string        `json:"ip_addresses"`
	Protocols     []string        `json:"protocols"`
	TopProtocols  []ProtocolCount `json:"top_protocols"`
	AvgPacketSize float64         `json:"avg_packet_size"`
	TCPPorts      []int           `json:"tcp_ports"`
	UDPPorts      []int           `json:"udp_ports"`
	FirstPackets  []Packet        `json:"first_packets"`
	Start         time.Time       `json:"start,omitempty"`
	End           time.Time       `json:"end,omitempty"`
	Duration      time.Duration   `json:"duration"`
	Error         string          `json:"error,omitempty"`
	Note          string          `json:"note,omitempty"`
}

// Extra returns the analysis as report sections.
func (a *Analysis) Extra() map[string]any {
	return map[string]any{
		"packet_count":    a.PacketCount,
		"unique_ips":      a.UniqueIPs,
		"ip_addresses":    a.IPAddresses,
		"protocols":       a.Protocols,
		"top_protocols":   a.TopProtocols,
		"avg_packet_size": a.AvgPacketSize,
		"tcp_ports":       a.TCPPorts,
		"udp_ports":       a.UDPPorts,
		"first_packets":   a.FirstPackets,
		"duration":        a.Duration.String(),
	}
}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Analyze decodes a pcap or pcapng file.
func Analyze(path string) (*Analysis, error) {
	const op = "capture.analyze"

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, harpoonerr.E(op, harpoonerr.NotFound, "capture not found: "+filepath.Base(path), err)
		}
		return nil, fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()

	a := &Analysis{
		File:         filepath.Base(path),
		IPAddresses:  []string{},
		Protocols:    []string{},
		TopProtocols: []ProtocolCount{},
		TCPPorts:     []int{},
		UDPPorts:     []int{},
		FirstPackets: []Packet{},
	}

	r, err := openReader(f)
	if err != nil {
		a.fail(err)
		return a, nil
	}

	st := newStats()
	for {
		data, ci, err := r.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			a.fail(err)
			break
		}
		p := gopacket.NewPacket(data, r.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		st.add(a, p, ci)
	}
	st.finish(a)
	return a, nil
}

func (a *Analysis) fail(err error) {
	a.Error = err.Error()
	a.Note = "detailed analysis incomplete, download the pcap to inspect it manually"
}

func openReader(f *os.File) (packetReader, error) {
	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}
	// pcapng section header block
	if magic[0] == 0x0a && magic[1] == 0x0d && magic[2] == 0x0d && magic[3] == 0x0a {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}

type stats struct {
	ips       map[string]struct{}
	protocols map[string]struct{}
	counts    map[string]int
	tcp       map[int]struct{}
	udp       map[int]struct{}
	bytes     int
}

func newStats() *stats {
	return &stats{
		ips:       map[string]struct{}{},
		protocols: map[string]struct{}{},
		counts:    map[string]int{},
		tcp:       map[int]struct{}{},
		udp:       map[int]struct{}{},
	}
}

func (s *stats) add(a *Analysis, p gopacket.Packet, ci gopacket.CaptureInfo) {
	a.PacketCount++
	length := ci.Length
	if length == 0 {
		length = ci.CaptureLength
	}
	s.bytes += length

	if a.Start.IsZero() || ci.Timestamp.Before(a.Start) {
		a.Start = ci.Timestamp
	}
	if ci.Timestamp.After(a.End) {
		a.End = ci.Timestamp
	}

	pkt := Packet{Number: a.PacketCount, Time: ci.Timestamp, Length: length}

	for _, l := range p.Layers() {
		t := l.LayerType()
		if t == gopacket.LayerTypePayload || t == gopacket.LayerTypeDecodeFailure {
			continue
		}
		s.protocols[t.String()] = struct{}{}
		pkt.Protocol = t.String()
	}

	if nl := p.NetworkLayer(); nl != nil {
		src, dst := nl.NetworkFlow().Endpoints()
		pkt.Src, pkt.Dst = src.String(), dst.String()
		switch nl.LayerType() {
		case layers.LayerTypeIPv4, layers.LayerTypeIPv6:
			s.ips[pkt.Src] = struct{}{}
			s.ips[pkt.Dst] = struct{}{}
		}
	}
	if tcp, ok := p.Layer(layers.LayerTypeTCP).(*layers.TCP); ok {
		s.tcp[int(tcp.SrcPort)] = struct{}{}
		s.tcp[int(tcp.DstPort)] = struct{}{}
	}
	if udp, ok := p.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
		s.udp[int(udp.SrcPort)] = struct{}{}
		s.udp[int(udp.DstPort)] = struct{}{}
	}

	if pkt.Protocol != "" {
		s.counts[pkt.Protocol]++
	}
	if len(a.FirstPackets) < firstPackets {
		a.FirstPackets = append(a.FirstPackets, pkt)
	}
}

func (s *stats) finish(a *Analysis) {
	a.IPAddresses = sortedKeys(s.ips)
	a.UniqueIPs = len(a.IPAddresses)
	a.Protocols = sortedKeys(s.protocols)
	a.TCPPorts = sortedPorts(s.tcp)
	a.UDPPorts = sortedPorts(s.udp)
	if a.PacketCount > 0 {
		a.AvgPacketSize = float64(int(float64(s.bytes)/float64(a.PacketCount)*100+0.5)) / 100
		a.Duration = a.End.Sub(a.Start)
	}

	for proto, n := range s.counts {
		a.TopProtocols = append(a.TopProtocols, ProtocolCount{Protocol: proto, Count: n})
	}
	sort.Slice(a.TopProtocols, func(i, j int) bool {
		if a.TopProtocols[i].Count != a.TopProtocols[j].Count {
			return a.TopProtocols[i].Count > a.TopProtocols[j].Count
		}
		return a.TopProtocols[i].Protocol < a.TopProtocols[j].Protocol
	})
	if len(a.TopProtocols) > 3 {
		a.TopProtocols = a.TopProtocols[:3]
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedPorts(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for p := range m {
		if p > 0 {
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out
}
