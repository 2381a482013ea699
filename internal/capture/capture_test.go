package capture

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"bytemomo/harpoon/internal/adapter/jsonreport"
	"bytemomo/harpoon/internal/artifact"
	"bytemomo/harpoon/internal/invoker"
	"bytemomo/harpoon/internal/report"
	"bytemomo/harpoon/internal/testutil"
	"bytemomo/harpoon/pkg/harpoonerr"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func frame(t *testing.T, src, dst string, transport gopacket.SerializableLayer, payload string) []byte {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version: 4,
		TTL:     64,
		SrcIP:   net.ParseIP(src).To4(),
		DstIP:   net.ParseIP(dst).To4(),
	}
	switch l := transport.(type) {
	case *layers.TCP:
		ip.Protocol = layers.IPProtocolTCP
		l.SetNetworkLayerForChecksum(ip)
	case *layers.UDP:
		ip.Protocol = layers.IPProtocolUDP
		l.SetNetworkLayerForChecksum(ip)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, transport, gopacket.Payload(payload)); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return buf.Bytes()
}

func writePcap(t *testing.T, dir string) string {
	t.Helper()

	frames := [][]byte{
		frame(t, "10.0.0.1", "10.0.0.2", &layers.TCP{SrcPort: 40000, DstPort: 80, SYN: true, Window: 1024}, ""),
		frame(t, "10.0.0.2", "10.0.0.1", &layers.TCP{SrcPort: 80, DstPort: 40000, SYN: true, ACK: true, Window: 1024}, ""),
		frame(t, "10.0.0.1", "10.0.0.3", &layers.UDP{SrcPort: 40001, DstPort: 40002}, "ping"),
	}

	var b bytes.Buffer
	w := pcapgo.NewWriter(&b)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		t.Fatal(err)
	}
	for i, f := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     t0.Add(time.Duration(i) * time.Second),
			CaptureLength: len(f),
			Length:        len(f),
		}
		if err := w.WritePacket(ci, f); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(dir, "sample.pcap")
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAnalyze(t *testing.T) {
	a, err := Analyze(writePcap(t, t.TempDir()))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if a.PacketCount != 3 || a.Note != "" {
		t.Fatalf("unexpected analysis %+v", a)
	}
	if want := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}; !reflect.DeepEqual(a.IPAddresses, want) || a.UniqueIPs != 3 {
		t.Errorf("ips = %v", a.IPAddresses)
	}
	if want := []string{"Ethernet", "IPv4", "TCP", "UDP"}; !reflect.DeepEqual(a.Protocols, want) {
		t.Errorf("protocols = %v", a.Protocols)
	}
	if want := []ProtocolCount{{"TCP", 2}, {"UDP", 1}}; !reflect.DeepEqual(a.TopProtocols, want) {
		t.Errorf("top protocols = %v", a.TopProtocols)
	}
	if want := []int{80, 40000}; !reflect.DeepEqual(a.TCPPorts, want) {
		t.Errorf("tcp ports = %v", a.TCPPorts)
	}
	if want := []int{40001, 40002}; !reflect.DeepEqual(a.UDPPorts, want) {
		t.Errorf("udp ports = %v", a.UDPPorts)
	}
	if a.Duration != 2*time.Second {
		t.Errorf("duration = %s", a.Duration)
	}
	if len(a.FirstPackets) != 3 || a.FirstPackets[2].Src != "10.0.0.1" || a.FirstPackets[2].Dst != "10.0.0.3" {
		t.Errorf("first packets = %+v", a.FirstPackets)
	}
	if a.AvgPacketSize <= 0 {
		t.Errorf("avg size = %v", a.AvgPacketSize)
	}
}

func TestAnalyzeTruncated(t *testing.T) {
	path := writePcap(t, t.TempDir())
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte{1, 2, 3, 4, 5})
	f.Close()

	a, err := Analyze(path)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.PacketCount != 3 || a.Note == "" || a.Error == "" {
		t.Fatalf("expected partial analysis, got %+v", a)
	}
}

func TestAnalyzeGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.pcap")
	os.WriteFile(path, []byte("definitely not a capture"), 0o644)

	a, err := Analyze(path)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.PacketCount != 0 || a.Note == "" {
		t.Fatalf("expected note, got %+v", a)
	}
}

func TestAnalyzeMissing(t *testing.T) {
	_, err := Analyze(filepath.Join(t.TempDir(), "none.pcap"))
	if !harpoonerr.Is(err, harpoonerr.NotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func newSniffer(t *testing.T, tool string) (*Sniffer, *artifact.Store) {
	store := artifact.New(t.TempDir(), nil)
	return NewSniffer(
		invoker.New(nil, map[string]string{Tool: tool}),
		store,
		report.NewGenerator(store, jsonreport.New(), nil),
		5*time.Second, nil,
	), store
}

func TestCapture(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake tools need /bin/sh")
	}
	fixture := writePcap(t, t.TempDir())
	tool := testutil.FakeTool(t, "tcpdump", `while [ $# -gt 0 ]; do
  if [ "$1" = "-w" ]; then out="$2"; fi
  shift
done
cat '`+fixture+`' > "$out"`)

	s, store := newSniffer(t, tool)
	path, err := s.Capture(context.Background(), "eth0", 3)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(path), "captures_eth0_") || filepath.Ext(path) != ".pcap" {
		t.Fatalf("unexpected path %s", path)
	}

	a, err := s.AnalyzeArtifact(filepath.Base(path))
	if err != nil || a.PacketCount != 3 {
		t.Fatalf("AnalyzeArtifact: %+v, %v", a, err)
	}

	out, _, err := s.Report(path)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	data, err := report.Load(out)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if data.Extra["packet_count"] != float64(3) {
		t.Fatalf("unexpected report extra %v", data.Extra)
	}
	entries, _ := store.List(artifact.GeneratedReports)
	if len(entries) != 1 {
		t.Fatalf("expected one report, got %d", len(entries))
	}
}

func TestCaptureFailureRemovesEmptyFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake tools need /bin/sh")
	}
	s, store := newSniffer(t, testutil.StaticTool(t, "tcpdump", "", 1))

	if _, err := s.Capture(context.Background(), "eth0", 10); !harpoonerr.Is(err, harpoonerr.ProcessError) {
		t.Fatalf("expected process error, got %v", err)
	}
	entries, err := store.List(artifact.Captures)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no captures, got %v", entries)
	}
}

func TestCaptureValidation(t *testing.T) {
	s, _ := newSniffer(t, "tcpdump")
	for _, tc := range []struct {
		iface string
		count int
	}{
		{"-w", 10},
		{"eth0; rm", 10},
		{"eth0", -1},
		{"eth0", MaxCount + 1},
	} {
		if _, err := s.Capture(context.Background(), tc.iface, tc.count); !harpoonerr.Is(err, harpoonerr.ValidationError) {
			t.Errorf("Capture(%q, %d): expected validation error, got %v", tc.iface, tc.count, err)
		}
	}
}

func TestInterfaces(t *testing.T) {
	s, _ := newSniffer(t, "tcpdump")
	ifs, err := s.Interfaces()
	if err != nil {
		t.Fatalf("Interfaces: %v", err)
	}
	for _, i := range ifs {
		if i.Name == "" {
			t.Fatalf("interface without name: %+v", i)
		}
	}
}
