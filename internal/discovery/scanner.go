package discovery

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fkcurrie/fluidnc-position-led/internal/config"
	"github.com/fkcurrie/fluidnc-position-led/internal/fluidnc"
)

// ErrNotFound is returned when no controller answered
var ErrNotFound = errors.New("no FluidNC controller found")

// statusQuery is the realtime command that makes the controller print a status line
const statusQuery = "?"

const maxParallel = 64

// Scanner represents a network scanner for discovering FluidNC devices
type Scanner struct {
	config config.DiscoveryConfig
}

// NewScanner creates a new network scanner
func NewScanner(config config.DiscoveryConfig) *Scanner {
	return &Scanner{
		config: config,
	}
}

// ScanResult represents the result of probing one host
type ScanResult struct {
	IPAddress string
	Port      int
	Valid     bool
	Status    string
	Error     error
}

// Find scans the local networks and returns the first host that answered like
// a FluidNC controller.
func (s *Scanner) Find(ctx context.Context) (string, error) {
	results, err := s.ScanNetwork(ctx)
	if err != nil {
		return "", err
	}
	for _, r := range results {
		if r.Valid {
			return r.IPAddress, nil
		}
	}
	return "", ErrNotFound
}

// ScanNetwork probes every host of the local IPv4 networks. Networks larger
// than a /24 are narrowed to the /24 around the local address.
func (s *Scanner) ScanNetwork(ctx context.Context) ([]ScanResult, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to get network interfaces: %w", err)
	}

	var hosts []string
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addresses, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addresses {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.To4() == nil || ipNet.IP.IsLinkLocalUnicast() {
				continue
			}
			for _, ip := range hostsInNetwork(ipNet) {
				hosts = append(hosts, ip.String())
			}
		}
	}

	log.Info().Int("hosts", len(hosts)).Int("port", s.config.Port).Msg("Scanning for FluidNC")
	results := s.ScanHosts(ctx, hosts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// ScanHosts probes hosts concurrently. Results are in the order of hosts.
func (s *Scanner) ScanHosts(ctx context.Context, hosts []string) []ScanResult {
	results := make([]ScanResult, len(hosts))
	sem := make(chan struct{}, maxParallel)

	var wg sync.WaitGroup
	for i, host := range hosts {
		wg.Add(1)
		go func(i int, host string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = ScanResult{IPAddress: host, Port: s.config.Port, Error: ctx.Err()}
				return
			}
			results[i] = s.Probe(ctx, host)
		}(i, host)
	}
	wg.Wait()
	return results
}

// Probe connects to the telnet port of host, asks for a status report and
// checks that a status line comes back before the timeout.
func (s *Scanner) Probe(ctx context.Context, host string) ScanResult {
	timeout := time.Duration(s.config.TimeoutMS) * time.Millisecond
	result := ScanResult{IPAddress: host, Port: s.config.Port}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(s.config.Port)))
	if err != nil {
		result.Error = err
		return result
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	conn.SetDeadline(deadline)

	if _, err := conn.Write([]byte(statusQuery)); err != nil {
		result.Error = err
		return result
	}

	var lines fluidnc.LineReader
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		for _, line := range lines.Feed(buf[:n]) {
			if fluidnc.IsStatusLine(line) {
				result.Valid = true
				result.Status = line
				log.Info().Str("host", host).Str("status", line).Msg("Found FluidNC")
				return result
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = errors.New("no status line")
			}
			result.Error = err
			return result
		}
	}
}

// hostsInNetwork lists the host addresses of ipNet other than its own
func hostsInNetwork(ipNet *net.IPNet) []net.IP {
	self := ipNet.IP.To4()
	mask := ipNet.Mask
	if ones, bits := mask.Size(); bits != 32 || ones < 24 {
		mask = net.CIDRMask(24, 32)
	}
	ones, _ := mask.Size()
	size := uint32(1) << (32 - ones)
	if size < 4 {
		return nil
	}

	network := binary.BigEndian.Uint32(self.Mask(mask))
	var out []net.IP
	for i := uint32(1); i < size-1; i++ {
		ip := make(net.IP, 4)
		binary.BigEndian.PutUint32(ip, network+i)
		if ip.Equal(self) {
			continue
		}
		out = append(out, ip)
	}
	return out
}
