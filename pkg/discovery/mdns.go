// Package discovery advertises and finds clocksync servers on the local
// network over mDNS.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// Service is the mDNS service type of a clocksync server.
const Service = "_clocksync._tcp"

// PathTXT is the TXT record carrying the time endpoint path.
const PathTXT = "path=/api/time"

// ErrNotFound means no server answered before the lookup timed out.
var ErrNotFound = errors.New("discovery: no clocksync server found")

// Advertiser publishes this server until Shutdown.
type Advertiser struct {
	server *mdns.Server
}

// Advertise announces instance on port.
func Advertise(instance string, port int) (*Advertiser, error) {
	ips, err := localIPs()
	if err != nil {
		return nil, fmt.Errorf("failed to get local IPs: %w", err)
	}
	service, err := mdns.NewMDNSService(instance, Service, "", "", port, ips, []string{PathTXT})
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to create mdns server: %w", err)
	}
	return &Advertiser{server: server}, nil
}

// Shutdown stops answering queries.
func (a *Advertiser) Shutdown() error {
	return a.server.Shutdown()
}

// Endpoint returns the time URL advertised by entry.
func Endpoint(entry *mdns.ServiceEntry) string {
	path := "/api/time"
	for _, f := range entry.InfoFields {
		if v, ok := strings.CutPrefix(f, "path="); ok && v != "" {
			path = v
		}
	}
	host := entry.Host
	if entry.AddrV4 != nil {
		host = entry.AddrV4.String()
	} else if entry.AddrV6 != nil {
		host = entry.AddrV6.String()
	}
	host = strings.TrimSuffix(host, ".")
	return "http://" + net.JoinHostPort(host, fmt.Sprint(entry.Port)) + path
}

// Lookup returns the endpoint URL of the first server that answers within
// timeout.
func Lookup(ctx context.Context, timeout time.Duration) (string, error) {
	entries := make(chan *mdns.ServiceEntry, 8)
	params := &mdns.QueryParam{
		Service:     Service,
		Domain:      "local",
		Timeout:     timeout,
		Entries:     entries,
		DisableIPv6: true,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- mdns.Query(params)
		close(entries)
	}()

	// Keep the query goroutine from blocking on a full channel after an
	// early return.
	drain := func() {
		go func() {
			for range entries {
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			drain()
			return "", ctx.Err()
		case e, ok := <-entries:
			if !ok {
				if err := <-errc; err != nil {
					return "", err
				}
				return "", ErrNotFound
			}
			if strings.Contains(e.Name, Service) {
				drain()
				return Endpoint(e), nil
			}
		}
	}
}

func localIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}
	return ips, nil
}
