package discovery

import (
	"context"
	"fmt"
	"net"

	"github.com/grandcat/zeroconf"
)

// Entry is one resolved service instance.
type Entry struct {
	Instance string
	HostName string
	Port     int
	Text     []string
	Addrs    []net.IP
}

// Browser resolves service instances. Browse calls found for every entry
// seen until ctx is done, then returns.
type Browser interface {
	Browse(ctx context.Context, service, domain string, found func(Entry)) error
}

// ZeroconfBrowser browses with grandcat/zeroconf.
type ZeroconfBrowser struct{}

// NewZeroconfBrowser returns a browser on all multicast interfaces.
func NewZeroconfBrowser() *ZeroconfBrowser {
	return &ZeroconfBrowser{}
}

// Browse implements Browser.
func (ZeroconfBrowser) Browse(ctx context.Context, service, domain string, found func(Entry)) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("creating mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := resolver.Browse(ctx, service, domain, entries); err != nil {
		return fmt.Errorf("browsing %s.%s: %w", service, domain, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case se, ok := <-entries:
			if !ok {
				return nil
			}
			if se == nil {
				continue
			}
			addrs := make([]net.IP, 0, len(se.AddrIPv4)+len(se.AddrIPv6))
			addrs = append(addrs, se.AddrIPv4...)
			addrs = append(addrs, se.AddrIPv6...)
			found(Entry{
				Instance: se.Instance,
				HostName: se.HostName,
				Port:     se.Port,
				Text:     se.Text,
				Addrs:    addrs,
			})
		}
	}
}
