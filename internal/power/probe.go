package power

import (
	"context"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const (
	DefaultPingTimeout     = 2 * time.Second
	DefaultDialTimeout     = 2 * time.Second
	DefaultConnectivityURL = "http://www.pushbullet.com"
)

// NetProbe answers Prober questions with real network traffic.
type NetProbe struct {
	PingTimeout     time.Duration
	DialTimeout     time.Duration
	ConnectivityURL string
	HTTPClient      *http.Client
}

var _ Prober = &NetProbe{}

// IsReachable sends a single ICMP echo. It tries a raw socket first and falls
// back to an unprivileged datagram socket when raw sockets are not permitted.
func (p *NetProbe) IsReachable(ctx context.Context, address string) bool {
	dst, err := net.ResolveIPAddr("ip4", address)
	if err != nil {
		return false
	}

	for _, network := range []string{"ip4:icmp", "udp4"} {
		ok, err := p.echo(ctx, network, dst)
		if err == nil {
			return ok
		}
	}
	return false
}

// echo returns an error only when the socket itself could not be opened.
func (p *NetProbe) echo(ctx context.Context, network string, dst *net.IPAddr) (bool, error) {
	conn, err := icmp.ListenPacket(network, "0.0.0.0")
	if err != nil {
		return false, err
	}
	defer conn.Close()

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   os.Getpid() & 0xffff,
			Seq:  1,
			Data: []byte("servermgr"),
		},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return false, nil
	}

	var target net.Addr = dst
	if network == "udp4" {
		target = &net.UDPAddr{IP: dst.IP}
	}

	timeout := p.PingTimeout
	if timeout <= 0 {
		timeout = DefaultPingTimeout
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return false, nil
	}

	if _, err := conn.WriteTo(wb, target); err != nil {
		return false, nil
	}

	rb := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			return false, nil
		}
		reply, err := icmp.ParseMessage(ipv4.ICMPTypeEcho.Protocol(), rb[:n])
		if err != nil {
			continue
		}
		if reply.Type == ipv4.ICMPTypeEchoReply && peerIP(peer).Equal(dst.IP) {
			return true, nil
		}
	}
}

func peerIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.IPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	}
	return nil
}

// IsPortOpen reports whether a TCP connection to address:port succeeds.
func (p *NetProbe) IsPortOpen(ctx context.Context, address string, port int32) bool {
	timeout := p.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(address, strconv.Itoa(int(port))))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// HasInternetConnectivity fetches a well-known URL and reports whether it
// answered without an HTTP error status.
func (p *NetProbe) HasInternetConnectivity(ctx context.Context) bool {
	url := p.ConnectivityURL
	if url == "" {
		url = DefaultConnectivityURL
	}
	client := p.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultPingTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < http.StatusBadRequest
}
