package discovery

import (
	"fmt"
	"net"

	"github.com/libp2p/go-reuseport"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/gigi-net/gigi-core/internal/wire/dnswire"
)

// packetSocket is the minimal I/O surface a Task needs: send to the
// multicast group, receive inbound datagrams, close both sockets. The
// real implementation joins the multicast group on one interface; test
// doubles use an in-memory pipe.
type packetSocket interface {
	writeTo(b []byte) (int, error)
	readFrom(b []byte) (int, net.Addr, error)
	close() error
}

// multicastSocket pairs a receive socket bound to the discovery port
// and joined to the multicast group on one interface (SO_REUSEADDR/
// SO_REUSEPORT via go-reuseport, §4.C) with a send socket bound to the
// interface's own address.
type multicastSocket struct {
	recv net.PacketConn
	send *net.UDPConn
	dst  *net.UDPAddr
}

func openMulticastSocket(iface *net.Interface, localIP net.IP, family string) (*multicastSocket, error) {
	network := "udp4"
	groupIP := net.ParseIP(dnswire.MulticastIPv4)
	if family == "ipv6" {
		network = "udp6"
		groupIP = net.ParseIP(dnswire.MulticastIPv6)
	}

	recv, err := reuseport.ListenPacket(network, fmt.Sprintf(":%d", dnswire.Port))
	if err != nil {
		return nil, fmt.Errorf("discovery: listen %s: %w", network, err)
	}

	group := &net.UDPAddr{IP: groupIP, Port: dnswire.Port}

	if family == "ipv6" {
		p := ipv6.NewPacketConn(recv)
		if err := p.JoinGroup(iface, group); err != nil {
			recv.Close()
			return nil, fmt.Errorf("discovery: join group on %s: %w", iface.Name, err)
		}
		_ = p.SetMulticastLoopback(true)
		_ = p.SetMulticastHopLimit(1)
	} else {
		p := ipv4.NewPacketConn(recv)
		if err := p.JoinGroup(iface, group); err != nil {
			recv.Close()
			return nil, fmt.Errorf("discovery: join group on %s: %w", iface.Name, err)
		}
		_ = p.SetMulticastLoopback(true)
		_ = p.SetMulticastTTL(1)
	}

	send, err := net.ListenUDP(network, &net.UDPAddr{IP: localIP, Port: 0})
	if err != nil {
		recv.Close()
		return nil, fmt.Errorf("discovery: bind send socket on %s: %w", iface.Name, err)
	}

	return &multicastSocket{recv: recv, send: send, dst: group}, nil
}

func (s *multicastSocket) writeTo(b []byte) (int, error) {
	return s.send.WriteToUDP(b, s.dst)
}

func (s *multicastSocket) readFrom(b []byte) (int, net.Addr, error) {
	return s.recv.ReadFrom(b)
}

func (s *multicastSocket) close() error {
	err := s.send.Close()
	if recvErr := s.recv.Close(); recvErr != nil && err == nil {
		err = recvErr
	}
	return err
}
