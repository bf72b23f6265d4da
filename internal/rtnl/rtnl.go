// Package rtnl wraps the small slice of route-netlink operations this
// daemon needs directly: bringing an interface administratively up or down
// around CONNECT/DISCONNECT and START_AP/STOP_AP, and managing the IPv4
// addresses a soft-AP hands out on its own bridge interface. It is
// deliberately narrow — DHCP, routing and full link monitoring are out of
// scope (spec's Non-goals) — and is grounded on github.com/vishvananda/netlink,
// the rtnetlink library used elsewhere in the retrieved example pack.
package rtnl

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// ErrNoSuchLink is returned when the named interface doesn't exist.
var ErrNoSuchLink = fmt.Errorf("rtnl: no such link")

// LinkUp brings the named interface administratively up.
func LinkUp(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return wrapLinkErr(name, err)
	}
	return netlink.LinkSetUp(link)
}

// LinkDown brings the named interface administratively down.
func LinkDown(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return wrapLinkErr(name, err)
	}
	return netlink.LinkSetDown(link)
}

// OperState returns the kernel's current IFLA_OPERSTATE for the named
// interface, used by the STA FSM to confirm the link actually came up after
// a key install (spec §4.3's Operational state entry).
func OperState(name string) (netlink.LinkOperState, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return 0, wrapLinkErr(name, err)
	}
	return link.Attrs().OperState, nil
}

// AddAddr assigns an IPv4 address (in CIDR form, e.g. "192.168.1.1/24") to
// the named interface, used by the AP role to number its own bridge.
func AddAddr(name, cidr string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return wrapLinkErr(name, err)
	}

	addr, err := netlink.ParseAddr(cidr)
	if err != nil {
		return fmt.Errorf("rtnl: parse address %q: %w", cidr, err)
	}

	return netlink.AddrAdd(link, addr)
}

// FlushAddrs removes every IPv4 address assigned to the named interface,
// used during AP teardown.
func FlushAddrs(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return wrapLinkErr(name, err)
	}

	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return err
	}
	for _, a := range addrs {
		if err := netlink.AddrDel(link, &a); err != nil {
			return err
		}
	}
	return nil
}

// HardwareAddr returns the interface's MAC address, used to populate the
// AA/SPA fields of a new Handshake without going through nl80211.
func HardwareAddr(name string) (net.HardwareAddr, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, wrapLinkErr(name, err)
	}
	return link.Attrs().HardwareAddr, nil
}

func wrapLinkErr(name string, err error) error {
	if _, ok := err.(netlink.LinkNotFoundError); ok {
		return fmt.Errorf("rtnl: %s: %w", name, ErrNoSuchLink)
	}
	return err
}
