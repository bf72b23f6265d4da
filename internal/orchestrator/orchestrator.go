// Package orchestrator owns the top-level interface table (spec §4.8): it
// subscribes to kernel interface add/remove notifications on the "config"
// multicast group, spawns a STA or AP state machine per managed netdev, and
// demultiplexes "mlme" group events to the right one by ifindex. An
// allow/block name-pattern pair lets operators restrict which netdevs this
// daemon touches at all.
package orchestrator

import (
	"context"
	"net"
	"sync"

	"github.com/mdlayher/genetlink"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/mdlayher/wind/internal/ap"
	"github.com/mdlayher/wind/internal/nl"
	"github.com/mdlayher/wind/internal/sta"
)

// STAFactory builds a STA FSM for a newly discovered station-role netdev, or
// returns nil to leave it unmanaged.
type STAFactory func(ifindex int, name string, addr net.HardwareAddr) *sta.Conn

// APFactory builds an AP FSM for a newly discovered AP-role netdev, or
// returns nil to leave it unmanaged.
type APFactory func(ifindex int, name string, addr net.HardwareAddr) *ap.AP

type managedIface struct {
	name   string
	iftype uint32
	sta    *sta.Conn
	ap     *ap.AP
}

// Orchestrator is the daemon's single top-level component: one per nl80211
// Conn, for the process's lifetime.
type Orchestrator struct {
	nlc *nl.Conn
	log *logrus.Entry

	allow []string
	block []string

	newSTA STAFactory
	newAP  APFactory

	mu     sync.Mutex
	ifaces map[int]*managedIface
}

// New builds an Orchestrator. allow/block are shell-style glob patterns
// (path/filepath.Match syntax) matched against interface names; a netdev
// matching block, or failing to match a non-empty allow list, is never
// handed to newSTA/newAP.
func New(nlc *nl.Conn, log *logrus.Entry, allow, block []string, newSTA STAFactory, newAP APFactory) *Orchestrator {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Orchestrator{
		nlc:    nlc,
		log:    log.WithField("component", "orchestrator"),
		allow:  allow,
		block:  block,
		newSTA: newSTA,
		newAP:  newAP,
		ifaces: make(map[int]*managedIface),
	}
}

// Start joins the "config" and "mlme" multicast groups and begins managing
// interfaces as they're discovered. It does not block; events are delivered
// on whichever goroutine calls the nl.Conn's Receive (cmd/windd runs it in
// a loop).
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.nlc.RegisterMulticast(ctx, "config", o.handleConfigEvent); err != nil {
		return err
	}
	return o.nlc.RegisterMulticast(ctx, "mlme", o.handleMLMEEvent)
}

// Close tears down every managed interface's FSM.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for ifindex, mi := range o.ifaces {
		o.stopLocked(mi)
		delete(o.ifaces, ifindex)
	}
}

func (o *Orchestrator) handleConfigEvent(msg genetlink.Message) {
	ev, err := nl.ParseInterfaceEvent(msg)
	if err != nil {
		o.log.WithError(err).Warn("discarding malformed config event")
		return
	}

	switch msg.Header.Command {
	case unix.NL80211_CMD_NEW_INTERFACE:
		o.addInterface(ev)
	case unix.NL80211_CMD_DEL_INTERFACE:
		o.removeInterface(ev.Ifindex)
	}
}

func (o *Orchestrator) addInterface(ev nl.InterfaceEvent) {
	log := o.log.WithField("ifindex", ev.Ifindex)

	if !o.nameAllowed(ev.Name) {
		log.WithField("ifname", ev.Name).Debug("interface excluded by allow/block pattern")
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.ifaces[ev.Ifindex]; ok {
		return
	}

	mi := &managedIface{name: ev.Name, iftype: ev.IfType}

	var addr net.HardwareAddr
	if link, err := net.InterfaceByIndex(ev.Ifindex); err == nil {
		addr = link.HardwareAddr
	}

	switch ev.IfType {
	case unix.NL80211_IFTYPE_STATION:
		if o.newSTA != nil {
			mi.sta = o.newSTA(ev.Ifindex, ev.Name, addr)
		}
	case unix.NL80211_IFTYPE_AP:
		if o.newAP != nil {
			mi.ap = o.newAP(ev.Ifindex, ev.Name, addr)
			if mi.ap != nil {
				if err := mi.ap.Start(); err != nil {
					log.WithError(err).Error("failed to start AP role")
					mi.ap = nil
				}
			}
		}
	default:
		log.WithField("iftype", ev.IfType).Debug("ignoring netdev of unmanaged type")
	}

	o.ifaces[ev.Ifindex] = mi
}

func (o *Orchestrator) removeInterface(ifindex int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	mi, ok := o.ifaces[ifindex]
	if !ok {
		return
	}
	o.stopLocked(mi)
	delete(o.ifaces, ifindex)
}

func (o *Orchestrator) stopLocked(mi *managedIface) {
	if mi.sta != nil {
		mi.sta.Disconnect()
	}
	if mi.ap != nil {
		mi.ap.Stop()
	}
}

func (o *Orchestrator) handleMLMEEvent(msg genetlink.Message) {
	ev, err := nl.ParseEventCommon(msg)
	if err != nil {
		o.log.WithError(err).Warn("discarding malformed mlme event")
		return
	}

	o.mu.Lock()
	mi, ok := o.ifaces[ev.Ifindex]
	o.mu.Unlock()
	if !ok || mi.sta == nil {
		return
	}

	switch msg.Header.Command {
	case unix.NL80211_CMD_CONNECT:
		mi.sta.HandleConnectEvent(ev.Status, ev.TimedOut, ev.RespIEs)
	case unix.NL80211_CMD_DISCONNECT, unix.NL80211_CMD_DEAUTHENTICATE, unix.NL80211_CMD_DISASSOCIATE:
		mi.sta.Disconnect()
	}
}
