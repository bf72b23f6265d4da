// Command windd is the daemon entry point: it dials nl80211, starts the
// top-level orchestrator, and runs until signaled.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/mdlayher/wind/internal/ap"
	"github.com/mdlayher/wind/internal/eapol"
	"github.com/mdlayher/wind/internal/nl"
	"github.com/mdlayher/wind/internal/orchestrator"
	"github.com/mdlayher/wind/internal/sta"
)

func main() {
	var (
		allowInterfaces = pflag.StringSlice("allow-interfaces", nil, "glob patterns of interface names to manage (default: all)")
		blockInterfaces = pflag.StringSlice("block-interfaces", nil, "glob patterns of interface names to never manage, checked before --allow-interfaces")
		eapolRetries    = pflag.Int("eapol-retries", eapol.DefaultMaxRetries, "maximum 4-Way Handshake retransmissions before deauthenticating a peer")
		logLevel        = pflag.String("log-level", "info", "logrus level: debug, info, warn, error")
	)
	pflag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "windd: invalid --log-level %q: %v\n", *logLevel, err)
		os.Exit(2)
	}
	logger := logrus.New()
	logger.SetLevel(level)
	log := logrus.NewEntry(logger)

	eapol.MaxRetries = *eapolRetries

	nlc, err := nl.Dial()
	if err != nil {
		log.WithError(err).Fatal("failed to dial nl80211")
	}
	defer nlc.Close()

	newSTA := func(ifindex int, name string, addr net.HardwareAddr) *sta.Conn {
		ilog := log.WithFields(logrus.Fields{"ifindex": ifindex, "ifname": name})
		return sta.New(nlc, ifindex, name, addr, func(ev sta.Event) {
			ilog.WithField("event", ev).Info("station event")
		})
	}

	// An AP role additionally needs a Config (SSID, RSNE, PMK, ...) that
	// only a profile store or management surface can supply; wiring one in
	// is out of this daemon's scope (spec's persistent-config non-goal), so
	// AP-role netdevs are logged and left unmanaged rather than guessed at.
	newAP := func(ifindex int, name string, _ net.HardwareAddr) *ap.AP {
		log.WithFields(logrus.Fields{"ifindex": ifindex, "ifname": name}).
			Warn("AP-role interface seen with no configured network; leaving unmanaged")
		return nil
	}

	orch := orchestrator.New(nlc, log, *allowInterfaces, *blockInterfaces, newSTA, newAP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := orch.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start orchestrator")
	}

	go func() {
		for {
			if err := nlc.Receive(); err != nil {
				log.WithError(err).Error("netlink receive loop exited")
				return
			}
		}
	}()

	log.WithField("eapol-retries", *eapolRetries).Info("windd started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.WithField("signal", s).Info("shutting down")

	orch.Close()
}
