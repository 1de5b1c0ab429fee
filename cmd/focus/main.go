// Command focus runs the conference-focus controller: it loads the process
// configuration, wires the domain collaborators (bridge/Jibri breweries,
// the conference registry, authentication authority, and load
// redistributor), registers their IQ handlers on a mux.IQMux, and serves
// the admin HTTP surface, the way rustyguts-bken/server/main.go parses
// flags, builds its collaborators, and runs its servers under a
// signal-cancelled context.
package main

import (
	"context"
	"encoding/xml"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/jiconf/focus/auth"
	"github.com/jiconf/focus/bridge"
	"github.com/jiconf/focus/colibri"
	"github.com/jiconf/focus/conference"
	"github.com/jiconf/focus/config"
	"github.com/jiconf/focus/focuserr"
	"github.com/jiconf/focus/focusiq"
	"github.com/jiconf/focus/httpapi"
	"github.com/jiconf/focus/jibri"
	"github.com/jiconf/focus/jid"
	"github.com/jiconf/focus/jingle"
	"github.com/jiconf/focus/mux"
	"github.com/jiconf/focus/selector"
	"github.com/jiconf/focus/stanza"
)

func main() {
	configPath := flag.String("config", "focus.yaml", "path to the focus YAML configuration file")
	flag.Parse()

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}

	focusJID, err := jid.Parse(cfg.XMPP.FocusJID)
	if err != nil {
		log.Fatal().Err(err).Str("focus_jid", cfg.XMPP.FocusJID).Msg("parse focus JID")
	}

	transport := unconnectedTransport{log: log}

	bridgeBrewery := bridge.NewBrewery()
	jibriBrewery := jibri.NewBrewery()
	strategy := newStrategy(cfg.Selection)
	authStore := auth.NewStore(cfg.Auth.SessionLifetime)

	collab := conference.Collaborators{
		BridgeBrewery: bridgeBrewery,
		JibriBrewery:  jibriBrewery,
		Strategy:      strategy,
		ColibriSender: transport,
		JibriSender:   transport,
		JibriConfig:   jibri.Config{PendingTimeout: cfg.Jibri.PendingTimeout, NumRetries: cfg.Jibri.NumRetries},
		ColibriConfig: colibri.Config{NetworkTimeout: cfg.Colibri.NetworkTimeout, FailureCooldown: cfg.Selection.FailureCooldown},
		AuthStore:     authStore,
		Log:           log,
	}
	registry := conference.NewRegistry(collab)
	redis := conference.NewLoadRedistributor(registry, bridgeBrewery)

	authority := auth.NewAuthority(authStore, cfg.XMPP.TrustedDomain, registry.Exists)
	iqHandler := focusiq.New(authority, registry, *focusJID)

	jingleRegistry := jingle.NewRegistry(log)

	iqMux := mux.NewIQMux(
		mux.SetIQ(xml.Name{Space: "http://jitsi.org/protocol/focus", Local: "conference"}, mux.ConferenceIQHandler(iqHandler)),
		mux.SetIQ(xml.Name{Space: "urn:xmpp:jingle:1", Local: "jingle"}, mux.JingleIQHandler(jingleRegistry)),
		mux.SetIQ(xml.Name{Space: "http://jitsi.org/protocol/jibri", Local: "jibri"}, mux.JibriIQHandler(registry)),
	)
	_ = iqMux // wired for use by the XMPP transport layer once it dispatches inbound stanzas here

	admin := httpapi.New(iqHandler, redis, bridgeBrewery, *focusJID, cfg.Selection.FailureCooldown, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down")
		cancel()
	}()

	authStore.StartEvictionSweep(cfg.Auth.EvictionPoll)
	defer authStore.StopEviction()

	go runJibriTimeoutSweep(ctx, registry, cfg.Jibri.TimeoutSweepPoll)

	log.Info().Str("addr", cfg.HTTP.BindAddress).Msg("starting admin HTTP server")
	if err := admin.Run(ctx, cfg.HTTP.BindAddress); err != nil {
		log.Fatal().Err(err).Msg("admin HTTP server exited")
	}
}

// runJibriTimeoutSweep periodically sweeps every room for Jibri sessions
// stuck Pending past their timeout (spec.md:140's scenario S7), until ctx is
// canceled.
func runJibriTimeoutSweep(ctx context.Context, registry *conference.Registry, poll time.Duration) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			registry.CheckPendingJibriTimeouts(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func newStrategy(cfg config.BridgeSelectionConfig) selector.Strategy {
	switch cfg.Strategy {
	case "single-bridge":
		return selector.SingleBridge{}
	case "split-bridge":
		return selector.SplitBridge{}
	case "region-based":
		return selector.RegionBased{}
	default:
		return selector.RegionBasedWithCascade{}
	}
}

// errTransportUnwired is returned by unconnectedTransport's send methods;
// no network connection backs this process until a real transport is
// wired in.
var errTransportUnwired = focuserr.New(focuserr.ServiceUnavailable, "no XMPP transport wired")

// unconnectedTransport is the seam where a live mellium.im/xmpp session's
// send methods plug in once the connection layer is reintroduced (spec.md
// §1 treats XMPP connect/stanza I/O as an external collaborator). Every
// method reports service-unavailable rather than panicking or blocking, so
// a focus process started without a wired transport fails loudly per
// request instead of silently.
type unconnectedTransport struct {
	log zerolog.Logger
}

func (t unconnectedTransport) SendColibriIQ(_ context.Context, bridgeID string, iq stanza.ColibriConferenceIQ) (stanza.ColibriConferenceIQ, error) {
	t.log.Warn().Str("bridge", bridgeID).Msg("colibri send attempted with no XMPP transport wired")
	return stanza.ColibriConferenceIQ{}, errTransportUnwired
}

func (t unconnectedTransport) SendJibriIQ(_ context.Context, to *jid.JID, iq stanza.JibriIQ) (stanza.JibriIQ, error) {
	t.log.Warn().Str("to", to.String()).Msg("jibri send attempted with no XMPP transport wired")
	return stanza.JibriIQ{}, errTransportUnwired
}
