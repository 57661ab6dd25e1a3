// Command gvcamd runs the GVCP control-plane engine: it binds the GVCP UDP
// socket, serves the read-only admin HTTP surface, and optionally streams
// GVSP frames and cross-domain events, following the lifecycle shape of the
// platform's own daemon entrypoints (bind, wire, serve, wait for signal).
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asgard/gvcam/internal/admin"
	"github.com/asgard/gvcam/internal/discovery"
	"github.com/asgard/gvcam/internal/eventbus"
	"github.com/asgard/gvcam/internal/gvcp"
	"github.com/asgard/gvcam/internal/observability"
	"github.com/asgard/gvcam/internal/platform"
	"github.com/asgard/gvcam/internal/registers"
	"github.com/asgard/gvcam/internal/streaming"
)

func main() {
	var (
		bindAddr    = flag.String("bind", ":3956", "UDP address the GVCP socket listens on")
		iface       = flag.String("iface", "eth0", "network interface to resolve device identity from")
		adminAddr   = flag.String("admin-addr", ":8080", "address the admin HTTP surface listens on")
		natsURL     = flag.String("nats-url", "", "NATS URL for cross-domain events (disabled if empty)")
		manufacturer = flag.String("manufacturer", "Asgard", "GVBS manufacturer name")
		model       = flag.String("model", "GVCAM-1", "GVBS model name")
		version     = flag.String("device-version", "1.0", "GVBS device version string")
		serial      = flag.String("serial", "SN0000", "GVBS serial number")
		corsOrigin  = flag.String("cors-origin", "*", "allowed CORS origin for the admin surface")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[gvcamd] ", log.LstdFlags)

	plat, err := platform.NewUDPPlatform(*bindAddr, *iface)
	if err != nil {
		logger.Fatalf("bind platform: %v", err)
	}
	defer plat.Close()

	tracer, shutdownTracing, err := observability.InitTracing("gvcamd")
	if err != nil {
		logger.Fatalf("init tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Printf("tracing shutdown: %v", err)
		}
	}()

	bus := eventbus.Connect(*natsURL, logger)
	defer bus.Close()

	id := registers.Identity{
		Manufacturer:  *manufacturer,
		Model:         *model,
		Version:       *version,
		Serial:        *serial,
		LinkSpeedMbps: 1000,
	}
	info := plat.CurrentNetInfo()
	bootstrap := registers.NewBootstrap(id, info)
	vendorBank := registers.NewVendorBank()
	xmlBlob := registers.BuildXMLBlob(id.Manufacturer, id.Model)

	discSvc := discovery.NewService(discovery.Config{Enabled: false, IntervalMs: 1000, Retries: 3}, plat, false)

	stats := &gvcp.Statistics{}
	collab := streaming.NewCollaborator(plat, streaming.NewMockFrameSource(), stats, logger, 0xA5A5A5A5)

	broadcaster := admin.NewBroadcaster(logger)
	go broadcaster.Start()
	defer broadcaster.Stop()

	store := registers.NewStore(bootstrap, vendorBank, xmlBlob, plat, collab, discSvc)
	engine := gvcp.NewEngine(store, discSvc, collab, plat, logger, tracer, 3)
	events := fanOutPublisher{bus, broadcaster}
	store.SetEventPublisher(events)
	engine.SetEventPublisher(events)

	observability.RegisterEngineMetrics(engine.Statistics(), discSvc)

	adminServer := &http.Server{
		Addr:    *adminAddr,
		Handler: admin.NewRouter(engine, broadcaster, []string{*corsOrigin}),
	}
	go func() {
		logger.Printf("admin surface listening on %s", *adminAddr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("admin surface stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events.Publish(admin.EventDaemonStarted, map[string]interface{}{"bind_addr": *bindAddr})
	logger.Printf("gvcp engine listening on %s", *bindAddr)
	runControlLoop(ctx, plat, engine, bootstrap, id, events, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	adminServer.Shutdown(shutdownCtx)
	events.Publish(admin.EventDaemonStopped, nil)
}

// fanOutPublisher forwards one event to the fleet-monitoring NATS subject and
// the admin WebSocket feed together, so a CCP transition or connection-status
// change reaches both sinks from the single Publish call the Store and the
// Engine make.
type fanOutPublisher struct {
	bus         *eventbus.Bus
	broadcaster *admin.Broadcaster
}

func (f fanOutPublisher) Publish(eventType string, payload map[string]interface{}) {
	f.bus.Publish(eventType, payload)
	f.broadcaster.Publish(eventType, payload)
}

// runControlLoop is the single-threaded receive/process/reply cycle spec §5
// describes: one blocking receive per iteration, discovery ticked once per
// pass, network-info updates drained without blocking.
func runControlLoop(ctx context.Context, plat *platform.UDPPlatform, engine *gvcp.Engine, bootstrap *registers.Bootstrap, id registers.Identity, events fanOutPublisher, logger *log.Logger) {
	buf := make([]byte, 1500)
	wasRecreating := false

	for {
		select {
		case <-ctx.Done():
			logger.Printf("control loop shutting down")
			return
		case info := <-plat.NetInfoUpdates():
			bootstrap.Populate(id, info)
		default:
		}

		engine.Discovery().Tick(plat.NowMillis(), bootstrap.Bytes())

		n, src, err := plat.ReceiveFrom(buf, time.Now().Add(200*time.Millisecond))
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			logger.Printf("receive error: %v", err)
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		engine.ProcessDatagram(ctx, data, src)

		if engine.ShouldRecreateSocket() && !wasRecreating {
			wasRecreating = true
			events.Publish(admin.EventSocketRecreateRequested, map[string]interface{}{"source": src.String()})
			logger.Printf("consecutive send failures crossed threshold, socket recreation requested")
		} else if !engine.ShouldRecreateSocket() {
			wasRecreating = false
		}
	}
}
