package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cloudflare/tableflip"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sawolke/mcwake/bedrockproxy"
	"github.com/sawolke/mcwake/config"
	"github.com/sawolke/mcwake/containerctl"
	"github.com/sawolke/mcwake/events"
	"github.com/sawolke/mcwake/javaproxy"
	"github.com/sawolke/mcwake/lifecycle"
	"github.com/sawolke/mcwake/probe"
	"go.uber.org/zap"
)

func main() {
	var (
		pidFile    = flag.String("pid-file", "/run/mcwake.pid", "`Path` to pid file")
		serversDir = flag.String("servers-dir", "", "`Path` to the directory of server config files")
		dockerHost = flag.String("docker-host", "", "Docker daemon socket; empty uses the environment default")
	)
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	proxyCfg := config.DefaultProxyConfig()
	proxyCfg.PidFile = *pidFile
	if *serversDir != "" {
		proxyCfg.ServersDir = *serversDir
	}
	if *dockerHost != "" {
		proxyCfg.DockerHost = *dockerHost
	}

	// tableflip owns every listener socket so a SIGHUP can re-exec this
	// binary onto a new build without closing the listening sockets,
	// grounded on the teacher's root main.go. Connections this process
	// already accepted end when it exits after its listeners drain.
	upg, err := tableflip.New(tableflip.Options{PIDFile: proxyCfg.PidFile})
	if err != nil {
		log.Fatal("starting tableflip", zap.Error(err))
	}
	defer upg.Stop()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGHUP)
		for range sig {
			if err := upg.Upgrade(); err != nil {
				log.Warn("upgrade failed", zap.Error(err))
			}
		}
	}()

	ctl, err := containerctl.New(proxyCfg.DockerHost, log)
	if err != nil {
		log.Fatal("connecting to docker", zap.Error(err))
	}
	defer ctl.Close()

	bus := events.NewBus(log)
	usageLog := events.NewUsageLogger(proxyCfg.UsageLogDir, log)
	bus.Subscribe(usageLog)
	defer usageLog.Close()

	prober := probe.New()
	mgr := lifecycle.NewManager(ctl, prober, bus, log)

	store := config.NewStore(proxyCfg.ServersDir, log)
	store.OnLoad(mgr.Sync)

	cfgs, loadErrs := store.Load()
	for _, e := range loadErrs {
		log.Warn("server config problem", zap.Error(e))
	}
	if err := store.Watch(); err != nil {
		log.Warn("config hot reload disabled", zap.Error(err))
	}
	defer store.Close()

	ctx, cancelReap := context.WithCancel(context.Background())
	go mgr.RunIdleReaper(ctx)
	defer cancelReap()

	var wg sync.WaitGroup
	listenCtx, cancelListeners := context.WithCancel(context.Background())

	for _, cfg := range cfgs {
		cfg := cfg
		if cfg.Edition == config.Java || cfg.Crossplay {
			startJavaListener(upg, &wg, listenCtx, cfg, mgr, bus, log)
		}
		if cfg.Edition == config.Bedrock || cfg.Crossplay {
			startBedrockListener(upg, &wg, listenCtx, cfg, mgr, log)
		}
	}

	if proxyCfg.UsePrometheus {
		startMetricsServer(upg, proxyCfg.PrometheusBind, log)
	}

	log.Info("ready", zap.Int("servers", len(cfgs)))
	if err := upg.Ready(); err != nil {
		log.Fatal("tableflip ready failed", zap.Error(err))
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-upg.Exit():
		log.Info("upgrade taking over, draining this process")
	case sig := <-shutdown:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	cancelListeners()
	cancelReap()

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(30 * time.Second):
		log.Warn("listeners did not drain before shutdown timeout")
	}

	mgr.Close()
	log.Info("shutdown complete")
}

func startJavaListener(upg *tableflip.Upgrader, wg *sync.WaitGroup, ctx context.Context, cfg config.ServerConfig, mgr *lifecycle.Manager, bus *events.Bus, log *zap.Logger) {
	addr := fmt.Sprintf(":%d", cfg.ExternalPort)
	ln, err := upg.Listen("tcp", addr)
	if err != nil {
		log.Error("failed to bind java listener", zap.String("server_id", cfg.ID), zap.String("addr", addr), zap.Error(err))
		return
	}

	listener := javaproxy.NewListener(cfg, mgr, bus, log.Named("java."+cfg.ID))
	wg.Add(1)
	go func() {
		defer wg.Done()
		listener.Serve(ctx, ln)
	}()
}

func startBedrockListener(upg *tableflip.Upgrader, wg *sync.WaitGroup, ctx context.Context, cfg config.ServerConfig, mgr *lifecycle.Manager, log *zap.Logger) {
	port := cfg.BedrockPort
	if port == 0 {
		port = cfg.ExternalPort
	}
	addr := fmt.Sprintf(":%d", port)

	packetConn, err := upg.ListenPacket("udp", addr)
	if err != nil {
		log.Error("failed to bind bedrock listener", zap.String("server_id", cfg.ID), zap.String("addr", addr), zap.Error(err))
		return
	}
	udpConn, ok := packetConn.(*net.UDPConn)
	if !ok {
		log.Error("failed to bind bedrock listener", zap.String("server_id", cfg.ID), zap.String("addr", addr), zap.Error(fmt.Errorf("unexpected packet conn type %T", packetConn)))
		return
	}

	listener := bedrockproxy.NewListener(cfg, mgr, log.Named("bedrock."+cfg.ID))
	wg.Add(1)
	go func() {
		defer wg.Done()
		listener.Serve(ctx, udpConn)
	}()
}

func startMetricsServer(upg *tableflip.Upgrader, bind string, log *zap.Logger) {
	ln, err := upg.Listen("tcp", bind)
	if err != nil {
		log.Warn("failed to bind metrics listener", zap.String("addr", bind), zap.Error(err))
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
}
