package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/librescoot/link80211/pkg/mac"
	"github.com/librescoot/link80211/pkg/metrics"
	"github.com/librescoot/link80211/pkg/rf"
	"github.com/librescoot/link80211/pkg/telemetry"
)

var (
	mode            = flag.String("mode", "sim", "transport mode: sim or serial")
	serialDevice    = flag.String("serial-device", "/dev/ttyUSB0", "serial device path (mode=serial)")
	serialBaud      = flag.Int("serial-baud", 115200, "serial baud rate (mode=serial)")
	localMACFlag    = flag.String("mac", "0x0001", "local MAC address (hex)")
	redisAddr       = flag.String("redis-addr", "localhost:6379", "telemetry Redis address, empty disables telemetry")
	redisPass       = flag.String("redis-pass", "", "telemetry Redis password")
	redisDB         = flag.Int("redis-db", 0, "telemetry Redis database number")
	metricsAddr     = flag.String("metrics-addr", ":9120", "Prometheus /metrics listen address, empty disables")
	beaconInterval  = flag.Int("beacon-interval", -1, "beacon interval in seconds, -1 disables")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("Starting link80211 engine")

	localMAC, err := parseMAC(*localMACFlag)
	if err != nil {
		log.Fatalf("Invalid -mac: %v", err)
	}
	log.Printf("Local MAC: 0x%04x", localMAC)

	reg := prometheus.NewRegistry()
	metricsReg := metrics.New(reg)
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, reg)
	}

	transport, cleanup, err := buildTransport(localMAC)
	if err != nil {
		log.Fatalf("Failed to initialize RF transport: %v", err)
	}
	defer cleanup()
	log.Printf("RF transport ready (mode=%s)", *mode)

	controller := mac.New(transport, localMAC, metricsReg)
	defer controller.Stop()

	controller.Command(mac.CmdBeaconInterval, int32(*beaconInterval))

	var publisher *telemetry.Publisher
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *redisAddr != "" {
		publisher, err = telemetry.New(*redisAddr, *redisPass, *redisDB, *localMACFlag)
		if err != nil {
			log.Printf("Warning: telemetry disabled, failed to connect to Redis: %v", err)
		} else {
			defer publisher.Close()
			log.Printf("Connected telemetry to Redis at %s", *redisAddr)

			controller.Observe(func(status int32) {
				if err := publisher.PublishStatus(status); err != nil {
					log.Printf("telemetry: failed to publish status: %v", err)
				}
			})

			go publisher.WatchCommands(ctx, func(cmd, val int32) {
				controller.Command(cmd, val)
			})
		}
	}

	go deliverLoop(controller)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("Shutting down...")
}

func deliverLoop(controller *mac.Controller) {
	var d mac.Delivery
	for {
		n := controller.Recv(&d)
		if n < 0 {
			return
		}
		log.Printf("recv: %d bytes from 0x%04x: %q", n, d.Src, d.Payload)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Printf("Serving metrics on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("metrics server stopped: %v", err)
	}
}

func buildTransport(localMAC uint16) (rf.Transport, func(), error) {
	switch *mode {
	case "serial":
		s, err := rf.NewSerial(*serialDevice, *serialBaud, rf.DefaultParams)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case "sim":
		medium := rf.NewMedium(rf.DefaultParams)
		node := medium.Join(localMAC)
		return node, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown -mode %q (want sim or serial)", *mode)
	}
}

func parseMAC(s string) (uint16, error) {
	v, err := strconv.ParseUint(trimHexPrefix(s), 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

func trimHexPrefix(s string) string {
	if len(s) > 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		return s[2:]
	}
	return s
}
