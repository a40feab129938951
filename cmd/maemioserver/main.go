// Command maemioserver is the demo gRPC front-end for the maemio engine
// (out-of-core; see rpc/maemio.proto). It exists to show the Caller API
// embedded behind a network boundary, grounded on tinySQL's
// cmd/server/main.go.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/maemio/maemio"
	"github.com/maemio/maemio/rpc"
)

var (
	flagGRPC       = flag.String("grpc", ":9090", "gRPC listen address")
	flagConfig     = flag.String("config", "", "path to a YAML config file (defaults used if empty)")
	flagThreads    = flag.Int("threads", 0, "override thread_count from the config (0 keeps the config value)")
)

func main() {
	flag.Parse()

	cfg := maemio.DefaultConfig()
	if *flagConfig != "" {
		loaded, err := maemio.LoadConfigFile(*flagConfig)
		if err != nil {
			log.Fatalf("maemioserver: %v", err)
		}
		cfg = loaded
	}
	if *flagThreads > 0 {
		cfg.ThreadCount = *flagThreads
	}

	eng, err := maemio.NewEngine(cfg)
	if err != nil {
		log.Fatalf("maemioserver: %v", err)
	}
	eng.StartMaintenance()

	encoding.RegisterCodec(rpc.JSONCodec{})

	lis, err := net.Listen("tcp", *flagGRPC)
	if err != nil {
		log.Fatalf("maemioserver: listen %s: %v", *flagGRPC, err)
	}

	gs := grpc.NewServer()
	rpc.RegisterMaemioServiceServer(gs, &rpc.Server{Engine: eng})

	go func() {
		log.Printf("maemioserver: gRPC listening on %s", *flagGRPC)
		if err := gs.Serve(lis); err != nil {
			log.Printf("maemioserver: serve error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("maemioserver: shutting down")
	gs.GracefulStop()
	if err := eng.Shutdown(context.Background()); err != nil {
		log.Printf("maemioserver: engine shutdown: %v", err)
	}
}
