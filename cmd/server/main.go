package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/tomoyay1622/Distributed-File-System/internal/access_table"
	"github.com/tomoyay1622/Distributed-File-System/internal/communication"
	grpccomm "github.com/tomoyay1622/Distributed-File-System/internal/communication/grpc"
	"github.com/tomoyay1622/Distributed-File-System/internal/communication/tcp"
	"github.com/tomoyay1622/Distributed-File-System/internal/config"
	"github.com/tomoyay1622/Distributed-File-System/internal/log_service"
	"github.com/tomoyay1622/Distributed-File-System/internal/log_service/localdisc"
	"github.com/tomoyay1622/Distributed-File-System/internal/protocol"
	"github.com/tomoyay1622/Distributed-File-System/internal/server"
	"github.com/tomoyay1622/Distributed-File-System/internal/storage_service"
)

func main() {
	configPath := pflag.String("config", "", "path to a YAML config file")
	pflag.String("listen", "", "TCP listen address (empty string disables)")
	pflag.String("grpc-listen", "", "gRPC listen address (empty string disables)")
	pflag.String("framing", "", "TCP framing: line, length or cbor")
	pflag.String("storage-root", "", "directory files are stored under")
	pflag.String("log-dir", "", "directory for the node log file")
	pflag.String("log-level", "", "minimum log level: DEBUG, INFO, WARN or ERROR")
	pflag.String("node-id", "", "node name used in log lines and the log file name")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dfs-server: %v\n", err)
		os.Exit(1)
	}

	// Flags given on the command line win over the file.
	overrides := map[string]*string{
		"listen":       &cfg.Listen,
		"grpc-listen":  &cfg.GRPCListen,
		"framing":      &cfg.Framing,
		"storage-root": &cfg.StorageRoot,
		"log-dir":      &cfg.LogDir,
		"log-level":    &cfg.LogLevel,
		"node-id":      &cfg.NodeID,
	}
	pflag.Visit(func(f *pflag.Flag) {
		if dst, ok := overrides[f.Name]; ok {
			*dst = f.Value.String()
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "dfs-server: %v\n", err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "dfs-server: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ls, err := localdisc.NewLocalDiscLogService(cfg.LogDir, cfg.NodeID, os.Stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer ls.Close()

	storage, err := storage_service.NewLocalDiscStorageService(cfg.StorageRoot, ls)
	if err != nil {
		ls.Error(log_service.LogEvent{
			Message:  "Failed to prepare storage root",
			Metadata: map[string]any{"root": cfg.StorageRoot, "error": err.Error()},
		})
		return err
	}
	table := access_table.NewInMemoryAccessTable(storage, ls)

	var comms []communication.Communicator
	if cfg.Listen != "" {
		comms = append(comms, tcp.NewTCPCommunicator(cfg.Listen, protocol.Framing(cfg.Framing), cfg.MaxFrameSize, ls))
	}
	if cfg.GRPCListen != "" {
		comms = append(comms, grpccomm.NewGRPCCommunicator(cfg.GRPCListen, cfg.MaxFrameSize, ls))
	}
	srv := server.NewDefaultServer(table, ls, comms...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ls.Info(log_service.LogEvent{
		Message: "File server starting",
		Metadata: map[string]any{
			"node":         cfg.NodeID,
			"storage_root": cfg.StorageRoot,
			"framing":      cfg.Framing,
		},
	})
	if err := srv.Run(ctx); err != nil {
		ls.Error(log_service.LogEvent{
			Message:  "File server exited with error",
			Metadata: map[string]any{"error": err.Error()},
		})
		return err
	}
	ls.Info(log_service.LogEvent{Message: "File server stopped"})
	return nil
}
