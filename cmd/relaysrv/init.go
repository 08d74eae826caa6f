package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/wtask/relay/internal/relay"
	"github.com/wtask/relay/pkg/semver"
)

type (
	// Configuration - server configuration
	Configuration struct {
		// IPAddress - bind the address
		IPAddress string
		// Port - bind the port
		Port uint
		// BufferSize - max num of bytes read from client per readiness event
		BufferSize int
		// BatchSize - max num of ready sockets handled per loop cycle
		BatchSize int
		// History - num of latest broadcasts kept and pushed to newly connected client
		History int
		// MetricsAddress - address of prometheus metrics endpoint, empty to disable
		MetricsAddress string
	}
)

var (
	// Config - current configuration of the server
	Config = Configuration{
		IPAddress:      "",
		Port:           relay.DefaultPort,
		BufferSize:     relay.DefaultBufferSize,
		BatchSize:      relay.DefaultBatchSize,
		History:        0,
		MetricsAddress: "",
	}

	// BinaryName - name of run application binary
	BinaryName = strings.TrimSuffix(filepath.Base(os.Args[0]), filepath.Ext(os.Args[0]))

	// buildVersion - release version injected with -ldflags "-X main.buildVersion=..."
	buildVersion = ""

	// Version - app version fingerprint
	Version = appVersion(buildVersion)
)

func appVersion(s string) string {
	fallback := semver.V{Minor: 1, PreRelease: "dev"}
	if s == "" {
		return fallback.String()
	}
	v, err := semver.Parse(s)
	if err != nil {
		fallback.BuildMetadata = []string{"invalid"}
		return fallback.String()
	}
	return v.String()
}

func init() {
	out := flag.CommandLine.Output()
	printUsage := func() {
		fmt.Fprintf(out, "Launch text relay server over TCP\n\n\t%s [options]\nOptions:\n\n", BinaryName)
		flag.PrintDefaults()
		fmt.Fprint(out, "\n")
	}
	printError := func(msg string) {
		fmt.Fprintf(out, "%s (v%s) error:\n\n\t%s\n", BinaryName, Version, msg)
	}

	help := false
	flag.BoolVar(&help, "help", false, "Print usage help")
	flag.StringVar(&Config.IPAddress, "ip", "", "Listen IPv4 address, all local addresses if empty")
	flag.UintVar(&Config.Port, "port", relay.DefaultPort, "Listen port")
	flag.IntVar(&Config.BufferSize, "buffer", relay.DefaultBufferSize, "Max num of bytes read from client at once")
	flag.IntVar(&Config.BatchSize, "batch", relay.DefaultBatchSize, "Max num of ready sockets handled per cycle")
	flag.IntVar(
		&Config.History,
		"history",
		0,
		"Num of latest broadcasts which are pushed to newly connected client, 0 to disable.",
	)
	flag.StringVar(&Config.MetricsAddress, "metrics", "", "Serve prometheus metrics on the address, e.g. 127.0.0.1:9100")

	flag.Parse()

	if help {
		printUsage()
		os.Exit(0)
	}

	if Config.IPAddress != "" {
		if ip := net.ParseIP(Config.IPAddress); ip == nil || ip.To4() == nil {
			printError("ip value should be IPv4 address")
			os.Exit(1)
		}
	}
	if Config.Port > 0xffff {
		printError("port value should be less or equal 65535")
		os.Exit(1)
	}
	if Config.BufferSize < 1 {
		printError("buffer value should be greater 0")
		os.Exit(1)
	}
	if Config.BatchSize < 1 {
		printError("batch value should be greater 0")
		os.Exit(1)
	}
	if Config.History < 0 {
		printError("history value should be greater or equal 0")
		os.Exit(1)
	}

	fmt.Fprint(out, "TCP relay server is launching, press Ctrl-C to stop...\n")
}
