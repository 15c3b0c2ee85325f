// Command beap-syncd serves the fleet policy sync API over gRPC. Nodes
// register, pull pending admin policy packages, and acknowledge delivery.
//
// Packages are loaded from a spool directory at startup; signing and
// verification keys never leave the operator's machine, so the daemon only
// ever holds signed package files produced by 'beap admin create/sign'.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"
	"google.golang.org/grpc"
	"gopkg.in/yaml.v3"

	"beap.dev/beap/admin"
	"beap.dev/beap/admin/grpcsync"
	"beap.dev/beap/keys"
)

type config struct {
	Listen      string `yaml:"listen"`
	PackagesDir string `yaml:"packagesDir"`
	LogLevel    string `yaml:"logLevel"`
}

func defaultConfig() config {
	return config{
		Listen:   "127.0.0.1:7878",
		LogLevel: "info",
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

func main() {
	fs := flag.NewFlagSet("beap-syncd", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file")
	listen := fs.String("listen", "", "listen address (overrides config)")
	packagesDir := fs.String("packages-dir", "", "directory of signed package files to serve (overrides config)")

	_ = fs.Parse(os.Args[1:])

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *packagesDir != "" {
		cfg.PackagesDir = *packagesDir
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q\n", cfg.LogLevel)
		os.Exit(2)
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           level,
		Prefix:          "beap-syncd",
	})

	store := admin.NewMemoryStore()
	dist := admin.NewDistributor(store, keys.PublicVerifier{})

	if cfg.PackagesDir != "" {
		n, err := loadPackages(store, cfg.PackagesDir, logger)
		if err != nil {
			logger.Fatal("load packages", "dir", cfg.PackagesDir, "err", err)
		}
		logger.Info("spool loaded", "dir", cfg.PackagesDir, "packages", n)
	}

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		logger.Fatal("listen", "addr", cfg.Listen, "err", err)
	}
	defer lis.Close()

	s := grpc.NewServer()
	grpcsync.RegisterSyncServer(s, &grpcsync.Server{Distributor: dist})

	logger.Info("listening", "addr", lis.Addr().String())
	if err := s.Serve(lis); err != nil {
		logger.Fatal("serve", "err", err)
	}
}

// loadPackages reads every *.json package file in dir into the store.
// Unverifiable packages are skipped with a warning rather than refused:
// nodes verify again before applying, and one bad file must not take the
// whole spool down.
func loadPackages(store admin.Store, dir string, logger *log.Logger) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, err
	}
	sort.Strings(paths)

	n := 0
	for _, path := range paths {
		b, err := os.ReadFile(path)
		if err != nil {
			return n, err
		}
		pkg, err := admin.DecodePackage(b)
		if err != nil {
			logger.Warn("skipping package file", "file", filepath.Base(path), "err", err)
			continue
		}
		if err := admin.VerifyPackage(pkg, keys.PublicVerifier{}); err != nil {
			logger.Warn("skipping unverifiable package", "file", filepath.Base(path), "id", pkg.ID, "err", err)
			continue
		}
		if err := store.SavePackage(pkg); err != nil {
			return n, err
		}
		logger.Debug("package loaded", "id", pkg.ID, "creator", pkg.Metadata.Creator, "priority", pkg.Metadata.Priority)
		n++
	}
	return n, nil
}
