// Command proxy is a forwarding HTTP/1.1 caching proxy. Usage:
//
//	proxy <port> <cache_ttl_seconds> [<prefetch_depth>] [-v]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	flag "github.com/jnovack/flag"
	"github.com/rs/zerolog/log"

	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/blocklist"
	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/logging"
	"github.com/MatthewTeta/NetworkSystems-Proxy/internal/supervisor"
)

var (
	logLevel      = flag.String("log-level", "info", "log level: debug|info|warn|error")
	verbose       = flag.Bool("v", false, "enable verbose (debug) logging, equivalent to -log-level debug")
	blocklistPath = flag.String("blocklist", "./blocklist", "path to the blocklist file")
	cacheDir      = flag.String("cache-dir", "./cache", "path to the cache directory")
)

func main() {
	// The CLI contract places "-v" after the positional arguments
	// (`proxy <port> <ttl> [<prefetch_depth>] [-v]`), but the standard
	// flag package stops recognizing flags at the first non-flag
	// argument. Strip every "-v"/"--v" argument ourselves, wherever it
	// appears, before handing the rest to flag.Parse so both orderings work.
	rawArgs := os.Args[1:]
	forceVerbose := false
	filtered := make([]string, 0, len(rawArgs))
	for _, a := range rawArgs {
		if a == "-v" || a == "--v" {
			forceVerbose = true
			continue
		}
		filtered = append(filtered, a)
	}
	os.Args = append([]string{os.Args[0]}, filtered...)
	flag.Parse()

	level := *logLevel
	if *verbose || forceVerbose {
		level = "debug"
	}
	logging.Setup(level)

	args := flag.Args()
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: proxy <port> <cache_ttl_seconds> [<prefetch_depth>] [-v]")
		os.Exit(1)
	}

	port, err := strconv.Atoi(args[0])
	if err != nil {
		log.Error().Err(err).Str("port", args[0]).Msg("invalid port argument")
		os.Exit(1)
	}

	ttlSeconds, err := strconv.Atoi(args[1])
	if err != nil {
		log.Error().Err(err).Str("ttl", args[1]).Msg("invalid cache_ttl_seconds argument")
		os.Exit(1)
	}

	// prefetch_depth is accepted for CLI compatibility and otherwise
	// unused: prefetching is an explicit non-goal.
	if len(args) >= 3 {
		if _, err := strconv.Atoi(args[2]); err != nil {
			log.Error().Err(err).Str("prefetch_depth", args[2]).Msg("invalid prefetch_depth argument")
			os.Exit(1)
		}
	}

	bl, err := blocklist.Load(*blocklistPath)
	if err != nil {
		log.Error().Err(err).Str("path", *blocklistPath).Msg("failed to load blocklist")
		os.Exit(1)
	}

	sup, err := supervisor.New(supervisor.Config{
		Port:      port,
		TTL:       time.Duration(ttlSeconds) * time.Second,
		CacheDir:  *cacheDir,
		Blocklist: bl,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize proxy")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Int("port", port).
		Int("ttl_seconds", ttlSeconds).
		Str("blocklist", *blocklistPath).
		Str("cache_dir", *cacheDir).
		Msg("starting proxy")

	if err := sup.Run(ctx); err != nil {
		log.Error().Err(err).Msg("proxy exited with error")
		os.Exit(1)
	}

	log.Info().Msg("proxy shut down cleanly")
}
