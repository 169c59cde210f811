package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"time"

	"vscp/internal/bureau"
	"vscp/internal/hook"
	"vscp/internal/manager"
	"vscp/internal/opsapi"
	"vscp/internal/wls"
	"vscp/internal/wrlstore"
)

// RunCLI dispatches the "bureau" and "wls" subcommands. It returns false
// if args doesn't name either, leaving main free to print top-level usage.
func RunCLI(args []string) bool {
	if len(args) == 0 {
		return false
	}
	switch args[0] {
	case "bureau":
		os.Exit(runBureau(args[1:]))
	case "wls":
		os.Exit(runWLS(args[1:]))
	default:
		return false
	}
	return true
}

func runBureau(args []string) int {
	fs := flag.NewFlagSet("bureau", flag.ExitOnError)
	ip := fs.String("ip", "0.0.0.0", "address to bind")
	port := fs.Int("port", 5126, "port to bind")
	auraRadius := fs.Float64("aura-radius", 200, "aura interest radius, world units")
	connectTimeout := fs.Duration("connect-timeout", 10*time.Second, "time allowed to complete the handshake")
	maxUsers := fs.Int("max-users", 16, "maximum simultaneous users")
	fs.Int("max-queue", 32, "maximum staged (pre-handshake) connections (reserved)")
	fs.Parse(args)

	addr := net.JoinHostPort(*ip, strconv.Itoa(*port))
	b, err := bureau.New(addr, bureau.Options{
		MaxUsers:       int32(*maxUsers),
		AuraRadius:     float32(*auraRadius),
		ConnectTimeout: *connectTimeout,
	}, hook.Noop{})
	if err != nil {
		log.Printf("[bureau] bind %s: %v", addr, err)
		return 1
	}
	defer b.Close()
	log.Printf("[bureau] listening on %s (port %d)", addr, b.Port())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notifyShutdown(cancel)

	if err := b.Run(ctx); err != nil {
		log.Printf("[bureau] %v", err)
		return 1
	}
	return 0
}

func runWLS(args []string) int {
	fs := flag.NewFlagSet("wls", flag.ExitOnError)
	ip := fs.String("ip", "0.0.0.0", "address to bind")
	port := fs.Int("port", 5126, "port to bind")
	hostName := fs.String("host-name", "127.0.0.1", "hostname advertised to clients in lookup responses")
	maxBureaus := fs.Int("max-bureaus", 4, "maximum bureaus spawned per world, unless overridden per-WRL")
	maxUsers := fs.Int("max-users", 16, "default maximum users per bureau, unless overridden per-WRL")
	auraRadius := fs.Float64("aura-radius", 200, "aura interest radius passed to every spawned bureau")
	connectTimeout := fs.Duration("connect-timeout", 10*time.Second, "handshake timeout passed to every spawned bureau")
	wrlList := fs.String("wrl-list", "", "path to a newline-delimited WRL allowlist (empty: use the built-in defaults)")
	dbPath := fs.String("db", "wls.db", "sqlite path for the WRL registry and spawn log")
	apiAddr := fs.String("api-addr", ":8089", "ops HTTP API listen address (empty to disable)")
	fs.Parse(args)

	store, err := wrlstore.New(*dbPath)
	if err != nil {
		log.Printf("[wls] open store %s: %v", *dbPath, err)
		return 1
	}
	defer store.Close()

	if *wrlList != "" {
		names, err := readWRLList(*wrlList)
		if err != nil {
			log.Printf("[wls] read wrl-list %s: %v", *wrlList, err)
			return 1
		}
		if err := store.Seed(names); err != nil {
			log.Printf("[wls] seed wrl-list: %v", err)
			return 1
		}
	}

	addr := net.JoinHostPort(*ip, strconv.Itoa(*port))
	w, err := wls.New(addr, wls.Options{
		HostName:   *hostName,
		MaxBureaus: *maxBureaus,
		BureauOptions: bureau.Options{
			MaxUsers:   int32(*maxUsers),
			AuraRadius: float32(*auraRadius),
		},
		ConnectTimeout: *connectTimeout,
		HookFn:         func() hook.Hook { return hook.Noop{} },
	}, store)
	if err != nil {
		log.Printf("[wls] bind %s: %v", addr, err)
		return 1
	}
	defer w.Close()
	log.Printf("[wls] listening on %s (port %d)", addr, w.Port())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notifyShutdown(cancel)

	if *apiAddr != "" {
		api := opsapi.New(store, func() map[string]*manager.Manager { return w.Managers() })
		go func() {
			if err := api.Run(ctx, *apiAddr); err != nil {
				log.Printf("[opsapi] %v", err)
			}
		}()
		log.Printf("[opsapi] listening on %s", *apiAddr)
	}

	if err := w.Run(ctx); err != nil {
		log.Printf("[wls] %v", err)
		return 1
	}
	return 0
}

// notifyShutdown cancels ctx on the first interrupt signal.
func notifyShutdown(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[cli] shutting down...")
		cancel()
	}()
}

func readWRLList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var names []string
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := string(data[start:i])
			for len(line) > 0 && (line[len(line)-1] == '\r' || line[len(line)-1] == ' ') {
				line = line[:len(line)-1]
			}
			if line != "" {
				names = append(names, line)
			}
			start = i + 1
		}
	}
	return names, nil
}
