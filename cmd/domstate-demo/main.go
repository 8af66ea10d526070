// Command domstate-demo wires every package in this module together
// against one already-running Chrome page and demonstrates the full
// poll -> click -> poll cycle, printing the initial payload and the
// click's ActionDeltaPayload as JSON.
//
// It is a thin construct-and-run wiring example, grounded on
// cmd/chrc/main.go's style (env-driven config, slog JSON logging,
// signal-driven shutdown) but with flags in place of an HTTP server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hazyhaar/domstate/action"
	"github.com/hazyhaar/domstate/cdp"
	"github.com/hazyhaar/domstate/compiler"
	"github.com/hazyhaar/domstate/delta"
	"github.com/hazyhaar/domstate/extractor"
	"github.com/hazyhaar/domstate/frametracker"
	"github.com/hazyhaar/domstate/network"
	"github.com/hazyhaar/domstate/pagestate"
	"github.com/hazyhaar/domstate/registry"
	"github.com/hazyhaar/domstate/stabilize"
	"github.com/hazyhaar/domstate/versionmanager"
)

func main() {
	wsURL := flag.String("ws-url", env("DOMSTATE_WS_URL", "ws://127.0.0.1:9222/devtools/browser"), "Chrome DevTools WebSocket endpoint")
	pageID := flag.String("page-id", env("DOMSTATE_PAGE_ID", "demo"), "stable id this process uses for the page")
	resourceTypes := flag.String("network-resource-types", env("DOMSTATE_NETWORK_TYPES", "XHR"), "comma-separated CDP resource types NetworkWatcher accumulates")
	logLevel := flag.String("log-level", env("DOMSTATE_LOG_LEVEL", "info"), "debug, info, warn, or error")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *wsURL, *pageID, *resourceTypes, logger); err != nil {
		logger.Error("domstate-demo: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, wsURL, pageID, resourceTypes string, logger *slog.Logger) error {
	tab, err := cdp.Connect(ctx, wsURL, pageID)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	tracker := frametracker.New(tab.Client, frametracker.Config{Logger: logger})
	if err := tracker.Initialize(ctx); err != nil {
		tab.Close()
		return fmt.Errorf("frametracker init: %w", err)
	}

	comp := compiler.New(tab.Client, extractor.New(tab.Client), tracker, pageID)
	vm := versionmanager.New(comp, versionmanager.Config{Logger: logger})
	state := pagestate.New(vm, pagestate.Config{Logger: logger})

	dom := stabilize.NewDomStabilizer(tab.Client, stabilize.Config{})
	idle := stabilize.NewNetworkIdleTracker(tab.Client)
	var types []string
	for _, t := range strings.Split(resourceTypes, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	netWatcher := network.Attach(tab.Client, network.Config{ResourceTypes: types})

	exec := action.New(vm, state, tracker, comp, dom, idle, action.Config{})

	store := registry.NewStore()
	page := &registry.Page{
		ID: pageID, Tab: tab, VM: vm, State: state, Tracker: tracker,
		Net: netWatcher, Idle: idle, Dom: dom, Action: exec,
	}
	if err := store.Add(page); err != nil {
		tab.Close()
		return fmt.Errorf("register page: %w", err)
	}
	defer store.Remove(pageID)

	logger.Info("domstate-demo: connected", "page_id", pageID, "ws_url", wsURL)

	// Initial poll: always a full snapshot, since the agent has no prior
	// version yet.
	decision, err := state.ComputeResponse(ctx, nil)
	if err != nil {
		return fmt.Errorf("initial compute_response: %w", err)
	}
	formatter := delta.New()
	payload, err := formatter.Format(decision, tracker.DrainInvalidations(), tracker.MainFrameID())
	if err != nil {
		return fmt.Errorf("format initial payload: %w", err)
	}
	printJSON(logger, "initial snapshot", payload)

	version := vm.Version()
	networkEntries := netWatcher.GetAndClear()
	logger.Info("domstate-demo: network entries since attach", "count", len(networkEntries))
	logger.Info("domstate-demo: registry stats", "pages", store.Stats())

	// Demonstrate ActionExecutor against a no-op action_fn; a real caller
	// supplies a Fn that issues the actual CDP mutation (Input.dispatchMouseEvent,
	// DOM.setAttributeValue, etc).
	result, err := exec.Execute(ctx, "noop", nil, &version, func(ctx context.Context, target action.Target) error {
		return nil
	})
	if err != nil {
		return fmt.Errorf("execute noop action: %w", err)
	}
	printJSON(logger, "action result", result)

	return nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printJSON(logger *slog.Logger, label string, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Warn("domstate-demo: marshal failed", "label", label, "error", err)
		return
	}
	fmt.Printf("--- %s ---\n%s\n", label, b)
}
