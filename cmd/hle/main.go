// Command hle hosts the emulated services and lets a user call them from
// the command line, an interactive console, the debug HTTP API, or a
// WebAssembly guest.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/wippyai/hle/config"
	"github.com/wippyai/hle/debugapi"
	"github.com/wippyai/hle/kernel"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to YAML config file")
		list        = flag.Bool("list", false, "List services and their commands and exit")
		serviceName = flag.String("service", "", "Service or interface to open")
		cmdCode     = flag.String("cmd", "", "Command code to call (decimal or 0x hex)")
		args        = flag.String("arg", "", "Command arguments (comma-separated)")
		viaBridge   = flag.Bool("bridge", false, "Route calls through the WebAssembly bridge")
		guestFile   = flag.String("guest", "", "WebAssembly guest module importing \"hle\"")
		entry       = flag.String("entry", "_start", "Guest function to run")
		serve       = flag.Bool("serve", false, "Serve the debug API on api.listen")
		snapshot    = flag.Bool("snapshot", false, "Save a registry snapshot to the trace store on exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	opts := runOptions{
		service:   *serviceName,
		cmd:       *cmdCode,
		args:      splitArgs(*args),
		guest:     *guestFile,
		entry:     *entry,
		list:      *list,
		serve:     *serve,
		snapshot:  *snapshot,
		viaBridge: *viaBridge || *guestFile != "",
	}

	if !opts.list && !opts.serve && !*interactive && opts.guest == "" && (opts.service == "" || opts.cmd == "") {
		fmt.Fprintln(os.Stderr, "Usage: hle [-config file] -service <name> -cmd <code> [-arg a,b] [-bridge]")
		fmt.Fprintln(os.Stderr, "       hle [-config file] -list")
		fmt.Fprintln(os.Stderr, "       hle [-config file] -guest <file.wasm> [-entry name]")
		fmt.Fprintln(os.Stderr, "       hle [-config file] -serve")
		fmt.Fprintln(os.Stderr, "       hle [-config file] -i  (interactive mode)")
		os.Exit(1)
	}

	if *interactive {
		if err := runInteractive(cfg, opts.viaBridge); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type runOptions struct {
	service   string
	cmd       string
	guest     string
	entry     string
	args      []string
	list      bool
	serve     bool
	snapshot  bool
	viaBridge bool
}

func run(cfg *config.Config, opts runOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := buildLogger(cfg.Log, isTerminal())
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	h, err := newHost(ctx, cfg, log, opts.viaBridge)
	if err != nil {
		return err
	}
	defer h.close(context.Background())

	if opts.list {
		return listServices(h)
	}

	if opts.guest != "" {
		if err := runGuest(ctx, h, opts.guest, opts.entry); err != nil {
			return err
		}
	}

	if opts.service != "" && opts.cmd != "" {
		if err := callOnce(ctx, h, opts); err != nil {
			return err
		}
	}

	if opts.snapshot {
		digest, err := h.snapshot(ctx)
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		fmt.Printf("Snapshot: %s\n", digest)
	}

	if opts.serve {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is not configured")
		}
		var store debugapi.TraceStore
		if h.store != nil {
			store = h.store
		}
		srv := debugapi.New(debugapi.Config{Listen: cfg.API.Listen}, h.reg, h.caller, store, log.Named("api"))
		if err := srv.Start(ctx); err != nil && ctx.Err() == nil {
			return err
		}
	}
	return nil
}

func listServices(h *host) error {
	for _, reg := range h.reg.Registrations() {
		svc, err := h.reg.Instantiate(reg.Name)
		if err != nil {
			return err
		}
		if d, ok := svc.(kernel.Dropper); ok && !reg.Shared {
			d.Drop()
		}
		cmds := svc.Commands()
		kind := "interface"
		if reg.Port {
			kind = "port"
		}
		fmt.Printf("%s (%s %s, %s)\n", reg.Name, kind, cmds.Name(), cmds.Fingerprint())
		for _, c := range cmds.List() {
			fmt.Printf("  %s\n", formatCommand(c))
		}
	}
	return nil
}

func callOnce(ctx context.Context, h *host, opts runOptions) error {
	code, err := parseCode(opts.cmd)
	if err != nil {
		return err
	}
	session, err := h.open(ctx, opts.service)
	if err != nil {
		return fmt.Errorf("open %s: %w", opts.service, err)
	}
	reply, cmd, known, err := h.call(ctx, session, code, opts.args)
	if err != nil {
		return fmt.Errorf("call 0x%X: %w", code, err)
	}
	name := "unknown"
	if known {
		name = cmd.Name
	}
	fmt.Printf("%s 0x%X %s\n%s\n", opts.service, code, name, formatReply(reply, cmd, known))
	return nil
}

func runGuest(ctx context.Context, h *host, path, entry string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	g, err := h.runner.Load(ctx, path, data)
	if err != nil {
		return err
	}
	defer g.Close(context.Background())

	h.log.Info("running guest", zap.String("guest", path), zap.String("entry", entry))
	results, err := g.Call(ctx, entry)
	if err != nil {
		return err
	}
	fmt.Printf("Guest %s returned %v\n", entry, results)
	return nil
}
