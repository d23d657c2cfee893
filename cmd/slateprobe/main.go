// Command slateprobe opens a bare window, attaches the tablet backend to it
// and prints every event batch. It is the manual test harness: hover, draw
// and work the pad over the window and watch the stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"

	"slate/internal/config"
	"slate/internal/logging"
	"slate/internal/metrics"
	"slate/internal/x11"
	"slate/internal/xi"
	"slate/pkg/events"
)

func main() {
	var (
		configPath = flag.String("config", "", "configuration file (default: user config dir)")
		display    = flag.String("display", "", "X display (default: $DISPLAY or config)")
		duration   = flag.Duration("duration", 0, "exit after this long (0: run until interrupted)")
	)
	flag.Parse()

	path := *configPath
	if path == "" {
		path = config.ConfigPath()
	}
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "slateprobe:", err)
		os.Exit(1)
	}
	if *display != "" {
		cfg.X11.Display = *display
	}

	// Level and format are already validated by config. The level lives in
	// a LevelVar so a config reload can retune it.
	level, _ := logging.ParseLevel(cfg.Logging.Level)
	format, _ := logging.ParseFormat(cfg.Logging.Format)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)
	log := logging.New(&logging.Config{
		Leveler:   levelVar,
		Format:    format,
		Output:    os.Stderr,
		Component: "slateprobe",
	})

	if err := run(cfg, loader, levelVar, log, *duration); err != nil {
		log.Error("probe failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, loader *config.Loader, levelVar *slog.LevelVar, log *slog.Logger, duration time.Duration) error {
	// The window lives on its own core connection; the backend drives the
	// input extension over a separate one. X resources are server-global,
	// so the backend can select and grab on a window it did not create.
	xc, err := xgb.NewConnDisplay(cfg.X11.Display)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer xc.Close()

	window, err := createWindow(xc)
	if err != nil {
		return err
	}
	log.Info("window mapped", "window", window)

	conn, err := xi.Dial(cfg.X11.Display)
	if err != nil {
		return err
	}
	defer conn.Close()

	backend, err := x11.New(conn, window, &x11.Options{Logger: log})
	if err != nil {
		return err
	}
	for _, t := range backend.Tablets() {
		log.Info("tablet", "id", t.ID, "name", t.Name, "usb", t.USB != nil)
	}
	for _, t := range backend.Tools() {
		log.Info("tool", "id", t.ID, "name", t.Name, "kind", t.Kind,
			"pressure", t.Axes.Pressure, "tilt", t.Axes.Tilt != nil)
	}
	for _, p := range backend.Pads() {
		log.Info("pad", "id", p.ID, "buttons", p.Buttons, "ring", p.Ring)
	}

	// Hot reload: only the log level and the poll interval can change on a
	// live probe; display changes need a restart.
	reload := make(chan *config.Config, 1)
	loader.OnChange(func(c *config.Config) {
		select {
		case reload <- c:
		default:
		}
	})
	if err := loader.Watch(); err != nil {
		log.Warn("config watch unavailable", "err", err)
	}
	defer loader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	ticker := time.NewTicker(time.Duration(cfg.Pump.IntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return dumpMetrics(cfg)
		case newCfg := <-reload:
			if lvl, err := logging.ParseLevel(newCfg.Logging.Level); err == nil {
				levelVar.Set(lvl)
			}
			ticker.Reset(time.Duration(newCfg.Pump.IntervalMs) * time.Millisecond)
			log.Info("configuration reloaded",
				"level", newCfg.Logging.Level,
				"interval_ms", newCfg.Pump.IntervalMs,
			)
		case err := <-loader.Errors():
			log.Warn("config reload failed", "err", err)
		case <-ticker.C:
			if err := backend.Pump(); err != nil {
				return err
			}
			for _, ev := range backend.RawEvents() {
				logEvent(log, ev)
			}
		}
	}
}

// createWindow maps a plain top-level window for the backend to scope its
// grabs to.
func createWindow(xc *xgb.Conn) (uint32, error) {
	screen := xproto.Setup(xc).DefaultScreen(xc)

	wid, err := xproto.NewWindowId(xc)
	if err != nil {
		return 0, fmt.Errorf("allocate window id: %w", err)
	}
	err = xproto.CreateWindowChecked(xc,
		screen.RootDepth, wid, screen.Root,
		0, 0, 640, 480, 0,
		xproto.WindowClassInputOutput, screen.RootVisual,
		xproto.CwBackPixel|xproto.CwEventMask,
		[]uint32{screen.WhitePixel, xproto.EventMaskStructureNotify},
	).Check()
	if err != nil {
		return 0, fmt.Errorf("create window: %w", err)
	}
	if err := xproto.MapWindowChecked(xc, wid).Check(); err != nil {
		return 0, fmt.Errorf("map window: %w", err)
	}
	return uint32(wid), nil
}

func logEvent(log *slog.Logger, ev events.Event) {
	switch e := ev.(type) {
	case events.ToolIn:
		log.Info("tool in", "tool", e.Tool, "tablet", e.Tablet)
	case events.ToolOut:
		log.Info("tool out", "tool", e.Tool)
	case events.ToolDown:
		log.Info("tool down", "tool", e.Tool)
	case events.ToolUp:
		log.Info("tool up", "tool", e.Tool)
	case events.ToolPose:
		log.Info("tool pose", "tool", e.Tool,
			"x", e.Pose.X, "y", e.Pose.Y,
			"pressure", optional(e.Pose.Pressure),
			"tilt_x", optional(e.Pose.TiltX),
			"tilt_y", optional(e.Pose.TiltY),
		)
	case events.ToolButton:
		log.Info("tool button", "tool", e.Tool, "button", e.Button, "pressed", e.Pressed)
	case events.ToolFrame:
		log.Info("tool frame", "tool", e.Tool, "at", e.Time.Duration)
	case events.PadEnter:
		log.Info("pad enter", "pad", e.Pad, "tablet", e.Tablet)
	case events.PadButton:
		log.Info("pad button", "pad", e.Pad, "button", e.Button, "pressed", e.Pressed)
	case events.RingPose:
		log.Info("ring pose", "pad", e.Pad, "angle", e.Angle)
	case events.RingUp:
		log.Info("ring up", "pad", e.Pad)
	case events.RingFrame:
		log.Info("ring frame", "pad", e.Pad, "at", e.Time.Duration)
	default:
		log.Info("event", "type", fmt.Sprintf("%T", ev))
	}
}

func optional(o events.Optional) any {
	if !o.Valid {
		return nil
	}
	return o.Value
}

// dumpMetrics writes the text exposition at exit when configured.
func dumpMetrics(cfg *config.Config) error {
	if !cfg.Metrics.Enabled {
		return nil
	}
	out := os.Stderr
	if cfg.Metrics.DumpPath != "" {
		f, err := os.Create(cfg.Metrics.DumpPath)
		if err != nil {
			return fmt.Errorf("metrics dump: %w", err)
		}
		defer f.Close()
		out = f
	}
	return metrics.Default().WritePrometheus(out)
}
