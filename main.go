package main

//go:generate glslangValidator -V shaders/triangle.vert -o shaders/vert.spv
//go:generate glslangValidator -V shaders/triangle.frag -o shaders/frag.spv

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/vulkan-go/glfw/v3.3/glfw"
	"github.com/xlab/catcher"
	"github.com/xlab/closer"

	"hellotriangle/internal/config"
	"hellotriangle/internal/fpsmeter"
	"hellotriangle/internal/shaderwatch"
	"hellotriangle/internal/swapchain"
)

func init() {
	// GLFW/Vulkan require the main thread.
	runtime.LockOSThread()
}

var (
	configPath = flag.String("config", "", "path to a TOML config file (default $"+config.EnvPath+")")
	infoOnly   = flag.Bool("info", false, "print device and surface tables, then exit")
)

func main() {
	flag.Parse()
	defer catcher.Catch(
		catcher.RecvLog(true),
		catcher.RecvDie(-1),
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := cfg.Logger()
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("exit", "err", err)
		closer.Exit(1)
	}
	closer.Close()
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())

	if err := glfw.Init(); err != nil {
		cancel()
		return err
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	if cfg.Window.Resizable {
		glfw.WindowHint(glfw.Resizable, glfw.True)
	} else {
		glfw.WindowHint(glfw.Resizable, glfw.False)
	}
	if *infoOnly {
		glfw.WindowHint(glfw.Visible, glfw.False)
	}
	window, err := glfw.CreateWindow(cfg.Window.Width, cfg.Window.Height, cfg.Window.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		cancel()
		return err
	}

	app, err := newVulkanApp(ctx, window, cfg, log)
	if err != nil {
		window.Destroy()
		glfw.Terminate()
		cancel()
		return err
	}
	closer.Bind(func() {
		cancel()
		app.Cleanup(context.Background())
		window.Destroy()
		glfw.Terminate()
		log.Info("bye")
	})

	if *infoOnly {
		return app.printInfo(os.Stdout)
	}

	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			w.SetShouldClose(true)
		}
	})
	window.SetFramebufferSizeCallback(func(w *glfw.Window, width int, height int) {
		app.NotifyResize(width, height)
	})

	var watcher *shaderwatch.Watcher
	if cfg.Shaders.Watch {
		watcher, err = shaderwatch.New(cfg.Shaders.Dir, log)
		if err != nil {
			log.Warn("shader reload disabled", "err", err)
		} else {
			defer watcher.Close()
		}
	}

	meter := fpsmeter.New(time.Second)
	log.Info("entering main loop")
	for !window.ShouldClose() && ctx.Err() == nil {
		glfw.PollEvents()
		if watcher != nil && watcher.Changed() {
			log.Info("reloading shaders")
			if err := app.ReloadShaders(ctx); err != nil {
				return err
			}
		}
		if err := app.DrawFrame(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if swapchain.IsTransient(err) {
				log.Debug("frame skipped", "err", err)
				continue
			}
			return err
		}
		if st := app.Stats(); meter.Observe(st) {
			window.SetTitle(meter.Title(cfg.Window.Title, st))
		}
		if app.ctrl.State() != swapchain.Ready {
			// minimized: block instead of spinning
			glfw.WaitEventsTimeout(0.05)
		}
	}
	return nil
}
