// tc-gpstimer — таймер, дисциплинированный опорным PPS навигационного приёмника:
// калибрует свободно бегущий генератор по секундным фронтам, ведёт календарь
// по навигационному решению, выдаёт меандр с фазой от фронта и кадр времени и координат.
//
// Использование:
//
//	tc-gpstimer -configure                    — настроить time pulse приёмника (UBX CFG-TP5) и выйти
//	tc-gpstimer -run -config tc-gpstimer.yml  — daemon на часах хоста (/dev/pps, GPIO)
//	tc-gpstimer -simulate                     — прогон на эмулируемом генераторе
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/config"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/logger"
	"github.com/shiwa/timecard-mini/tc-gpstimer/pkg/clocksync"
)

func main() {
	configure := flag.Bool("configure", false, "настроить time pulse на UBX устройстве и выйти")
	run := flag.Bool("run", false, "запуск daemon на часах хоста")
	simulate := flag.Bool("simulate", false, "прогон на эмулируемом генераторе")
	seconds := flag.Int("seconds", 0, "длительность эмуляции, с (переопределяет config)")
	configPath := flag.String("config", "", "путь к YAML конфигу (по умолчанию tc-gpstimer.yml)")
	port := flag.String("port", "", "последовательный порт (переопределяет config)")
	baud := flag.Int("baud", 0, "скорость порта (переопределяет config)")
	pulseMs := flag.Float64("pulse-width-ms", 0, "длительность импульса в мс (переопределяет config)")
	quiet := flag.Bool("quiet", false, "меньше вывода")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *port != "" {
		cfg.Device.Port = *port
	}
	if *baud != 0 {
		cfg.Device.Baud = *baud
	}
	if *pulseMs > 0 {
		cfg.Timepulse.PulseWidthMs = *pulseMs
	}
	if *seconds > 0 {
		cfg.Simulation.Seconds = *seconds
	}
	if *run {
		cfg.Timer.Backend = config.BackendHost
	}
	if *simulate {
		cfg.Timer.Backend = config.BackendSim
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := logger.Init(cfg.Log.Level, *quiet); err != nil {
		log.Fatalf("log: %v", err)
	}
	defer logger.Sync()

	switch {
	case *configure:
		if err := clocksync.ConfigureTimePulse(cfg); err != nil {
			log.Fatal(err)
		}
		if !*quiet {
			fmt.Printf("Time pulse настроен: %s, %d baud, импульс %.2f мс\n",
				cfg.Device.Port, cfg.Device.Baud, cfg.Timepulse.PulseWidthMs)
		}
	case *run:
		runWithShutdown(func(ctx context.Context) error {
			return clocksync.RunDaemon(ctx, cfg)
		})
	case *simulate:
		runWithShutdown(func(ctx context.Context) error {
			rep, err := clocksync.RunSimulation(ctx, cfg, nil)
			if err != nil {
				return err
			}
			if !*quiet {
				fmt.Printf("Эмуляция %d с: %s, %d тиков/с, кадров %d (ошибок %d), время %s\n",
					rep.Seconds, rep.Stats.State, rep.Stats.TicksPerSecond,
					len(rep.Frames), rep.FrameErrors, rep.Now.Format("2006-01-02T15:04:05.000000Z"))
			}
			return nil
		})
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func loadConfig(path string) (*config.Config, error) {
	explicit := path != ""
	if !explicit {
		path = "tc-gpstimer.yml"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) && !explicit {
		return config.Default(), nil
	}
	return config.Load(path)
}

// runWithShutdown отменяет контекст по SIGINT/SIGTERM.
func runWithShutdown(fn func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("получен сигнал %v, завершение...", sig)
		cancel()
	}()

	if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("%v", err)
		os.Exit(1)
	}
}
