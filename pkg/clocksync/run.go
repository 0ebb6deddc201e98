// Package clocksync собирает таймер из конфигурации и крутит его основной цикл:
// на хосте (RunDaemon) или в эмуляторе (RunSimulation).
package clocksync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/config"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/discipline"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/edge"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/hw/host"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/hw/pins"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/hw/pps"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/irq"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/logger"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/metrics"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/nav"
	"github.com/shiwa/timecard-mini/tc-gpstimer/internal/ubx"
	"github.com/shiwa/timecard-mini/tc-gpstimer/pkg/gpstimer"
)

// UpdateInterval — период основного цикла: несколько проходов за секунду,
// чтобы решение приёмника успевало в окно после фронта.
const UpdateInterval = 50 * time.Millisecond

// ConfigureTimePulse программирует PPS приёмника (UBX CFG-TP5) и ждёт подтверждения.
func ConfigureTimePulse(cfg *config.Config) error {
	port, err := ubx.Open(cfg.Device.Port, cfg.Device.Baud)
	if err != nil {
		return fmt.Errorf("открытие порта %s: %w", cfg.Device.Port, err)
	}
	defer port.Close()
	if err := port.ConfigureTimePulse(cfg.Timepulse.TP5(), 3*time.Second); err != nil {
		return fmt.Errorf("настройка time pulse: %w", err)
	}
	return nil
}

// disciplineConfig — параметры движка; частота 0 берётся у таймера.
func disciplineConfig(cfg *config.Config, nominal uint64) discipline.Config {
	return discipline.Config{
		NominalTicksPerSecond: nominal,
		StaleFactor:           cfg.Discipline.StaleFactor,
		RecalibrationGuard:    cfg.Discipline.RecalibrationGuard,
	}
}

// RunDaemon запускает таймер на часах хоста до отмены ctx.
// Фронты — /dev/ppsN, вывод GPIO и секундный тик приёмника; выходы — GPIO.
func RunDaemon(ctx context.Context, cfg *config.Config) error {
	if cfg.Timer.Backend != config.BackendHost {
		return fmt.Errorf("timer.backend %q: для daemon нужен %q", cfg.Timer.Backend, config.BackendHost)
	}
	kinds, err := cfg.Discipline.Kinds()
	if err != nil {
		return err
	}

	var navSrc nav.Source
	if cfg.Discipline.Uses(edge.KindNavigation) || cfg.Data.Enable {
		navSrc, err = nav.Open(cfg.Navigation.Protocol, cfg.Device.Port, cfg.Device.Baud)
		if err != nil {
			logger.Error("навигация %s на %s: %v", cfg.Navigation.Protocol, cfg.Device.Port, err)
			navSrc = nil
		} else {
			defer navSrc.Close()
		}
	}

	ctrl := irq.New()
	ht := host.New(ctrl)
	defer ht.Close()
	opts := gpstimer.Options{
		Discipline: disciplineConfig(cfg, 0),
		Sources:    kinds,
	}
	if navSrc != nil {
		opts.Nav = navSrc
	}
	tm, err := gpstimer.New(ctrl, ht, opts)
	if err != nil {
		return err
	}
	ht.Start(tm)

	sources, err := openEdgeSources(cfg)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range sources {
			_ = s.Close()
		}
	}()
	for _, s := range sources {
		if err := s.Start(tm); err != nil {
			return fmt.Errorf("источник фронта %s: %w", s.Kind(), err)
		}
		logger.Info("источник фронта %s запущен", s.Kind())
	}
	if err := enableOutputs(cfg, tm); err != nil {
		return err
	}

	var reg *metrics.Registry
	if cfg.Metrics.Listen != "" {
		reg = metrics.New()
		stop := serveMetrics(cfg.Metrics.Listen, reg)
		defer stop()
	}

	logger.Info("daemon: источники %v, навигация %v, счётчик %d бит", kinds, navSrc != nil, ht.Width())

	ticker := time.NewTicker(UpdateInterval)
	defer ticker.Stop()
	lastReport := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		tm.Update()
		if time.Since(lastReport) < time.Second {
			continue
		}
		lastReport = time.Now()
		st := tm.Stats()
		if reg != nil {
			reg.Observe(st.Sample())
		}
		if now, ok := tm.Now(); ok {
			logger.Debug("%s %s, %d тиков/с, дрейф %.3f ppm", now.Format(time.RFC3339Nano), st.State, st.TicksPerSecond, st.Drift.OffsetPPM)
		}
	}
}

// openEdgeSources открывает программные источники фронта, разрешённые конфигом.
// Аппаратного захвата на хосте нет; навигационный тик подаёт сам Update.
func openEdgeSources(cfg *config.Config) ([]edge.Source, error) {
	var out []edge.Source
	closeAll := func() {
		for _, s := range out {
			_ = s.Close()
		}
	}
	if cfg.Discipline.Uses(edge.KindCapture) {
		logger.Info("захват PPS таймером на хосте недоступен, источник capture пропущен")
	}
	if cfg.Discipline.Uses(edge.KindPPSDevice) && cfg.Reference.PPSIndex >= 0 {
		s, err := pps.Open(cfg.Reference.PPSIndex)
		switch {
		case errors.Is(err, pps.ErrUnsupported):
			logger.Info("/dev/pps%d: %v", cfg.Reference.PPSIndex, err)
		case err != nil:
			closeAll()
			return nil, err
		default:
			out = append(out, s)
		}
	}
	if cfg.Discipline.Uses(edge.KindPin) && cfg.Reference.EdgePin != "" {
		if err := pins.Init(); err != nil {
			closeAll()
			return nil, err
		}
		s, err := pins.OpenEdgeSource(cfg.Reference.EdgePin, cfg.Reference.Debounce)
		if err != nil {
			closeAll()
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// enableOutputs включает меандр и кадр на выводах GPIO.
func enableOutputs(cfg *config.Config, tm *gpstimer.Timer) error {
	if !cfg.Wave.Enable {
		return nil
	}
	if err := pins.Init(); err != nil {
		return err
	}
	out, err := pins.Output(cfg.Wave.Pin)
	if err != nil {
		return err
	}
	if err := tm.EnableWave(out, cfg.Wave.Frequency); err != nil {
		return err
	}
	if !cfg.Data.Enable {
		return nil
	}
	data, err := pins.Output(cfg.Data.Pin)
	if err != nil {
		return err
	}
	return tm.EnableDataOutput(data, cfg.Data.Interval)
}

// serveMetrics поднимает /metrics; возвращает функцию остановки.
func serveMetrics(addr string, reg *metrics.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics %s: %v", addr, err)
		}
	}()
	logger.Info("метрики на http://%s/metrics", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
