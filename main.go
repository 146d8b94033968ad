package main

import (
	"context"
	"flag"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/automoto/doomerang-sync/config"
	"github.com/automoto/doomerang-sync/network"
	"github.com/automoto/doomerang-sync/shared/leveldata"
	"github.com/automoto/doomerang-sync/systems"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	dmath "github.com/yohamta/donburi/features/math"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	wander := flag.Bool("wander", false, "walk the local player in a square instead of standing still")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *wander); err != nil {
		log.Error().Err(err).Msg("session ended")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, wander bool) error {
	var opts []systems.SessionOption
	if cfg.LevelPath != "" {
		level, err := leveldata.LoadCollisionData(os.DirFS(filepath.Dir(cfg.LevelPath)), filepath.Base(cfg.LevelPath))
		if err != nil {
			return err
		}
		log.Info().Str("level", cfg.LevelPath).Int("solids", len(level.SolidRects)).Msg("level loaded")
		opts = append(opts, systems.WithLevel(level))
	}

	client := network.NewClient(cfg,
		network.WithLogger(log.Logger),
		network.WithErrorHandler(func(err error) {
			log.Debug().Err(err).Msg("unreliable channel degraded")
		}),
	)
	if err := client.Connect(ctx); err != nil {
		_ = client.Close()
		return err
	}

	session := systems.NewSession(cfg, client, opts...)
	defer session.Close()
	if err := session.Login(); err != nil {
		return err
	}

	step := time.Second / time.Duration(cfg.TickRate)
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		select {
		case <-ctx.Done():
			log.Info().Msg("interrupted, disconnecting")
			return nil
		case <-ticker.C:
		}

		session.Pump()
		for _, ev := range session.Lifecycle() {
			switch ev.Kind {
			case systems.LifecycleLoginFailed:
				return eris.Errorf("login rejected: %s", ev.Reason)
			case systems.LifecycleDisconnected:
				return eris.Wrap(ev.Err, "disconnected")
			case systems.LifecycleLoggedIn:
				log.Info().Uint32("player_id", session.PlayerID()).Msg("in game")
			}
		}

		var move dmath.Vec2
		if wander {
			move = wanderInput(frame, cfg.TickRate)
		}
		session.Update(move, false, step)

		for _, ev := range session.GameEvents() {
			log.Info().Stringer("kind", ev.Kind()).Interface("event", ev).Msg("game event")
		}
		if frame%cfg.TickRate == 0 {
			logPoses(session)
		}
	}
}

// wanderInput walks a square, one side per second.
func wanderInput(frame, tickRate int) dmath.Vec2 {
	side := (frame / tickRate) % 4
	angle := float64(side) * math.Pi / 2
	return dmath.Vec2{X: math.Round(math.Cos(angle)), Y: math.Round(math.Sin(angle))}
}

func logPoses(session *systems.Session) {
	ev := log.Debug()
	if pose, ok := session.LocalPose(); ok {
		ev = ev.Float64("x", pose.Position.X).Float64("y", pose.Position.Y)
	}
	stats := session.Stats()
	ev.Int("remote", len(session.RemoteEntities())).
		Dur("rtt", session.Clock().RTT()).
		Int("pending", session.PendingInputs()).
		Uint64("dropped", stats.Dropped).
		Msg("sync")
}
