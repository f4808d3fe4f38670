package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"fruitmart/config"
	"fruitmart/engine"
	"fruitmart/game"
	"fruitmart/logging"
	"fruitmart/record"
	"fruitmart/session"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// 无界面参与者：创建或加入房间，运行帧循环，由 autopilot 代替键盘
func main() {
	var (
		cfgDir   = flag.String("config", "config", "directory containing config.yaml")
		relay    = flag.String("relay", "", "relay websocket url (overrides config)")
		name     = flag.String("name", "bot", "display name")
		join     = flag.String("join", "", "room code to join; empty creates a new room")
		players  = flag.Int("players", 1, "host starts once this many players (including itself) are present")
		wait     = flag.Duration("start-after", 30*time.Second, "host starts anyway after this long")
		duration = flag.Duration("duration", 0, "stop after this long (0 = until interrupted)")
		demo     = flag.Bool("demo", false, "run host and bots in one process over the in-memory transport")
	)
	flag.Parse()

	cfg, err := config.Load("config", *cfgDir)
	if err != nil {
		panic(err)
	}
	if err := logging.Init(logging.Options{Level: cfg.Env.Log.Level, File: cfg.Env.Log.File, JSON: cfg.Env.Log.JSON}); err != nil {
		panic(err)
	}
	defer logging.Sync()
	log := logging.Log

	tuning := game.DefaultTuning()
	if cfg.Player.TuningPath != "" {
		if tuning, err = game.LoadTuning(cfg.Player.TuningPath); err != nil {
			log.Fatalw("load tuning", "err", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	base := participant{
		cfg:        cfg.Player,
		tuning:     tuning,
		name:       *name,
		code:       *join,
		players:    *players,
		startAfter: *wait,
		log:        log,
	}

	if *demo {
		err = runDemo(ctx, base)
	} else {
		url := cfg.Player.RelayURL
		if *relay != "" {
			url = *relay
		}
		base.transport = &session.WSTransport{URL: url, SendQueue: cfg.Relay.SendQueue}
		err = base.run(ctx, nil)
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		log.Errorw("player stopped", "err", err)
		os.Exit(1)
	}
}

// runDemo 单进程演示：房主加 players-1 个机器人共用进程内传输
func runDemo(ctx context.Context, base participant) error {
	base.transport = session.NewMemTransport()
	base.code = ""
	if base.players < 1 {
		base.players = 1
	}

	codeCh := make(chan string, 1)
	hostErr := make(chan error, 1)
	go func() {
		hostErr <- base.run(ctx, func(code string) { codeCh <- code })
	}()

	var code string
	select {
	case code = <-codeCh:
	case err := <-hostErr:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}

	var wg sync.WaitGroup
	errs := make(chan error, base.players)
	for i := 1; i < base.players; i++ {
		bot := base
		bot.code = code
		bot.name = base.name + "-" + string(rune('a'+i))
		bot.cfg.Seed = base.cfg.Seed + uint64(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- bot.run(ctx, nil)
		}()
	}
	wg.Wait()
	errs <- <-hostErr
	close(errs)
	for err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}
	return ctx.Err()
}

type participant struct {
	transport  session.Transport
	cfg        config.PlayerConfig
	tuning     game.Tuning
	name       string
	code       string
	players    int
	startAfter time.Duration
	log        *zap.SugaredLogger
}

func (p participant) run(ctx context.Context, onReady func(code string)) error {
	var sess *session.Session
	if p.code == "" {
		sess = session.CreateRoom(p.transport, p.name, session.WithLogger(p.log))
	} else {
		sess = session.JoinRoom(p.transport, p.code, p.name, session.WithLogger(p.log))
	}
	log := p.log.With("room", sess.Code(), "name", p.name)

	opts := []engine.Option{
		engine.WithBroadcastEvery(p.cfg.BroadcastEvery),
		engine.WithRand(game.NewRand(p.cfg.Seed)),
		engine.WithLogger(log),
	}
	if p.cfg.RecordDir != "" {
		path := filepath.Join(p.cfg.RecordDir, record.FileName(sess.Code(), sess.Role().String()+"-"+p.name, time.Now()))
		rec, err := record.Create(path)
		if err != nil {
			return err
		}
		defer rec.Close()
		opts = append(opts, engine.WithRecorder(rec))
		log.Infow("recording", "path", rec.Path())
	}
	loop := engine.New(sess, p.tuning, opts...)

	if err := sess.Connect(ctx); err != nil {
		return err
	}
	defer sess.Close()
	log.Infow("room ready", "code", sess.Code(), "role", sess.Role())
	if onReady != nil {
		onReady(sess.Code())
	}

	if sess.IsHost() {
		if err := p.waitForPlayers(ctx, sess); err != nil {
			return err
		}
		if err := loop.Start(ctx); err != nil {
			return err
		}
	} else {
		id, err := sess.AwaitIdentity(ctx, p.cfg.IdentityRetry)
		if err != nil {
			return errors.Wrap(err, "await identity")
		}
		log = log.With("playerId", id)
	}

	go p.drive(ctx, loop, sess.PlayerID())

	err := loop.Run(ctx, p.cfg.TickHz)
	if s := loop.Snapshot(); s != nil {
		log.Infow("final state", "gameTime", s.GameTime, "money", s.Money, "customers", len(s.Customers))
	}
	return err
}

// waitForPlayers 等待身份分配达到人数或超时后开局
func (p participant) waitForPlayers(ctx context.Context, sess *session.Session) error {
	deadline := time.NewTimer(p.startAfter)
	defer deadline.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for len(sess.Assignments())+1 < p.players {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			p.log.Warnw("starting without everyone", "joined", len(sess.Assignments())+1, "want", p.players)
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

// drive 以帧率读取快照并更新按键
func (p participant) drive(ctx context.Context, loop *engine.Loop, id int) {
	ap := autopilot{id: id, tuning: p.tuning}
	ticker := time.NewTicker(time.Second / time.Duration(p.cfg.TickHz))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := loop.SetLocalKeys(ctx, ap.keys(loop.Snapshot())); err != nil {
				p.log.Debugw("send keys failed", "err", err)
			}
		}
	}
}
