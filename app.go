// Copyright 2022 The iqreplay Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package iqreplay

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"iqreplay/pkg/log"
	"iqreplay/pkg/replay"
	"iqreplay/pkg/sigmf"
	"iqreplay/pkg/sink"
	"iqreplay/pkg/storage"
	"iqreplay/pkg/system"
	"iqreplay/pkg/web"
	"iqreplay/pkg/web/auth"

	"github.com/fsnotify/fsnotify"
)

// Run starts the replay server and blocks until
// it receives SIGINT or SIGTERM or fails.
func Run(envPath string) error {
	wg := &sync.WaitGroup{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApp(ctx, envPath, wg)
	if err != nil {
		return err
	}

	fatal := make(chan error, 1)
	go func() { fatal <- app.run(ctx) }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err = <-fatal:
		app.Logger.Info().Src("app").Msgf("fatal error: %v", err)
	case signal := <-stop:
		app.Logger.Info().Msg("") // New line.
		app.Logger.Info().Src("app").Msgf("received %v, stopping", signal)
	}

	cancel()
	wg.Wait()

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()

	if err != nil {
		return err
	}
	return app.server.Shutdown(ctx2)
}

func newApp(ctx context.Context, envPath string, wg *sync.WaitGroup) (*App, error) {
	// Environment config.
	envYAML, err := os.ReadFile(envPath)
	if err != nil {
		return nil, fmt.Errorf("could not read env.yaml: %w", err)
	}

	env, err := storage.NewConfigEnv(envPath, envYAML)
	if err != nil {
		return nil, fmt.Errorf("could not get environment config: %w", err)
	}

	// Logs.
	logger := log.NewLogger(ctx, wg)
	logDB := log.NewDB(env.LogDBPath(), wg)

	// System.
	sys := system.New(env.RecordingsDir, logger)

	// Playback.
	controller := replay.NewController(ctx, wg, logger, replay.Config{
		Quirk:           env.Quirk(),
		TimingInterval:  env.Interval(),
		AvailableMemory: sys.AvailableMemory,
	})

	// RTP sink.
	sinkAddr, err := net.ResolveUDPAddr("udp", env.SinkAddress)
	if err != nil {
		return nil, fmt.Errorf("could not resolve sink address: %w", err)
	}

	conn, err := net.DialUDP("udp", nil, sinkAddr)
	if err != nil {
		return nil, fmt.Errorf("could not dial sink: %w", err)
	}
	rtpSink := sink.New(conn, sinkAddr.IP.String(), sinkAddr.Port, logger)

	app := &App{
		WG:         wg,
		Logger:     logger,
		logDB:      logDB,
		Env:        *env,
		System:     sys,
		Controller: controller,
		Crawler:    storage.NewCrawler(env.RecordingsDir, env.Quirk()),
		Auth:       auth.NewAuthenticator(env.Users, logger),
		Sink:       rtpSink,
		sinkConn:   conn,
	}
	app.Mux = app.routes()
	app.server = &http.Server{
		Addr:    ":" + strconv.Itoa(env.Port),
		Handler: app.Mux,
	}
	return app, nil
}

// App is the replay server.
type App struct {
	WG         *sync.WaitGroup
	Logger     *log.Logger
	logDB      *log.DB
	Env        storage.ConfigEnv
	System     *system.System
	Controller *replay.Controller
	Crawler    *storage.Crawler
	Auth       *auth.Authenticator
	Sink       *sink.Sink
	Mux        *http.ServeMux

	sinkConn *net.UDPConn
	server   *http.Server
}

func (app *App) routes() *http.ServeMux {
	a := app.Auth
	mux := http.NewServeMux()

	mux.Handle("/api/report", a.User(web.Report(app.Controller)))
	mux.Handle("/api/actions", a.User(web.ActionsPost(app.Controller)))
	mux.Handle("/api/run", a.User(web.Run(app.Controller)))
	mux.Handle("/api/feed", a.User(web.Feed(app.Controller, a)))
	mux.Handle("/api/sink.sdp", a.User(web.SDP(app.Sink.SDP)))

	mux.Handle("/api/recordings", a.User(web.RecordingQuery(app.Crawler, app.Logger)))
	mux.Handle("/api/system/status", a.User(web.Status(app.System)))

	mux.Handle("/api/log/feed", a.User(web.LogFeed(app.Logger, a)))
	mux.Handle("/api/log/query", a.User(web.LogQuery(app.logDB)))

	return mux
}

func (app *App) run(ctx context.Context) error {
	app.Logger.Start()
	go app.Logger.LogToStdout(ctx)

	if err := app.Env.PrepareEnvironment(); err != nil {
		return fmt.Errorf("could not prepare environment: %w", err)
	}

	if err := app.logDB.Init(ctx); err != nil {
		// Continue even if log database is corrupt.
		app.Logger.Error().Src("app").Msgf("could not initialize log database: %v", err)
	} else {
		go app.logDB.SaveLogs(ctx, app.Logger)
		time.Sleep(10 * time.Millisecond)
	}

	app.Logger.Info().Src("app").Msg("Starting..")

	go app.System.StatusLoop(ctx)

	app.WG.Add(1)
	go func() {
		<-ctx.Done()
		app.sinkConn.Close()
		app.WG.Done()
	}()

	app.Controller.StartLoop()
	msgs, cancelMsgs := app.Controller.Feed().Subscribe()
	go func() {
		defer cancelMsgs()
		app.Sink.FollowSignal(ctx, msgs)
	}()
	go app.Sink.Run(app.Controller.Fifo())

	watcher := storage.NewWatcher(app.Env.RecordingsDir, app.Logger, app.onRecordingChange)
	if err := watcher.Start(ctx); err != nil {
		app.Logger.Error().Src("storage").Msgf("could not watch recordings: %v", err)
	}

	if err := app.applyInitialSettings(); err != nil {
		app.Logger.Error().Src("app").Msgf("could not apply settings: %v", err)
	}

	app.Logger.Info().Src("app").Msgf("Serving app on port %v", app.Env.Port)
	return app.server.ListenAndServe()
}

func (app *App) applyInitialSettings() error {
	settings := app.Env.Settings
	if settings.FileName != "" {
		path, err := app.Crawler.Resolve(settings.FileName)
		if err != nil {
			return err
		}
		settings.FileName = path
	}
	return app.Controller.ApplySettings(settings, true)
}

// onRecordingChange warns when the open recording is modified on disk.
func (app *App) onRecordingChange(name string, op fsnotify.Op) {
	report, err := app.Controller.Report()
	if err != nil || !report.Open {
		return
	}
	path, err := app.Crawler.Resolve(name)
	if err != nil || path != sigmf.BasePath(report.FileName) {
		return
	}
	app.Logger.Warn().Src("storage").Recording(name).
		Msgf("open recording changed on disk: %v", op)
}
