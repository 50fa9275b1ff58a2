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

package replay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"iqreplay/pkg/fifo"
	"iqreplay/pkg/integrity"
	"iqreplay/pkg/log"
	"iqreplay/pkg/sample"
	"iqreplay/pkg/sigmf"
	"iqreplay/pkg/timeline"

	"github.com/google/uuid"
)

// Errors.
var (
	ErrInvalidCommand      = errors.New("invalid command")
	ErrNotOpen             = fmt.Errorf("%w: no recording open", ErrInvalidCommand)
	ErrInvalidAcceleration = fmt.Errorf(
		"%w: acceleration factor must be positive and finite", ErrInvalidCommand)
	ErrStopped = errors.New("controller stopped")
)

// Config controller config.
type Config struct {
	Quirk sigmf.QuirkPolicy

	// Interval of timing messages while running.
	TimingInterval time.Duration

	// Defaults to NewFileWorker.
	NewWorker NewWorkerFunc

	// Caps the fifo size, optional.
	AvailableMemory func() (uint64, error)

	// Defaults to time.Now.
	Now func() time.Time
}

const defaultTimingInterval = time.Second

type commandKind int

const (
	cmdOpen commandKind = iota
	cmdClose
	cmdStart
	cmdStop
	cmdSeekFileMillis
	cmdSeekTrackMillis
	cmdSelectTrack
	cmdSetTrackMode
	cmdSetAcceleration
	cmdApplySettings
	cmdPlayTrack
	cmdPlayRecord
	cmdReport
	cmdSettings
)

type command struct {
	kind     commandKind
	path     string
	millis   uint32
	index    int
	enabled  bool
	factor   float64
	settings Settings
	force    bool

	reply chan reply
}

type reply struct {
	err      error
	report   Report
	settings Settings
}

// session state of an open recording.
type session struct {
	id        uuid.UUID
	rec       *sigmf.Recording
	tl        *timeline.Timeline
	integrity integrity.Result
	file      *os.File
	worker    Worker

	trackIndex    int
	trackMode     bool
	rewindOnStart bool

	announcedRate int
	announcedFreq uint64
}

// Controller owns the playback state of one recording at a time.
// All commands and worker events are handled in order by a single goroutine.
type Controller struct {
	cfg  Config
	log  *log.Logger
	feed *Feed
	fifo *fifo.SampleFifo

	commands chan command
	events   chan Event

	// Owned by the run goroutine.
	settings Settings
	s        *session

	ctx context.Context
	wg  *sync.WaitGroup
}

// NewController returns a closed controller, StartLoop must be called.
func NewController(
	ctx context.Context,
	wg *sync.WaitGroup,
	logger *log.Logger,
	cfg Config,
) *Controller {
	if cfg.TimingInterval == 0 {
		cfg.TimingInterval = defaultTimingInterval
	}
	if cfg.NewWorker == nil {
		cfg.NewWorker = NewFileWorker
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Controller{
		cfg:  cfg,
		log:  logger,
		feed: NewFeed(ctx, wg),
		fifo: fifo.New(1),

		commands: make(chan command),
		events:   make(chan Event),

		settings: DefaultSettings(),

		ctx: ctx,
		wg:  wg,
	}
}

// StartLoop starts the controller and feed goroutines.
func (c *Controller) StartLoop() {
	c.feed.Start()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run()
	}()
}

// Feed outbound messages.
func (c *Controller) Feed() *Feed {
	return c.feed
}

// Fifo samples produced by the worker.
func (c *Controller) Fifo() *fifo.SampleFifo {
	return c.fifo
}

func (c *Controller) run() {
	ticker := time.NewTicker(c.cfg.TimingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.close()
			c.fifo.Close()
			return

		case cmd := <-c.commands:
			cmd.reply <- c.handle(cmd)

		case e := <-c.events:
			c.handleEvent(e)

		case <-ticker.C:
			if c.s != nil && c.s.worker.IsRunning() {
				c.sendTiming()
			}
		}
	}
}

func (c *Controller) send(cmd command) reply {
	cmd.reply = make(chan reply, 1)
	select {
	case c.commands <- cmd:
	case <-c.ctx.Done():
		return reply{err: ErrStopped}
	}
	return <-cmd.reply
}

// Open opens the recording at path, the current one is closed first.
// A failed open leaves the controller closed.
func (c *Controller) Open(path string) error {
	return c.send(command{kind: cmdOpen, path: path}).err
}

// Close closes the current recording.
func (c *Controller) Close() error {
	return c.send(command{kind: cmdClose}).err
}

// Start starts streaming. The first start after
// open rewinds to the beginning, later starts resume.
func (c *Controller) Start() error {
	return c.send(command{kind: cmdStart}).err
}

// Stop stops streaming.
func (c *Controller) Stop() error {
	return c.send(command{kind: cmdStop}).err
}

// SeekFileMillis seeks to millis thousandths of the recording.
func (c *Controller) SeekFileMillis(millis uint32) error {
	return c.send(command{kind: cmdSeekFileMillis, millis: millis}).err
}

// SeekTrackMillis seeks to millis thousandths of the current track.
func (c *Controller) SeekTrackMillis(millis uint32) error {
	return c.send(command{kind: cmdSeekTrackMillis, millis: millis}).err
}

// SelectTrack moves to the start of track i.
func (c *Controller) SelectTrack(i int) error {
	return c.send(command{kind: cmdSelectTrack, index: i}).err
}

// SetTrackMode confines playback to the current track.
func (c *Controller) SetTrackMode(enabled bool) error {
	return c.send(command{kind: cmdSetTrackMode, enabled: enabled}).err
}

// SetFileMode plays the whole recording.
func (c *Controller) SetFileMode(enabled bool) error {
	return c.SetTrackMode(!enabled)
}

// SetAccelerationFactor sets the playback speed multiplier.
func (c *Controller) SetAccelerationFactor(f float64) error {
	return c.send(command{kind: cmdSetAcceleration, factor: f}).err
}

// ApplySettings applies the fields of s that differ from
// the current settings, or every field if force is true.
func (c *Controller) ApplySettings(s Settings, force bool) error {
	return c.send(command{kind: cmdApplySettings, settings: s, force: force}).err
}

// PlayTrack switches to track mode and starts or stops streaming.
func (c *Controller) PlayTrack(play bool) error {
	return c.send(command{kind: cmdPlayTrack, enabled: play}).err
}

// PlayRecord switches to file mode and starts or stops streaming.
func (c *Controller) PlayRecord(play bool) error {
	return c.send(command{kind: cmdPlayRecord, enabled: play}).err
}

// Report returns a snapshot of the controller.
func (c *Controller) Report() (Report, error) {
	r := c.send(command{kind: cmdReport})
	return r.report, r.err
}

// Settings returns the current settings.
func (c *Controller) Settings() (Settings, error) {
	r := c.send(command{kind: cmdSettings})
	return r.settings, r.err
}

func (c *Controller) handle(cmd command) reply {
	switch cmd.kind {
	case cmdOpen:
		return reply{err: c.open(cmd.path)}
	case cmdClose:
		c.close()
		return reply{}
	case cmdApplySettings:
		return reply{err: c.applySettings(cmd.settings, cmd.force)}
	case cmdSetAcceleration:
		return reply{err: c.setAcceleration(cmd.factor)}
	case cmdReport:
		return reply{report: c.report()}
	case cmdSettings:
		return reply{settings: c.settings}
	}

	if c.s == nil {
		return reply{err: ErrNotOpen}
	}

	switch cmd.kind {
	case cmdStart:
		c.start()
	case cmdStop:
		c.stop()
	case cmdSeekFileMillis:
		c.seekFileMillis(cmd.millis)
	case cmdSeekTrackMillis:
		c.seekTrackMillis(cmd.millis)
	case cmdSelectTrack:
		c.selectTrack(cmd.index)
	case cmdSetTrackMode:
		c.setTrackMode(cmd.enabled)
	case cmdPlayTrack:
		c.setTrackMode(true)
		c.play(cmd.enabled)
	case cmdPlayRecord:
		c.setTrackMode(false)
		c.play(cmd.enabled)
	}
	return reply{}
}

func (c *Controller) logf(level func() *log.Event, format string, a ...interface{}) {
	e := level().Src("replay")
	if c.s != nil {
		e = e.Recording(c.s.rec.Name)
	}
	e.Msgf(format, a...)
}

func (c *Controller) message(t MessageType, payload interface{}) {
	var id string
	if c.s != nil {
		id = c.s.id.String()
	}
	c.feed.Send(Message{Type: t, SessionID: id, Payload: payload})
}

func (c *Controller) open(path string) error {
	c.close()

	rec, err := sigmf.Open(path, sigmf.Options{Quirk: c.cfg.Quirk, Now: c.cfg.Now})
	if err != nil {
		c.logf(c.log.Error, "could not open %v: %v", path, err)
		return err
	}
	for _, warning := range rec.Meta.Warnings {
		c.log.Warn().Src("sigmf").Recording(rec.Name).Msg(warning)
	}

	tl := timeline.Build(
		rec.Captures, rec.Meta.TotalSamples, int(rec.Meta.CoreSampleRate), c.cfg.Now())

	result, err := integrity.Verify(rec, tl)
	if errors.Is(err, integrity.ErrDigestMismatch) {
		c.message(MsgCRC, CRC{
			Status:   result.Digest,
			Declared: rec.Meta.SHA512,
			Computed: result.ComputedSHA512,
		})
		c.log.Error().Src("integrity").Recording(rec.Name).Msgf("%v", err)
		return err
	}
	if err != nil {
		c.logf(c.log.Error, "could not verify %v: %v", path, err)
		return err
	}

	decoder, err := sample.NewDecoder(rec.Meta.DataType)
	if err != nil {
		c.logf(c.log.Error, "%v: %v", path, err)
		return err
	}

	file, err := os.Open(rec.DataPath)
	if err != nil {
		c.logf(c.log.Error, "could not open %v: %v", rec.DataPath, err)
		return fmt.Errorf("%w: %v", sigmf.ErrOpen, err)
	}

	worker := c.cfg.NewWorker(WorkerConfig{
		Cursor:   NewCursor(file, decoder.FrameBytes()),
		Decoder:  decoder,
		Fifo:     c.fifo,
		Timeline: tl,
		Events:   c.events,
	})

	first := tl.Capture(0)
	c.s = &session{
		id:            uuid.New(),
		rec:           rec,
		tl:            tl,
		integrity:     result,
		file:          file,
		worker:        worker,
		rewindOnStart: true,
		announcedRate: first.SampleRate,
		announcedFreq: first.CenterFrequency,
	}
	c.settings.FileName = path
	c.fifo.Reset()
	c.resizeFifo()
	c.pushBounds()

	c.logf(c.log.Info, "opened %v: %v samples, %v tracks, %v",
		rec.Name, tl.TotalSamples(), tl.Len(), rec.Meta.DataType)

	c.message(MsgMetaData, MetaData{Meta: rec.Meta, Captures: tl.Captures()})
	c.message(MsgCRC, CRC{
		Status:   result.Digest,
		Declared: rec.Meta.SHA512,
		Computed: result.ComputedSHA512,
	})
	if !result.SampleCountOK {
		c.log.Warn().Src("integrity").Recording(rec.Name).
			Msg("total samples do not match the end of the last capture")
	}
	c.message(MsgTotalSamplesCheck, TotalSamplesCheck{OK: result.SampleCountOK})
	c.message(MsgSignalChange, SignalChange{
		SampleRate:      first.SampleRate,
		CenterFrequency: first.CenterFrequency,
	})
	return nil
}

func (c *Controller) close() {
	if c.s == nil {
		return
	}
	running := c.s.worker.IsRunning()
	c.s.worker.StopWork()
	if err := c.s.file.Close(); err != nil {
		c.logf(c.log.Error, "could not close data file: %v", err)
	}
	if running {
		c.message(MsgStartStop, StartStop{Running: false})
	}
	c.logf(c.log.Info, "closed")
	c.s = nil
}

func (c *Controller) bound() uint64 {
	if c.s.trackMode {
		return c.s.tl.TrackEnd(c.s.trackIndex)
	}
	return c.s.tl.TotalSamples()
}

// pushBounds pushes the worker configuration, the worker must be stopped.
func (c *Controller) pushBounds() {
	c.s.worker.SetTrackIndex(c.s.trackIndex)
	c.s.worker.SetTotalSamples(c.bound())
	c.s.worker.SetAccelerationFactor(c.settings.AccelerationFactor)
}

func (c *Controller) resizeFifo() {
	if c.cfg.AvailableMemory != nil {
		available, err := c.cfg.AvailableMemory()
		if err != nil {
			c.logf(c.log.Warn, "could not get available memory: %v", err)
		} else {
			c.fifo.SetMemoryLimit(available / 2)
		}
	}

	rate := c.s.tl.Capture(c.s.trackIndex).SampleRate
	want := int(c.settings.AccelerationFactor * float64(rate))
	if size := c.fifo.SetSize(want); size < want {
		c.logf(c.log.Warn, "fifo limited to %v samples by available memory", size)
	}
}

// setTrackIndex updates the current track and announces signal changes.
func (c *Controller) setTrackIndex(i int) {
	if i != c.s.trackIndex {
		c.s.trackIndex = i
		c.message(MsgTrackChange, TrackChange{TrackIndex: i})
	}

	capture := c.s.tl.Capture(i)
	if capture.SampleRate == c.s.announcedRate &&
		capture.CenterFrequency == c.s.announcedFreq {
		return
	}
	rateChanged := capture.SampleRate != c.s.announcedRate
	c.s.announcedRate = capture.SampleRate
	c.s.announcedFreq = capture.CenterFrequency

	if rateChanged {
		c.resizeFifo()
	}
	c.logf(c.log.Debug, "signal change: %v Hz at %v Hz",
		capture.SampleRate, capture.CenterFrequency)
	c.message(MsgSignalChange, SignalChange{
		SampleRate:      capture.SampleRate,
		CenterFrequency: capture.CenterFrequency,
	})
}

// reposition applies mutate with the worker stopped and
// restarts it afterwards if it was running.
func (c *Controller) reposition(mutate func()) {
	running := c.s.worker.IsRunning()
	if running {
		c.s.worker.StopWork()
	}
	c.s.rewindOnStart = false
	mutate()
	c.pushBounds()
	if running {
		c.s.worker.StartWork()
	}
}

func (c *Controller) start() {
	if c.s.worker.IsRunning() {
		return
	}
	// Collects a worker that ended on its own.
	c.s.worker.StopWork()

	if c.s.rewindOnStart {
		c.s.rewindOnStart = false
		c.s.worker.SetSamplesCount(0)
		c.setTrackIndex(0)
	}
	c.pushBounds()
	c.s.worker.StartWork()

	c.logf(c.log.Info, "started at sample %v", c.s.worker.SamplesCount())
	c.message(MsgStartStop, StartStop{Running: true})
}

func (c *Controller) stop() {
	if !c.s.worker.IsRunning() {
		c.s.worker.StopWork()
		return
	}
	c.s.worker.StopWork()

	c.logf(c.log.Info, "stopped at sample %v", c.s.worker.SamplesCount())
	c.message(MsgStartStop, StartStop{Running: false})
}

func (c *Controller) play(play bool) {
	if play {
		c.start()
	} else {
		c.stop()
	}
}

func (c *Controller) seekFileMillis(millis uint32) {
	offset := c.s.tl.SeekOffsetForFileMillis(millis)
	c.reposition(func() {
		c.s.worker.SetSamplesCount(offset)
		c.setTrackIndex(c.s.tl.TrackIndexForSample(offset))
	})
}

func (c *Controller) seekTrackMillis(millis uint32) {
	offset := c.s.tl.SeekOffsetForTrackMillis(c.s.trackIndex, millis)
	c.reposition(func() {
		c.s.worker.SetSamplesCount(offset)
	})
}

func (c *Controller) selectTrack(i int) {
	i = c.s.tl.ClampIndex(i)
	c.reposition(func() {
		c.s.worker.SetSamplesCount(c.s.tl.SampleStartForTrack(i))
		c.setTrackIndex(i)
	})
}

func (c *Controller) setTrackMode(enabled bool) {
	if c.s.trackMode == enabled {
		return
	}
	running := c.s.worker.IsRunning()
	if running {
		c.s.worker.StopWork()
	}
	c.s.trackMode = enabled
	c.pushBounds()
	if running {
		c.s.worker.StartWork()
	}
}

func (c *Controller) setAcceleration(f float64) error {
	if !validAcceleration(f) {
		return fmt.Errorf("%w: %v", ErrInvalidAcceleration, f)
	}
	c.settings.AccelerationFactor = f
	if c.s == nil {
		return nil
	}
	c.resizeFifo()
	if c.s.worker.IsRunning() {
		c.s.worker.SetAccelerationFactor(f)
	}
	return nil
}

func (c *Controller) applySettings(s Settings, force bool) error {
	changed := DiffSettings(c.settings, s)
	if force {
		changed = allKeys()
	}

	if changed.Has(KeyAccelerationFactor) {
		if err := c.setAcceleration(s.AccelerationFactor); err != nil {
			return err
		}
	}
	if changed.Has(KeyTrackLoop) {
		c.settings.TrackLoop = s.TrackLoop
	}
	if changed.Has(KeyFullLoop) {
		c.settings.FullLoop = s.FullLoop
	}
	if changed.Has(KeyFileName) && s.FileName != "" {
		if err := c.open(s.FileName); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) handleEvent(e Event) {
	if c.s == nil {
		return
	}
	switch e.Kind {
	case EventTrackBoundaryCrossed:
		c.setTrackIndex(c.s.tl.ClampIndex(e.TrackIndex))

	case EventEndOfStream:
		c.endOfStream(e.Err)
	}
}

func (c *Controller) endOfStream(readErr error) {
	c.s.worker.StopWork()
	if readErr != nil {
		c.logf(c.log.Error, "read error: %v", readErr)
		c.message(MsgStartStop, StartStop{Running: false})
		return
	}

	switch {
	case c.s.trackMode && c.settings.TrackLoop:
		c.s.worker.SetSamplesCount(c.s.tl.SampleStartForTrack(c.s.trackIndex))
	case !c.s.trackMode && c.settings.FullLoop:
		c.s.worker.SetSamplesCount(0)
		c.setTrackIndex(0)
	default:
		c.logf(c.log.Info, "end of stream")
		c.message(MsgStartStop, StartStop{Running: false})
		return
	}

	c.pushBounds()
	c.s.worker.StartWork()
}

func (c *Controller) sendTiming() {
	capture := c.s.tl.Capture(c.s.trackIndex)
	count := c.s.worker.SamplesCount()
	var trackCount uint64
	if count > capture.SampleStart {
		trackCount = count - capture.SampleStart
	}
	c.message(MsgTiming, Timing{
		SamplesCount:          count,
		TrackSamplesCount:     trackCount,
		TrackCumulativeTimeMs: capture.CumulativeTimeMs,
		TrackIndex:            c.s.trackIndex,
	})
}

func (c *Controller) report() Report {
	r := Report{
		FileName:           c.settings.FileName,
		AccelerationFactor: c.settings.AccelerationFactor,
		TrackLoop:          c.settings.TrackLoop,
		FullLoop:           c.settings.FullLoop,
	}
	if c.s == nil {
		return r
	}

	meta := c.s.rec.Meta
	r.Open = true
	r.SessionID = c.s.id.String()
	r.Running = c.s.worker.IsRunning()
	r.TrackMode = c.s.trackMode
	r.CRCStatus = c.s.integrity.Digest
	r.TotalBytesStatus = c.s.integrity.SampleCountOK
	r.FifoOverflow = c.fifo.Overflow()
	r.Meta = &meta
	r.Captures = c.s.tl.Captures()
	r.format(meta.DataType)
	r.timing(position{
		tl:           c.s.tl,
		trackIndex:   c.s.trackIndex,
		samplesCount: c.s.worker.SamplesCount(),
	})
	return r
}
