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

package log

// API inspired by zerolog https://github.com/rs/zerolog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Level defines log level.
type Level uint8

// Logging constants, matching ffmpeg.
const (
	LevelError   Level = 16
	LevelWarning Level = 24
	LevelInfo    Level = 32
	LevelDebug   Level = 48
)

// UnixMicro microseconds since the Unix epoch.
type UnixMicro uint64

// Event defines log event.
type Event struct {
	level     Level
	time      UnixMicro
	src       string
	recording string

	logger *Logger
}

// Log defines log entry.
type Log struct {
	Level     Level     `json:"level"`
	Time      UnixMicro `json:"time"`
	Msg       string    `json:"msg"`
	Src       string    `json:"src"`
	Recording string    `json:"recording,omitempty"`
}

// Src sets event source.
func (e *Event) Src(source string) *Event {
	e.src = source
	return e
}

// Recording sets the recording the event belongs to.
func (e *Event) Recording(name string) *Event {
	e.recording = name
	return e
}

// Time sets event time.
func (e *Event) Time(t time.Time) *Event {
	e.time = UnixMicro(t.UnixNano() / 1000)
	return e
}

// Msg sends the *Event with msg added as the message field.
func (e *Event) Msg(msg string) {
	log := Log{
		Time:      e.time,
		Level:     e.level,
		Msg:       msg,
		Src:       e.src,
		Recording: e.recording,
	}

	select {
	case e.logger.feed <- log:
	case <-e.logger.ctx.Done():
	}
}

// Msgf sends the event with formatted msg added as the message field.
func (e *Event) Msgf(format string, v ...interface{}) {
	e.Msg(fmt.Sprintf(format, v...))
}

type logFeed chan Log

// Logger logs.
type Logger struct {
	feed  logFeed      // feed of logs.
	sub   chan logFeed // subscribe requests.
	unsub chan logFeed // unsubscribe requests.

	ctx context.Context
	wg  *sync.WaitGroup
}

// NewLogger returns a Logger that is bound to ctx.
// Start must be called before any message is sent.
func NewLogger(ctx context.Context, wg *sync.WaitGroup) *Logger {
	return &Logger{
		feed:  make(logFeed),
		sub:   make(chan logFeed),
		unsub: make(chan logFeed),

		ctx: ctx,
		wg:  wg,
	}
}

// NewMockLogger returns a started logger without subscribers, used for testing.
func NewMockLogger() *Logger {
	l := NewLogger(context.Background(), &sync.WaitGroup{})
	l.Start()
	return l
}

// Start logger.
func (l *Logger) Start() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		subs := map[logFeed]struct{}{}
		for {
			select {
			case <-l.ctx.Done():
				return

			case ch := <-l.sub:
				subs[ch] = struct{}{}

			case ch := <-l.unsub:
				close(ch)
				delete(subs, ch)

			case msg := <-l.feed:
				for ch := range subs {
					ch <- msg
				}
			}
		}
	}()
}

// CancelFunc cancels log feed subsciption.
type CancelFunc func()

// Subscribe returns a new chan with log feed and a CancelFunc.
func (l *Logger) Subscribe() (<-chan Log, CancelFunc) {
	feed := make(logFeed)
	select {
	case l.sub <- feed:
	case <-l.ctx.Done():
		close(feed)
		return feed, func() {}
	}

	cancel := func() {
		l.unSubscribe(feed)
	}
	return feed, cancel
}

func (l *Logger) unSubscribe(feed logFeed) {
	// Read feed until unsub request is accepted.
	for {
		select {
		case l.unsub <- feed:
			return
		case <-feed:
		case <-l.ctx.Done():
			return
		}
	}
}

// Done is closed when the logger context is canceled.
func (l *Logger) Done() <-chan struct{} {
	return l.ctx.Done()
}

// LogToStdout prints log feed to Stdout.
func (l *Logger) LogToStdout(ctx context.Context) {
	feed, cancel := l.Subscribe()
	defer cancel()
	for {
		select {
		case log, ok := <-feed:
			if !ok {
				return
			}
			fmt.Println(formatLog(log))
		case <-ctx.Done():
			return
		}
	}
}

func formatLog(log Log) string {
	var output string

	switch log.Level {
	case LevelError:
		output += "[ERROR] "
	case LevelWarning:
		output += "[WARNING] "
	case LevelInfo:
		output += "[INFO] "
	case LevelDebug:
		output += "[DEBUG] "
	}

	if log.Recording != "" {
		output += log.Recording + ": "
	}
	if log.Src != "" {
		output += strings.ToUpper(log.Src[:1]) + log.Src[1:] + ": "
	}

	output += log.Msg
	return output
}

func (l *Logger) newEvent(level Level) *Event {
	return &Event{
		level:  level,
		time:   UnixMicro(time.Now().UnixNano() / 1000),
		logger: l,
	}
}

// Error starts a new message with error level.
// You must call Msg on the returned event in order to send the event.
func (l *Logger) Error() *Event {
	return l.newEvent(LevelError)
}

// Warn starts a new message with warn level.
// You must call Msg on the returned event in order to send the event.
func (l *Logger) Warn() *Event {
	return l.newEvent(LevelWarning)
}

// Info starts a new message with info level.
// You must call Msg on the returned event in order to send the event.
func (l *Logger) Info() *Event {
	return l.newEvent(LevelInfo)
}

// Debug starts a new message with debug level.
// You must call Msg on the returned event in order to send the event.
func (l *Logger) Debug() *Event {
	return l.newEvent(LevelDebug)
}
