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

package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"iqreplay/pkg/log"
	"iqreplay/pkg/replay"
	"iqreplay/pkg/storage"
	"iqreplay/pkg/system"
	"iqreplay/pkg/web/auth"

	"github.com/gorilla/websocket"
)

const jsonContentType = "application/json"

// Controller playback commands exposed over http.
type Controller interface {
	Report() (replay.Report, error)
	Start() error
	Stop() error
	PlayTrack(bool) error
	PlayRecord(bool) error
	SelectTrack(int) error
	SeekTrackMillis(uint32) error
	SeekFileMillis(uint32) error
	Feed() *replay.Feed
}

// Report returns the controller report.
func Report(c Controller) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}

		report, err := c.Report()
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", jsonContentType)
		if err := json.NewEncoder(w).Encode(report); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// Actions request body, only the first present key is acted on.
type Actions struct {
	PlayTrack        *bool   `json:"playTrack,omitempty"`
	PlayRecord       *bool   `json:"playRecord,omitempty"`
	SeekTrack        *int    `json:"seekTrack,omitempty"`
	SeekTrackMillis  *uint32 `json:"seekTrackMillis,omitempty"`
	SeekRecordMillis *uint32 `json:"seekRecordMillis,omitempty"`
}

// ErrNoAction request did not contain an action.
var ErrNoAction = errors.New("no action")

// apply the first present action.
func (a Actions) apply(c Controller) error {
	switch {
	case a.PlayTrack != nil:
		return c.PlayTrack(*a.PlayTrack)
	case a.PlayRecord != nil:
		return c.PlayRecord(*a.PlayRecord)
	case a.SeekTrack != nil:
		return c.SelectTrack(*a.SeekTrack)
	case a.SeekTrackMillis != nil:
		return c.SeekTrackMillis(*a.SeekTrackMillis)
	case a.SeekRecordMillis != nil:
		return c.SeekFileMillis(*a.SeekRecordMillis)
	default:
		return ErrNoAction
	}
}

// ActionsPost handles playback actions.
func ActionsPost(c Controller) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}

		var actions Actions
		if err := json.NewDecoder(r.Body).Decode(&actions); err != nil {
			http.Error(w, fmt.Sprintf("decode actions: %v", err), http.StatusBadRequest)
			return
		}

		if err := actions.apply(c); err != nil {
			writeCommandError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
}

// Run starts playback on POST and stops it on DELETE.
func Run(c Controller) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		switch r.Method {
		case http.MethodPost:
			err = c.Start()
		case http.MethodDelete:
			err = c.Stop()
		default:
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		if err != nil {
			writeCommandError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoAction), errors.Is(err, replay.ErrInvalidCommand):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, replay.ErrStopped):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

const defaultRecordingsLimit = 100

// RecordingQuery lists recordings, newest name first.
func RecordingQuery(crawler *storage.Crawler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		query := r.URL.Query()

		limit := defaultRecordingsLimit
		if rawLimit := query.Get("limit"); rawLimit != "" {
			var err error
			limit, err = strconv.Atoi(rawLimit)
			if err != nil || limit < 0 {
				http.Error(w, fmt.Sprintf("invalid limit: %v", rawLimit), http.StatusBadRequest)
				return
			}
		}

		recordings, err := crawler.RecordingByQuery(limit, query.Get("query"))
		if err != nil {
			logger.Error().Src("app").Msgf("crawler: could not process recording query: %v", err)
			http.Error(w, "could not process recording query", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", jsonContentType)
		if err := json.NewEncoder(w).Encode(recordings); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// Status returns system status.
func Status(sys *system.System) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", jsonContentType)
		if err := json.NewEncoder(w).Encode(sys.Status()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// Feed opens a websocket with controller messages.
func Feed(c Controller, a *auth.Authenticator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}

		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		feed := c.Feed()
		msgs, cancel := feed.Subscribe()
		defer cancel()

		for {
			var msg replay.Message
			select {
			case m, ok := <-msgs:
				if !ok {
					return
				}
				msg = m
			case <-feed.Done():
				return
			case <-r.Context().Done():
				return
			}

			// Validate auth before each message.
			if !a.ValidateRequest(r).IsValid {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	})
}

// LogFeed opens a websocket with system logs.
func LogFeed(logger *log.Logger, a *auth.Authenticator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		query := r.URL.Query()

		levels, err := parseLevels(query)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		q := log.Query{
			Levels:     levels,
			Sources:    parseCSVParam(query, "sources"),
			Recordings: parseCSVParam(query, "recordings"),
		}

		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		feed, cancel := logger.Subscribe()
		defer cancel()

		for {
			var entry log.Log
			select {
			case e, ok := <-feed:
				if !ok {
					return
				}
				entry = e
			case <-logger.Done():
				return
			case <-r.Context().Done():
				return
			}

			if !log.LevelInLevels(entry.Level, q.Levels) ||
				!log.StringInStrings(entry.Src, q.Sources) ||
				!log.StringInStrings(entry.Recording, q.Recordings) {
				continue
			}

			// Validate auth before each message.
			if !a.ValidateRequest(r).IsValid {
				return
			}
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		}
	})
}

// LogQuery handles log queries.
func LogQuery(logDB *log.DB) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		query := r.URL.Query()

		limit := query.Get("limit")
		if limit == "" {
			http.Error(w, "limit missing", http.StatusBadRequest)
			return
		}
		limitInt, err := strconv.Atoi(limit)
		if err != nil {
			http.Error(w, fmt.Sprintf("could not convert limit to int: %v", err), http.StatusBadRequest)
			return
		}

		levels, err := parseLevels(query)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var timeInt uint64
		if time := query.Get("time"); time != "" {
			timeInt, err = strconv.ParseUint(time, 10, 64)
			if err != nil {
				http.Error(w, fmt.Sprintf("could not convert time to int: %v", err), http.StatusBadRequest)
				return
			}
		}

		q := log.Query{
			Levels:     levels,
			Sources:    parseCSVParam(query, "sources"),
			Recordings: parseCSVParam(query, "recordings"),
			Time:       log.UnixMicro(timeInt),
			Limit:      limitInt,
		}

		logs, err := logDB.Query(q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", jsonContentType)
		if err := json.NewEncoder(w).Encode(logs); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

func parseCSVParam(query url.Values, key string) []string {
	csv := query.Get(key)
	if csv == "" {
		return nil
	}
	return strings.Split(csv, ",")
}

func parseLevels(query url.Values) ([]log.Level, error) {
	var levels []log.Level
	for _, levelStr := range parseCSVParam(query, "levels") {
		levelInt, err := strconv.Atoi(levelStr)
		if err != nil {
			return nil, fmt.Errorf("invalid levels list: %v %w", query.Get("levels"), err)
		}
		levels = append(levels, log.Level(levelInt))
	}
	return levels, nil
}

// SDP returns the session description of the RTP sink.
func SDP(sdp func() []byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "invalid request method", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/sdp")
		if _, err := w.Write(sdp()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
