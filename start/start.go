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

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"
	"time"

	"iqreplay"
	"iqreplay/pkg/integrity"
	"iqreplay/pkg/replay"
	"iqreplay/pkg/sample"
	"iqreplay/pkg/sigmf"
	"iqreplay/pkg/storage"
	"iqreplay/pkg/timeline"
	"iqreplay/pkg/web/auth"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "iqreplay",
		Short: "Replay recorded SigMF I/Q captures",
		Long: `iqreplay plays back SigMF recordings in real time or accelerated,
following the capture segments of the recording as tracks.

Commands:
  serve    run the replay server
  info     show metadata and the capture timeline
  verify   check the data file against the declared digest
  samples  print decoded I/Q samples
  hash     generate a password hash for the users config`,
		SilenceUsage: true,
	}
	root.AddCommand(
		newServeCmd(),
		newInfoCmd(),
		newVerifyCmd(),
		newSamplesCmd(),
		newHashCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	var envFlag string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the replay server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			envPath, err := filepath.Abs(envFlag)
			if err != nil {
				return fmt.Errorf("could not get absolute path of env.yaml: %w", err)
			}
			return iqreplay.Run(envPath)
		},
	}
	cmd.Flags().StringVar(&envFlag, "env", "", "path to env.yaml")
	cmd.MarkFlagRequired("env") //nolint:errcheck
	return cmd
}

var errInvalidQuirk = errors.New("invalid quirk policy")

func parseQuirk(s string) (sigmf.QuirkPolicy, error) {
	switch q := sigmf.QuirkPolicy(s); q {
	case sigmf.QuirkAuto, sigmf.QuirkNever:
		return q, nil
	default:
		return "", fmt.Errorf("%w: %v", errInvalidQuirk, s)
	}
}

func openRecording(path string, quirk string) (*sigmf.Recording, *timeline.Timeline, error) {
	q, err := parseQuirk(quirk)
	if err != nil {
		return nil, nil, err
	}
	rec, err := sigmf.Open(path, sigmf.Options{Quirk: q})
	if err != nil {
		return nil, nil, err
	}
	tl := timeline.Build(
		rec.Captures, rec.Meta.TotalSamples, int(rec.Meta.CoreSampleRate), time.Now())
	return rec, tl, nil
}

type infoOutput struct {
	Name     string          `json:"name"`
	Meta     sigmf.Metadata  `json:"meta"`
	Captures []sigmf.Capture `json:"captures"`
	TotalMs  uint64          `json:"totalTimeMs"`
}

func newInfoCmd() *cobra.Command {
	var quirk, format string
	cmd := &cobra.Command{
		Use:   "info <recording>",
		Short: "Show metadata and the capture timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, tl, err := openRecording(args[0], quirk)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(infoOutput{
					Name:     rec.Name,
					Meta:     rec.Meta,
					Captures: tl.Captures(),
					TotalMs:  tl.TotalTimeMs(),
				})
			case "table":
				printInfo(out, rec, tl)
				return nil
			default:
				return fmt.Errorf("unknown format: %v", format)
			}
		},
	}
	cmd.Flags().StringVar(&quirk, "quirk", string(sigmf.QuirkAuto), "24 bit quirk policy (auto, never)")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format (table, json)")
	return cmd
}

func printInfo(w io.Writer, rec *sigmf.Recording, tl *timeline.Timeline) {
	m := rec.Meta
	fmt.Fprintf(w, "Recording:    %v\n", rec.Name)
	if m.Description != "" {
		fmt.Fprintf(w, "Description:  %v\n", m.Description)
	}
	if m.Author != "" {
		fmt.Fprintf(w, "Author:       %v\n", m.Author)
	}
	if m.Recorder != "" {
		fmt.Fprintf(w, "Recorder:     %v %v\n", m.Recorder, m.RecorderVersion)
	}
	fmt.Fprintf(w, "Datatype:     %v (%v)\n", m.DataTypeStr, m.DataType)
	fmt.Fprintf(w, "Sample rate:  %v S/s\n", m.CoreSampleRate)
	fmt.Fprintf(w, "Data size:    %v (%v bytes)\n", storage.FormatBytes(m.DataBytes), m.DataBytes)
	fmt.Fprintf(w, "Samples:      %v\n", m.TotalSamples)
	fmt.Fprintf(w, "Duration:     %v\n", formatMs(tl.TotalTimeMs()))
	for _, warning := range m.Warnings {
		fmt.Fprintf(w, "Warning:      %v\n", warning)
	}

	fmt.Fprintf(w, "\n%-5s %-12s %-12s %-10s %-14s %-12s %s\n",
		"TRACK", "START", "LENGTH", "RATE", "FREQUENCY", "OFFSET", "TIMESTAMP")
	for i, c := range tl.Captures() {
		ts := time.Unix(0, int64(c.StartTimestampMs)*int64(time.Millisecond)).UTC()
		fmt.Fprintf(w, "%-5d %-12d %-12d %-10d %-14d %-12s %s\n",
			i, c.SampleStart, c.Length, c.SampleRate, c.CenterFrequency,
			formatMs(c.CumulativeTimeMs), ts.Format("2006-01-02T15:04:05.000Z"))
	}
}

func formatMs(ms uint64) string {
	d := time.Duration(ms) * time.Millisecond
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, d/time.Millisecond)
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <recording>",
		Short: "Check the data file against the declared digest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, tl, err := openRecording(args[0], string(sigmf.QuirkNever))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			result, err := integrity.Verify(rec, tl)
			if err != nil && !errors.Is(err, integrity.ErrDigestMismatch) {
				return err
			}
			fmt.Fprintf(out, "sha512:       %v\n", result.Digest)
			if result.ComputedSHA512 != "" {
				fmt.Fprintf(out, "declared:     %v\n", rec.Meta.SHA512)
				fmt.Fprintf(out, "computed:     %v\n", result.ComputedSHA512)
			}
			fmt.Fprintf(out, "sample count: %v\n", okString(result.SampleCountOK))
			return err
		},
	}
	return cmd
}

func okString(ok bool) string {
	if ok {
		return "ok"
	}
	return "mismatch"
}

func newSamplesCmd() *cobra.Command {
	var quirk string
	var offset uint64
	var limit int
	cmd := &cobra.Command{
		Use:   "samples <recording>",
		Short: "Print decoded I/Q samples",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("invalid limit: %v", limit)
			}
			rec, _, err := openRecording(args[0], quirk)
			if err != nil {
				return err
			}
			samples, err := readSamples(rec, offset, limit)
			if err != nil {
				return err
			}
			printSamples(cmd.OutOrStdout(), offset, samples)
			return nil
		},
	}
	cmd.Flags().StringVar(&quirk, "quirk", string(sigmf.QuirkAuto), "24 bit quirk policy (auto, never)")
	cmd.Flags().Uint64Var(&offset, "offset", 0, "first sample")
	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "number of frames")
	return cmd
}

func readSamples(rec *sigmf.Recording, offset uint64, limit int) ([]complex64, error) {
	decoder, err := sample.NewDecoder(rec.Meta.DataType)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(rec.DataPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cursor := replay.NewCursor(file, decoder.FrameBytes())
	cursor.SetOffset(offset)

	raw := make([]byte, limit*decoder.FrameBytes())
	frames, err := cursor.Read(raw)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	samples := make([]complex64, frames*decoder.SamplesPerFrame())
	n := decoder.Decode(samples, raw[:frames*decoder.FrameBytes()])
	return samples[:n], nil
}

func printSamples(w io.Writer, offset uint64, samples []complex64) {
	fmt.Fprintf(w, "%-10s %-12s %-12s %-12s %s\n", "SAMPLE", "I", "Q", "MAGNITUDE", "PHASE")
	for i, s := range samples {
		c := complex128(s)
		fmt.Fprintf(w, "%-10d %-12.6f %-12.6f %-12.6f %.2f°\n",
			offset+uint64(i), real(c), imag(c), cmplx.Abs(c), cmplx.Phase(c)*180/math.Pi)
	}
}

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <password>",
		Short: "Generate a password hash for the users config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
