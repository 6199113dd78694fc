package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/petervdpas/avp/internal/avp"
	"github.com/petervdpas/avp/internal/config"
	"github.com/petervdpas/avp/internal/player"
	"github.com/petervdpas/avp/internal/sample"
	"github.com/petervdpas/avp/internal/source"
	"github.com/petervdpas/avp/internal/util"
)

// Inspect fetches a package from src (path, URL or gs:// object), decodes
// it and writes a human readable report to w. A package that decodes but
// fails validation is reported and returned as an error.
func Inspect(ctx context.Context, w io.Writer, cfg config.Config, fetcher *source.Fetcher, src string) error {
	data, err := fetcher.Fetch(ctx, src)
	if err != nil {
		return err
	}
	pc, err := avp.Extract(ctx, data,
		avp.WithStrictAssets(cfg.Player.StrictAssets),
		avp.WithMaxSize(cfg.Limits.MaxFileSize()),
	)
	if err != nil {
		return err
	}
	defer pc.Release()

	m := pc.Manifest
	fmt.Fprintf(w, "Package:    %s (%s)\n", src, util.HumanBytes(int64(len(data))))
	fmt.Fprintf(w, "Title:      %s\n", m.Title)
	fmt.Fprintf(w, "Version:    %s\n", m.Version)
	fmt.Fprintf(w, "Audio:      %s (%s)\n", m.Audio, util.HumanBytes(int64(len(pc.Audio))))
	if m.Duration != nil {
		fmt.Fprintf(w, "Duration:   %s\n", player.FormatTime(*m.Duration))
	}
	if pc.HasPoster() {
		fmt.Fprintf(w, "Poster:     %s\n", m.Poster)
	}
	if pc.Transcript != nil {
		fmt.Fprintf(w, "Transcript: %s\n", m.Transcript)
	}
	if len(pc.Images) > 0 {
		srcs := make([]string, 0, len(pc.Images))
		for s := range pc.Images {
			srcs = append(srcs, s)
		}
		sort.Strings(srcs)
		fmt.Fprintf(w, "Images:     %s\n", strings.Join(srcs, ", "))
	}
	fmt.Fprintf(w, "Keyframes:  %d on %s\n", len(m.Keyframes), strings.Join(avp.Targets(m.Keyframes), ", "))
	for _, k := range m.Keyframes {
		desc := ""
		switch {
		case k.ImageSrc() != "":
			desc = k.ImageSrc()
		case k.Content != nil:
			desc = fmt.Sprintf("%q", k.Content.Text)
		}
		fmt.Fprintf(w, "  %6s  %-4s %-10s %s\n", player.FormatTime(k.Time), k.Type, k.Target, desc)
	}
	for _, wn := range pc.Warnings {
		fmt.Fprintf(w, "warning: %s\n", wn)
	}

	lim := avp.Limits{
		MaxKeyframes:       cfg.Limits.MaxKeyframes,
		MaxDurationSeconds: float64(cfg.Limits.MaxLessonDurationMinutes * 60),
	}
	if err := avp.Validate(m, lim); err != nil {
		var ve *avp.ValidationError
		if errors.As(err, &ve) {
			for _, p := range ve.Problems {
				fmt.Fprintf(w, "problem: %s\n", p)
			}
		}
		return err
	}
	return nil
}

// WriteSample writes the generated test lesson to path.
func WriteSample(path, title string) error {
	data, err := sample.Generate(sample.Options{Title: title})
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	log.Infof("wrote %s (%s)", path, util.HumanBytes(int64(len(data))))
	return nil
}
