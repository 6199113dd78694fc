package avp

import (
	"sort"
)

// ReferencedImages returns the image paths referenced by show keyframes, in
// first-appearance order, each path once.
func ReferencedImages(kfs []Keyframe) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, k := range kfs {
		src := k.ImageSrc()
		if src == "" {
			continue
		}
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	return out
}

// Triggered returns every keyframe with Time <= t, stably ordered by time.
// The input may be unsorted and is not modified.
func Triggered(kfs []Keyframe, t float64) []Keyframe {
	var out []Keyframe
	for _, k := range kfs {
		if k.Time <= t {
			out = append(out, k)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// ActiveAt returns, per target, the keyframe currently in effect at time t
// when that keyframe is a show. The latest keyframe with Time <= t decides;
// equal times resolve to the one listed last. Result is ordered by target.
func ActiveAt(kfs []Keyframe, t float64) []Keyframe {
	type pick struct {
		kf  Keyframe
		idx int
	}
	latest := make(map[string]pick)
	for i, k := range kfs {
		if k.Time > t {
			continue
		}
		cur, ok := latest[k.Target]
		if !ok || k.Time > cur.kf.Time || (k.Time == cur.kf.Time && i > cur.idx) {
			latest[k.Target] = pick{k, i}
		}
	}

	out := make([]Keyframe, 0, len(latest))
	for _, p := range latest {
		if p.kf.Type == Show {
			out = append(out, p.kf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

// Targets lists the distinct keyframe targets, sorted.
func Targets(kfs []Keyframe) []string {
	seen := make(map[string]struct{})
	for _, k := range kfs {
		seen[k.Target] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
