package localstore

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif" // decoder registration
	"image/jpeg"
	_ "image/png" // decoder registration
	"strings"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"golang.org/x/image/draw"
)

const imageDataURLPrefix = "data:image/"

// Tier is one step of the compaction cascade
type Tier struct {
	MaxDimension int `json:"max_dimension"`
	Quality      int `json:"quality"`
}

// String returns a short label such as "1200px q65"
func (t Tier) String() string {
	return fmt.Sprintf("%dpx q%d", t.MaxDimension, t.Quality)
}

// DefaultTiers returns the four escalating compaction tiers
func DefaultTiers() []Tier {
	return []Tier{
		{MaxDimension: 1600, Quality: 80},
		{MaxDimension: 1200, Quality: 65},
		{MaxDimension: 800, Quality: 50},
		{MaxDimension: 480, Quality: 35},
	}
}

// Compactor shrinks images embedded in records as data URLs
type Compactor struct {
	tiers []Tier
}

// NewCompactor creates a compactor over tiers, or DefaultTiers when none are given
func NewCompactor(tiers ...Tier) *Compactor {
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	return &Compactor{tiers: tiers}
}

// Tiers returns the cascade in the order it is tried
func (c *Compactor) Tiers() []Tier {
	return append([]Tier(nil), c.tiers...)
}

// Compact returns a copy of r with every embedded image re-encoded as JPEG at
// tier. Images that cannot be decoded are left as they are. The count is the
// number of images that were replaced.
func (c *Compactor) Compact(r shared.Record, tier Tier) (out shared.Record, n int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("compaction at %s panicked: %v", tier, p)
		}
	}()

	out = r.Clone()
	fields, _ := walkImages(out.Fields, func(s string) (string, bool) {
		smaller, ok := recompress(s, tier)
		if ok {
			n++
		}
		return smaller, ok
	}).(map[string]any)
	out.Fields = fields
	return out, n, nil
}

// StripImages returns a copy of r with every embedded image payload emptied.
// Non-image fields are kept.
func StripImages(r shared.Record) (shared.Record, int) {
	out := r.Clone()
	n := 0
	fields, _ := walkImages(out.Fields, func(string) (string, bool) {
		n++
		return "", true
	}).(map[string]any)
	out.Fields = fields
	return out, n
}

// CountImages reports how many embedded images r holds
func CountImages(r shared.Record) int {
	n := 0
	walkImages(r.Clone().Fields, func(s string) (string, bool) {
		n++
		return s, false
	})
	return n
}

// walkImages rebuilds v, passing every image data URL through fn
func walkImages(v any, fn func(string) (string, bool)) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return t
		}
		for k, e := range t {
			t[k] = walkImages(e, fn)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = walkImages(e, fn)
		}
		return t
	case string:
		if !strings.HasPrefix(t, imageDataURLPrefix) {
			return t
		}
		if replaced, ok := fn(t); ok {
			return replaced
		}
		return t
	default:
		return v
	}
}

// recompress decodes a base64 image data URL, scales it to fit tier and
// re-encodes it. It reports false when the result would not be smaller.
func recompress(dataURL string, tier Tier) (string, bool) {
	header, payload, ok := strings.Cut(dataURL, ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return dataURL, false
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return dataURL, false
	}
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return dataURL, false
	}

	w, h := fit(src.Bounds().Dx(), src.Bounds().Dy(), tier.MaxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: tier.Quality}); err != nil {
		return dataURL, false
	}
	out := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
	if len(out) >= len(dataURL) {
		return dataURL, false
	}
	return out, true
}

// fit scales w x h down so the longer side is at most maxDim
func fit(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return max(w, 1), max(h, 1)
	}
	if w >= h {
		return maxDim, max(h*maxDim/w, 1)
	}
	return max(w*maxDim/h, 1), maxDim
}
