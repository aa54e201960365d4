// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Length is the number of hex characters in every fingerprint.
const Length = 32

// Sentinels substituted for probes that are missing or fail.
const (
	Unknown     = "unknown"
	NoCanvas    = "no-canvas"
	CanvasError = "canvas-error"
	NoWebGL     = "no-webgl"
	WebGLError  = "webgl-error"
)

// Probe reads one rendering-surface signal. A nil probe means the surface is
// unavailable.
type Probe func() (string, error)

// Environment is the set of ambient signals the fingerprint is derived from.
// Zero values mean the signal was not reported.
type Environment struct {
	UserAgent           string
	Language            string
	ScreenWidth         int
	ScreenHeight        int
	ColorDepth          int
	TimezoneOffset      *int
	Canvas              Probe
	WebGL               Probe
	HardwareConcurrency int
	DeviceMemory        float64
}

// Collect returns a fixed-length fingerprint for env. It never panics: a
// failing signal degrades to its sentinel and the rest still contribute.
func Collect(env Environment) string {
	sum := sha256.Sum256([]byte(strings.Join(components(env), "|")))
	return hex.EncodeToString(sum[:])[:Length]
}

// Informative reports whether at least one signal in env is real. A
// fingerprint built only from sentinels is the same for every client.
func Informative(env Environment) bool {
	for _, c := range components(env) {
		switch c {
		case Unknown, NoCanvas, CanvasError, NoWebGL, WebGLError:
		default:
			return true
		}
	}
	return false
}

func components(env Environment) []string {
	return []string{
		guard(func() string { return orUnknown(env.UserAgent) }),
		guard(func() string { return orUnknown(env.Language) }),
		guard(func() string { return screen(env.ScreenWidth, env.ScreenHeight) }),
		guard(func() string { return positive(env.ColorDepth) }),
		guard(func() string {
			if env.TimezoneOffset == nil {
				return Unknown
			}
			return strconv.Itoa(*env.TimezoneOffset)
		}),
		runProbe(env.Canvas, NoCanvas, CanvasError, 50),
		runProbe(env.WebGL, NoWebGL, WebGLError, 30),
		guard(func() string { return positive(env.HardwareConcurrency) }),
		guard(func() string {
			if env.DeviceMemory <= 0 {
				return Unknown
			}
			return strconv.FormatFloat(env.DeviceMemory, 'f', -1, 64)
		}),
	}
}

// runProbe calls p and keeps only the trailing keep characters of its output.
func runProbe(p Probe, missing, failed string, keep int) (out string) {
	if p == nil {
		return missing
	}
	defer func() {
		if recover() != nil {
			out = failed
		}
	}()

	v, err := p()
	if err != nil {
		return failed
	}
	if v == "" {
		return missing
	}
	if len(v) > keep {
		v = v[len(v)-keep:]
	}
	return v
}

func guard(f func() string) (out string) {
	defer func() {
		if recover() != nil {
			out = Unknown
		}
	}()
	return f()
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}

func positive(n int) string {
	if n <= 0 {
		return Unknown
	}
	return strconv.Itoa(n)
}

func screen(w, h int) string {
	if w <= 0 || h <= 0 {
		return Unknown
	}
	return fmt.Sprintf("%dx%d", w, h)
}
