// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package fingerprint

import (
	"errors"
	"net/http"
	"strings"

	"github.com/danielhkuo/chainballot/models"
)

// ClientIDHeader carries the per-install client identifier.
const ClientIDHeader = "X-Device-UUID"

var errProbeFailed = errors.New("probe failed on client")

// FromRequest combines request headers with the signals the client reported
// in the body.
func FromRequest(r *http.Request, reported models.DeviceSignals) Environment {
	env := Environment{
		UserAgent:           r.UserAgent(),
		Language:            primaryLanguage(r.Header.Get("Accept-Language")),
		ScreenWidth:         reported.ScreenWidth,
		ScreenHeight:        reported.ScreenHeight,
		ColorDepth:          reported.ColorDepth,
		TimezoneOffset:      reported.TimezoneOffset,
		HardwareConcurrency: reported.HardwareConcurrency,
		DeviceMemory:        reported.DeviceMemory,
	}
	env.Canvas = reportedProbe(reported.Canvas, reported.CanvasError)
	env.WebGL = reportedProbe(reported.WebGL, reported.WebGLError)
	return env
}

// DeviceFromRequest returns the advisory device reference for r. The
// fingerprint is left empty when no real signal was available.
func DeviceFromRequest(r *http.Request, reported models.DeviceSignals) Device {
	d := Device{ClientID: strings.TrimSpace(r.Header.Get(ClientIDHeader))}
	if env := FromRequest(r, reported); Informative(env) {
		d.Fingerprint = Collect(env)
	}
	return d
}

func reportedProbe(value string, failed bool) Probe {
	if failed {
		return func() (string, error) { return "", errProbeFailed }
	}
	if value == "" {
		return nil
	}
	return func() (string, error) { return value, nil }
}

// primaryLanguage returns the first tag of an Accept-Language header.
func primaryLanguage(header string) string {
	if header == "" {
		return ""
	}
	first, _, _ := strings.Cut(header, ",")
	tag, _, _ := strings.Cut(first, ";")
	return strings.TrimSpace(tag)
}
