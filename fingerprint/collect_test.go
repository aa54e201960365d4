// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package fingerprint

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/danielhkuo/chainballot/models"
)

func syntheticEnv() Environment {
	offset := -120
	return Environment{
		UserAgent:           "Mozilla/5.0 (X11; Linux x86_64)",
		Language:            "en-US",
		ScreenWidth:         1920,
		ScreenHeight:        1080,
		ColorDepth:          24,
		TimezoneOffset:      &offset,
		Canvas:              func() (string, error) { return "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAMgAAAAyCAYAAA", nil },
		WebGL:               func() (string, error) { return "Mesa|llvmpipe (LLVM 15.0.7, 256 bits)", nil },
		HardwareConcurrency: 8,
		DeviceMemory:        8,
	}
}

func TestCollectDeterministic(t *testing.T) {
	first := Collect(syntheticEnv())
	second := Collect(syntheticEnv())

	if first != second {
		t.Errorf("Collect() not deterministic: %q vs %q", first, second)
	}
	if len(first) != Length {
		t.Errorf("Collect() length = %d, want %d", len(first), Length)
	}
}

func TestCollectDegradesFailingProbes(t *testing.T) {
	base := Collect(syntheticEnv())

	tests := []struct {
		name   string
		mutate func(env *Environment)
	}{
		{"canvas error", func(env *Environment) {
			env.Canvas = func() (string, error) { return "", errors.New("blocked") }
		}},
		{"canvas panic", func(env *Environment) {
			env.Canvas = func() (string, error) { panic("canvas unavailable") }
		}},
		{"webgl missing", func(env *Environment) { env.WebGL = nil }},
		{"webgl panic", func(env *Environment) {
			env.WebGL = func() (string, error) { panic("no context") }
		}},
		{"no timezone", func(env *Environment) { env.TimezoneOffset = nil }},
		{"everything empty", func(env *Environment) { *env = Environment{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := syntheticEnv()
			tt.mutate(&env)

			got := Collect(env)
			if len(got) != Length {
				t.Fatalf("Collect() length = %d, want %d", len(got), Length)
			}
			if got == base {
				t.Error("degraded environment should differ from the full one")
			}
			if again := Collect(env); again != got {
				t.Error("degraded environment should still be deterministic")
			}
		})
	}
}

func TestErrorAndPanicShareSentinel(t *testing.T) {
	failing := syntheticEnv()
	failing.Canvas = func() (string, error) { return "", errors.New("blocked") }

	panicking := syntheticEnv()
	panicking.Canvas = func() (string, error) { panic("boom") }

	if Collect(failing) != Collect(panicking) {
		t.Error("errored and panicking canvas probes should both map to canvas-error")
	}
}

func TestCollectProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("same environment yields same fingerprint", prop.ForAll(
		func(ua, lang string, w, h, cores int) bool {
			env := Environment{UserAgent: ua, Language: lang, ScreenWidth: w, ScreenHeight: h, HardwareConcurrency: cores}
			return Collect(env) == Collect(env)
		},
		gen.AnyString(),
		gen.AlphaString(),
		gen.IntRange(-10, 8000),
		gen.IntRange(-10, 8000),
		gen.IntRange(-1, 256),
	))

	properties.Property("output length is fixed", prop.ForAll(
		func(ua string) bool {
			return len(Collect(Environment{UserAgent: ua})) == Length
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestFromRequest(t *testing.T) {
	offset := 60
	reported := models.DeviceSignals{
		ScreenWidth:    390,
		ScreenHeight:   844,
		ColorDepth:     32,
		TimezoneOffset: &offset,
		Canvas:         "abc123",
		WebGLError:     true,
	}

	req := httptest.NewRequest("POST", "/sessions/s1/votes", nil)
	req.Header.Set("User-Agent", "TestAgent/1.0")
	req.Header.Set("Accept-Language", "fr-CA,fr;q=0.9,en;q=0.8")
	req.Header.Set(ClientIDHeader, "  client-1 ")

	env := FromRequest(req, reported)
	if env.Language != "fr-CA" {
		t.Errorf("Language = %q, want fr-CA", env.Language)
	}
	if _, err := env.WebGL(); err == nil {
		t.Error("WebGL probe should report the client-side failure")
	}

	d := DeviceFromRequest(req, reported)
	if d.ClientID != "client-1" {
		t.Errorf("ClientID = %q, want client-1", d.ClientID)
	}
	if d.Fingerprint != Collect(env) {
		t.Error("DeviceFromRequest fingerprint should match Collect(FromRequest)")
	}
}

func TestDeviceFromRequestWithoutSignals(t *testing.T) {
	req := httptest.NewRequest("POST", "/sessions/s1/votes", nil)
	req.Header.Set(ClientIDHeader, "client-1")

	d := DeviceFromRequest(req, models.DeviceSignals{})
	if d.Fingerprint != "" {
		t.Errorf("Fingerprint = %q, want empty for a request with no real signals", d.Fingerprint)
	}
	if d.ClientID != "client-1" {
		t.Errorf("ClientID = %q, want client-1", d.ClientID)
	}
}

func TestInformative(t *testing.T) {
	tests := []struct {
		name string
		env  Environment
		want bool
	}{
		{"empty", Environment{}, false},
		{"failing probes only", Environment{
			Canvas: func() (string, error) { return "", errors.New("blocked") },
			WebGL:  func() (string, error) { panic("no gl") },
		}, false},
		{"user agent", Environment{UserAgent: "TestAgent/1.0"}, true},
		{"full", syntheticEnv(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Informative(tt.env); got != tt.want {
				t.Errorf("Informative() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMemoryMarks(t *testing.T) {
	ctx := context.Background()
	marks := NewMemoryMarks()
	d := Device{ClientID: "client-1", Fingerprint: "fp-1"}

	has, err := marks.Has(ctx, "s1", "u1", d)
	if err != nil || has {
		t.Fatalf("Has() before mark = %v, %v", has, err)
	}

	if err := marks.Mark(ctx, "s1", "u1", d, time.Now()); err != nil {
		t.Fatalf("Mark() error = %v", err)
	}

	tests := []struct {
		name    string
		session string
		account string
		device  Device
		want    bool
	}{
		{"same device", "s1", "u1", d, true},
		{"same client new fingerprint", "s1", "u1", Device{ClientID: "client-1", Fingerprint: "fp-2"}, true},
		{"same client other account", "s1", "u2", Device{ClientID: "client-1"}, true},
		{"same fingerprint new client", "s1", "u1", Device{ClientID: "client-2", Fingerprint: "fp-1"}, true},
		{"same fingerprint other account", "s1", "u2", Device{ClientID: "client-2", Fingerprint: "fp-1"}, false},
		{"other session", "s2", "u1", d, false},
		{"empty device", "s1", "u1", Device{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := marks.Has(ctx, tt.session, tt.account, tt.device)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Has() = %v, want %v", got, tt.want)
			}
		})
	}

	marks.Clear()
	if has, _ := marks.Has(ctx, "s1", "u1", d); has {
		t.Error("Clear() should drop marks")
	}
}

// Two installs of the same browser build share a fingerprint; only the
// account that voted may be flagged by it.
func TestMarksSharedUserAgent(t *testing.T) {
	ctx := context.Background()
	marks := NewMemoryMarks()

	device := func(client string) Device {
		req := httptest.NewRequest("POST", "/sessions/s1/votes", nil)
		req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")
		req.Header.Set(ClientIDHeader, client)
		return DeviceFromRequest(req, models.DeviceSignals{})
	}
	a, b := device("device-a"), device("device-b")
	if a.Fingerprint == "" || a.Fingerprint != b.Fingerprint {
		t.Fatalf("fingerprints = %q, %q, want equal and non-empty", a.Fingerprint, b.Fingerprint)
	}

	if err := marks.Mark(ctx, "s1", "u1", a, time.Now()); err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	if has, err := marks.Has(ctx, "s1", "u2", b); err != nil || has {
		t.Errorf("Has(other account, shared fingerprint) = %v, %v, want false", has, err)
	}
	if has, err := marks.Has(ctx, "s1", "u1", b); err != nil || !has {
		t.Errorf("Has(same account, shared fingerprint) = %v, %v, want true", has, err)
	}
}

func TestRedisMarks(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	ctx := context.Background()
	marks, err := NewRedisMarks(ctx, url, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisMarks() error = %v", err)
	}
	defer marks.Close()

	session := "redis-test-" + time.Now().Format("150405.000000000")
	d := Device{ClientID: "client-1", Fingerprint: "fp-1"}

	if has, err := marks.Has(ctx, session, "u1", d); err != nil || has {
		t.Fatalf("Has() before mark = %v, %v", has, err)
	}
	if err := marks.Mark(ctx, session, "u1", d, time.Now()); err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	if has, err := marks.Has(ctx, session, "u1", Device{Fingerprint: "fp-1"}); err != nil || !has {
		t.Errorf("Has() after mark = %v, %v", has, err)
	}
	if has, err := marks.Has(ctx, session, "u2", Device{Fingerprint: "fp-1"}); err != nil || has {
		t.Errorf("Has() for other account = %v, %v", has, err)
	}
}
