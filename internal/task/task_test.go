package task

import (
	"errors"
	"reflect"
	"testing"
)

func TestInstallRoundTrip(t *testing.T) {
	for _, want := range []*Install{
		{InstallDir: "/opt/app", ExeName: "app", WasAdmin: false, NeedAdmin: false, DisableGPU: false},
		{InstallDir: `C:\Program Files\Breeze`, ExeName: "Breeze.exe", WasAdmin: true, NeedAdmin: true, DisableGPU: true},
		{InstallDir: "/Applications/Breeze.app", ExeName: "Breeze", WasAdmin: false, NeedAdmin: true, DisableGPU: false},
	} {
		got, err := Parse(want.Args())
		if err != nil {
			t.Fatalf("Parse(%v): %v", want.Args(), err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
		}
	}
}

func TestInstallMissingTrailingFieldsUseDefaults(t *testing.T) {
	got, err := Parse([]string{"--update-install", "/opt/app", "app"})
	if err != nil {
		t.Fatal(err)
	}
	inst := got.(*Install)
	if inst.WasAdmin != false || inst.NeedAdmin != true || inst.DisableGPU != true {
		t.Fatalf("defaults not applied: %+v", inst)
	}

	got, err = Parse([]string{"--update-install", "/opt/app", "app", "1"})
	if err != nil {
		t.Fatal(err)
	}
	inst = got.(*Install)
	if !inst.WasAdmin || !inst.NeedAdmin || !inst.DisableGPU {
		t.Fatalf("partial args: %+v", inst)
	}
}

func TestInstallScenarioNeedsAdmin(t *testing.T) {
	got, err := Parse([]string{"--update-install", "/opt/app", "app.exe", "0", "1", "1"})
	if err != nil {
		t.Fatal(err)
	}
	inst, ok := got.(*Install)
	if !ok {
		t.Fatalf("expected *Install, got %T", got)
	}
	if !inst.NeedAdmin || inst.WasAdmin {
		t.Fatalf("unexpected flags: %+v", inst)
	}
	if inst.InstallDir != "/opt/app" || inst.ExeName != "app.exe" {
		t.Fatalf("unexpected paths: %+v", inst)
	}
}

func TestPostInstallRoundTrip(t *testing.T) {
	for _, want := range []*PostInstall{
		{ScratchDir: "/tmp/breeze-update-123", CopySucceeded: true},
		{ScratchDir: "/tmp/breeze-update-456", CopySucceeded: false},
	} {
		got, err := Parse(want.Args())
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	}
}

func TestPostInstallMissingFlagDefaultsToSuccess(t *testing.T) {
	got, err := Parse([]string{"--update-post-install", "/tmp/scratch"})
	if err != nil {
		t.Fatal(err)
	}
	if !got.(*PostInstall).CopySucceeded {
		t.Fatal("missing copySucceeded should default to true")
	}
}

func TestParseIgnoresLeadingArgs(t *testing.T) {
	got, err := Parse([]string{"--disable-gpu", "--update-post-install", "/tmp/s", "0"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind() != KindPostInstall {
		t.Fatalf("kind = %s", got.Kind())
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"install without paths", []string{"--update-install"}},
		{"install without exe", []string{"--update-install", "/opt/app"}},
		{"install bad flag", []string{"--update-install", "/opt/app", "app", "yes"}},
		{"post-install without dir", []string{"--update-post-install"}},
		{"post-install bad flag", []string{"--update-post-install", "/tmp/s", "2"}},
		{"unknown task", []string{"--update-rollback", "/tmp/s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.args)
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
		})
	}
}

func TestParseNoTask(t *testing.T) {
	if _, err := Parse([]string{"run", "--config", "x.yaml"}); !errors.Is(err, ErrNoTask) {
		t.Fatalf("expected ErrNoTask, got %v", err)
	}
	if _, err := Parse(nil); !errors.Is(err, ErrNoTask) {
		t.Fatalf("expected ErrNoTask for nil args, got %v", err)
	}
}

func TestStrip(t *testing.T) {
	args := []string{"run", "--update-post-install", "/tmp/s", "1", "--config", "x.yaml"}
	got := Strip(args)
	want := []string{"run", "--config", "x.yaml"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Strip = %v, want %v", got, want)
	}

	short := []string{"--update-install", "/opt/app", "app", "--verbose"}
	if got := Strip(short); !reflect.DeepEqual(got, []string{"--verbose"}) {
		t.Fatalf("Strip short = %v", got)
	}

	plain := []string{"check"}
	if got := Strip(plain); !reflect.DeepEqual(got, plain) {
		t.Fatalf("Strip without marker = %v", got)
	}
}
