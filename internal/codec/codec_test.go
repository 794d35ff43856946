package codec

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/spaceshipgen/comparator/internal/domain"
)

func dataURL(body string) string {
	return "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte(body))
}

func TestDecode_Valid(t *testing.T) {
	p, err := Decode("foo_42_exp2.txt", dataURL("ABC"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Seed != "42" {
		t.Errorf("Seed = %q, want 42", p.Seed)
	}
	if p.Slot != 2 {
		t.Errorf("Slot = %d, want 2", p.Slot)
	}
	if p.Derivation != "ABC" {
		t.Errorf("Derivation = %q, want ABC", p.Derivation)
	}
	if p.Filename != "foo_42_exp2.txt" {
		t.Errorf("Filename = %q", p.Filename)
	}
}

func TestDecode_CanonicalSeed(t *testing.T) {
	p, err := Decode("ship_007_exp1.txt", dataURL("x"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Seed != "7" {
		t.Errorf("Seed = %q, want 7", p.Seed)
	}
}

func TestDecode_HugeSeed(t *testing.T) {
	const seed = "340282366920938463463374607431768211455"
	p, err := Decode("ship_"+seed+"_exp3.txt", dataURL("x"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(p.Seed) != seed {
		t.Errorf("Seed = %q, want %q", p.Seed, seed)
	}
}

func TestDecode_StripsDirectory(t *testing.T) {
	p, err := Decode("uploads/run/foo_5_exp1.txt", dataURL("cockpit"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Slot != 1 || p.Seed != "5" {
		t.Errorf("got slot=%d seed=%s", p.Slot, p.Seed)
	}
}

func TestDecode_UnicodeBody(t *testing.T) {
	body := "corridor(2)[RotYcwX thrusters]·ü"
	p, err := Decode("a_1_exp1.txt", dataURL(body))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Derivation != body {
		t.Errorf("Derivation = %q, want %q", p.Derivation, body)
	}
}

func TestDecode_RejectsUnpaddedBase64(t *testing.T) {
	_, err := Decode("a_1_exp1.txt", "data:,"+base64.RawStdEncoding.EncodeToString([]byte("AB")))
	if !errors.Is(err, domain.ErrFormat) {
		t.Fatalf("err = %v, want ErrFormat", err)
	}
}

func TestDecode_FormatErrors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		contents string
	}{
		{"two fields", "foo_exp1.txt", dataURL("x")},
		{"four fields", "my_ship_1_exp1.txt", dataURL("x")},
		{"slot zero", "foo_1_exp0.txt", dataURL("x")},
		{"slot four", "foo_1_exp4.txt", dataURL("x")},
		{"no extension", "foo_1_exp1", dataURL("x")},
		{"bad prefix", "foo_1_run1.txt", dataURL("x")},
		{"negative seed", "foo_-1_exp1.txt", dataURL("x")},
		{"alpha seed", "foo_abc_exp1.txt", dataURL("x")},
		{"empty seed", "foo__exp1.txt", dataURL("x")},
		{"no comma", "foo_1_exp1.txt", "QUJD"},
		{"two commas", "foo_1_exp1.txt", "data:,QUJD,QUJD"},
		{"bad base64", "foo_1_exp1.txt", "data:,@@@"},
		{"invalid utf8", "foo_1_exp1.txt", "data:," + base64.StdEncoding.EncodeToString([]byte{0xff, 0xfe})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.filename, tt.contents)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, domain.ErrFormat) {
				t.Errorf("expected ErrFormat, got %v", err)
			}
		})
	}
}

func TestDecodeAll_IsolatesFailures(t *testing.T) {
	files := []domain.UploadFile{
		{Name: "a_9_exp1.txt", Contents: dataURL("one")},
		{Name: "broken.txt", Contents: dataURL("two")},
		{Name: "a_9_exp3.txt", Contents: dataURL("three")},
	}

	payloads, failures := DecodeAll(files)
	if len(payloads) != 2 {
		t.Fatalf("payloads = %d, want 2", len(payloads))
	}
	if payloads[0].Slot != 1 || payloads[1].Slot != 3 {
		t.Errorf("unexpected slots %d, %d", payloads[0].Slot, payloads[1].Slot)
	}
	if len(failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(failures))
	}
	if failures[0].Filename != "broken.txt" {
		t.Errorf("failure filename = %q", failures[0].Filename)
	}
	if !errors.Is(failures[0], domain.ErrFormat) {
		t.Errorf("failure should unwrap to ErrFormat: %v", failures[0])
	}
}

func TestDataURL_RoundTrip(t *testing.T) {
	p, err := Decode("ship_9_exp2.txt", DataURL("ABBA/A..A"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Derivation != "ABBA/A..A" {
		t.Errorf("Derivation = %q", p.Derivation)
	}
}

func TestFromFile(t *testing.T) {
	raw := FromFile("/tmp/drop/ship_42_exp1.txt", []byte("ABC\n"))
	if raw.Name != "ship_42_exp1.txt" {
		t.Errorf("Name = %q", raw.Name)
	}
	p, err := Decode(raw.Name, raw.Contents)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Derivation != "ABC" {
		t.Errorf("Derivation = %q, want ABC", p.Derivation)
	}

	url := dataURL("XYZ")
	kept := FromFile("ship_42_exp1.txt", []byte(url))
	if kept.Contents != url {
		t.Errorf("data URL contents rewritten: %q", kept.Contents)
	}
}

func TestIsArtifactName(t *testing.T) {
	tests := map[string]bool{
		"ship_42_exp1.txt":     true,
		"dir/ship_x_exp3.txt":  true,
		"ship_42_exp4.txt":     false,
		"ship_42_exp1.txt.swp": false,
		"042_res.json":         false,
		"a_b_c_exp1.txt":       false,
	}
	for name, want := range tests {
		if got := IsArtifactName(name); got != want {
			t.Errorf("IsArtifactName(%q) = %v, want %v", name, got, want)
		}
	}
}
