package stt

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/go-audio/wav"
	"github.com/loqalabs/loqa-mathgame/internal/config"
)

func TestNewExecEngineParsesCommand(t *testing.T) {
	engine, err := NewExecEngine(config.STTConfig{
		Command:   `whisper-cli --json --prompt "numbers only"`,
		ModelPath: "/models/base.bin",
		Language:  "en",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := engine.(*execEngine).args("/tmp/a.wav", false)
	want := []string{"--json", "--prompt", "numbers only", "--audio", "/tmp/a.wav", "--model", "/models/base.bin", "--language", "en", "--partial"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected args:\n got %q\nwant %q", got, want)
	}
}

func TestNewExecEngineRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecEngine(config.STTConfig{Command: "   "}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestWriteWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	pcm := []byte{0x01, 0x00, 0xff, 0x7f, 0x00, 0x80, 0x00, 0x00}
	if err := writeWav(f, pcm, 16000, 1); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	dec := wav.NewDecoder(r)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.SampleRate != 16000 || dec.NumChans != 1 {
		t.Fatalf("unexpected format: rate %d chans %d", dec.SampleRate, dec.NumChans)
	}
	want := []int{1, 32767, -32768, 0}
	if !reflect.DeepEqual(buf.Data, want) {
		t.Fatalf("unexpected samples %v", buf.Data)
	}
}

func TestWriteWavRejectsOddPayload(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "odd.wav"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := writeWav(f, []byte{0x01}, 16000, 1); err == nil {
		t.Fatal("expected error for odd payload")
	}
}
