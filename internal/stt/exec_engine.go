package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/loqalabs/loqa-mathgame/internal/config"
	"github.com/mattn/go-shellwords"
)

// execEngine shells out to an external transcriber. The command receives
// --audio <wav> (plus --model/--language when configured) and prints
// {"text": "...", "confidence": 0.9} on stdout.
type execEngine struct {
	argv []string
	cfg  config.STTConfig
	mu   sync.Mutex
}

type execOutput struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func NewExecEngine(cfg config.STTConfig) (Engine, error) {
	argv, err := shellwords.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	return &execEngine{argv: argv, cfg: cfg}, nil
}

func (e *execEngine) Transcribe(ctx context.Context, pcm []byte, sampleRate int, channels int, final bool) (TranscriptResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	file, err := os.CreateTemp("", "mathgame_stt_*.wav")
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := writeWav(file, pcm, sampleRate, channels); err != nil {
		return TranscriptResult{}, err
	}

	cmd := exec.CommandContext(ctx, e.argv[0], e.args(file.Name(), final)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return TranscriptResult{}, fmt.Errorf("stt command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var out execOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return TranscriptResult{}, fmt.Errorf("decode stt output: %w", err)
	}
	return TranscriptResult{Text: strings.TrimSpace(out.Text), Confidence: out.Confidence}, nil
}

func (e *execEngine) args(audioPath string, final bool) []string {
	args := append([]string{}, e.argv[1:]...)
	args = append(args, "--audio", audioPath)
	if e.cfg.ModelPath != "" {
		args = append(args, "--model", e.cfg.ModelPath)
	}
	if e.cfg.Language != "" {
		args = append(args, "--language", e.cfg.Language)
	}
	if !final {
		args = append(args, "--partial")
	}
	return args
}

// writeWav encodes little-endian 16-bit PCM as a WAV stream.
func writeWav(w io.WriteSeeker, pcm []byte, sampleRate int, channels int) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:   samples,
	}

	enc := wav.NewEncoder(w, sampleRate, 16, channels, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
