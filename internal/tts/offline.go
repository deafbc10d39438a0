package tts

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Voice identifies one installed offline voice.
type Voice struct {
	ID   string
	Name string
}

// SelectVoice picks a voice from available by walking the preferred
// identifiers in order; an identifier matches on exact ID or name
// substring (case-insensitive). Falls back to the first available voice.
// This is a heuristic, not a guarantee: installed voice names vary wildly
// across systems.
func SelectVoice(available []Voice, preferred []string) (Voice, error) {
	if len(available) == 0 {
		return Voice{}, fmt.Errorf("no offline voices available")
	}
	for _, want := range preferred {
		w := strings.ToLower(want)
		for _, v := range available {
			if strings.ToLower(v.ID) == w || strings.Contains(strings.ToLower(v.Name), w) {
				return v, nil
			}
		}
	}
	return available[0], nil
}

// EspeakSpeaker speaks text through the espeak-ng binary as an offline
// fallback when no networked synthesizer is configured.
type EspeakSpeaker struct {
	Binary string
}

func NewEspeakSpeaker() *EspeakSpeaker { return &EspeakSpeaker{Binary: "espeak-ng"} }

// Voices lists installed espeak voices.
func (e *EspeakSpeaker) Voices(ctx context.Context) ([]Voice, error) {
	out, err := exec.CommandContext(ctx, e.Binary, "--voices").Output()
	if err != nil {
		return nil, fmt.Errorf("espeak voices: %w", err)
	}
	return parseEspeakVoices(out), nil
}

// Speak blocks until playback finishes or ctx is cancelled.
func (e *EspeakSpeaker) Speak(ctx context.Context, text string, voice Voice) error {
	args := []string{}
	if voice.ID != "" {
		args = append(args, "-v", voice.ID)
	}
	args = append(args, text)
	if err := exec.CommandContext(ctx, e.Binary, args...).Run(); err != nil {
		return fmt.Errorf("espeak speak: %w", err)
	}
	return nil
}

// parseEspeakVoices reads `espeak-ng --voices` output. Columns, after the
// header line: Pty Language Age/Gender VoiceName File Other.
func parseEspeakVoices(out []byte) []Voice {
	var voices []Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	first := true
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if first {
			first = false
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		voices = append(voices, Voice{ID: fields[1], Name: fields[3]})
	}
	return voices
}
