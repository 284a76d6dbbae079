package synth

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/sinshu/go-meltysynth/meltysynth"

	"fractal-sequence/debug"
	"fractal-sequence/pitch"
)

var (
	ErrNoSoundFont       = errors.New("synth: no soundfont configured")
	ErrSoundFontNotFound = errors.New("synth: soundfont not found")
)

// drumChannel is skipped; General MIDI reserves it for percussion.
const drumChannel = 9

// LoadSoundFont reads and parses an SF2 file.
func LoadSoundFont(path string) (*meltysynth.SoundFont, error) {
	if path == "" {
		return nil, ErrNoSoundFont
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSoundFontNotFound, path)
		}
		return nil, fmt.Errorf("failed to load soundfont %s: %w", path, err)
	}
	sf, err := meltysynth.NewSoundFont(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse soundfont %s: %w", path, err)
	}
	debug.Log("synth", "loaded soundfont %s", path)
	return sf, nil
}

type sfNote struct {
	channel int32
	key     int32
}

// SoundFontVoices plays notes through a meltysynth synthesizer. Notes are
// spread over the melodic channels so each can hold its own pitch bend.
type SoundFontVoices struct {
	synth    *meltysynth.Synthesizer
	channels []int32
	next     int
	bend     map[int32]int16
	notes    map[int]sfNote
	nextID   int
}

// NewSoundFontVoices creates a synthesizer at sampleRate with every
// melodic channel set to program.
func NewSoundFontVoices(sf *meltysynth.SoundFont, sampleRate, program int) (*SoundFontVoices, error) {
	if sf == nil {
		return nil, ErrNoSoundFont
	}
	settings := meltysynth.NewSynthesizerSettings(int32(sampleRate))
	synth, err := meltysynth.NewSynthesizer(sf, settings)
	if err != nil {
		return nil, fmt.Errorf("create synthesizer: %w", err)
	}
	v := &SoundFontVoices{
		synth: synth,
		bend:  make(map[int32]int16),
		notes: make(map[int]sfNote),
	}
	for ch := int32(0); ch < 16; ch++ {
		if ch == drumChannel {
			continue
		}
		v.channels = append(v.channels, ch)
		synth.ProcessMidiMessage(ch, 0xC0, int32(program&0x7F), 0)
	}
	return v, nil
}

func (s *SoundFontVoices) NoteOn(note int, velocity, cents float64) int {
	ch := s.channels[s.next%len(s.channels)]
	s.next++

	bend := pitch.Bend(cents, 2)
	if last, ok := s.bend[ch]; !ok || last != bend {
		s.bend[ch] = bend
		u := int32(bend) + 8192
		s.synth.ProcessMidiMessage(ch, 0xE0, u&0x7F, (u>>7)&0x7F)
	}
	key := int32(min(max(note, 0), 127))
	vel := int32(math.Min(math.Max(math.Floor(velocity*127+0.5), 1), 127))
	s.synth.NoteOn(ch, key, vel)

	id := s.nextID
	s.nextID++
	s.notes[id] = sfNote{channel: ch, key: key}
	return id
}

func (s *SoundFontVoices) NoteOff(id int) {
	n, ok := s.notes[id]
	if !ok {
		return
	}
	delete(s.notes, id)
	s.synth.NoteOff(n.channel, n.key)
}

func (s *SoundFontVoices) Render(left, right []float32) {
	s.synth.Render(left, right)
}

// Active counts held notes; release tails are not tracked.
func (s *SoundFontVoices) Active() int {
	return len(s.notes)
}
