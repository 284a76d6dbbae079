package audio

import (
	"errors"
	"fmt"
	"os"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
)

const numChannels = 2

var ErrEmptyRender = errors.New("audio: nothing to render")

// Render pulls frames from source in blocks and returns them interleaved.
func Render(source SampleSource, frames, blockFrames int) []float32 {
	if frames <= 0 {
		return nil
	}
	if blockFrames <= 0 {
		blockFrames = 512
	}
	out := make([]float32, frames*numChannels)
	for pos := 0; pos < frames; pos += blockFrames {
		end := min(pos+blockFrames, frames)
		source.Process(out[pos*numChannels : end*numChannels])
	}
	return out
}

// WriteWAV writes interleaved stereo samples as 16-bit PCM.
func WriteWAV(path string, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return ErrEmptyRender
	}
	if len(samples)%numChannels != 0 {
		return fmt.Errorf("audio: %d samples is not whole stereo frames", len(samples))
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()

	// 16-bit PCM (audioFormat = 1)
	encoder := wav.NewEncoder(file, sampleRate, 16, numChannels, 1)
	buf := &goaudio.Float32Buffer{
		Format: &goaudio.Format{
			SampleRate:  sampleRate,
			NumChannels: numChannels,
		},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := encoder.Write(buf); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	return nil
}
