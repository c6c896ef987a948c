package services

import "context"

// SpeechService synthesizes voiceover audio for scene-mode jobs. The audio
// bytes are a complete encoded file ready to mux over the stitched clips.
type SpeechService interface {
	Synthesize(ctx context.Context, text string) (*SpeechResult, error)
}

// SpeechResult carries the synthesized audio and its container format.
type SpeechResult struct {
	Audio  []byte
	Format string // file extension, e.g. "mp3"
}
