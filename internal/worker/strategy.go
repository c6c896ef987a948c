package worker

import (
	"context"
	"fmt"

	"github.com/kehsibha/walter/internal/models"
	"github.com/kehsibha/walter/internal/services"
)

// clipStrategy is the per-mode variant of the clip-generation and voice
// stages. Scene mode renders independent visuals and synthesizes a separate
// voiceover; anchor mode lip-syncs the narration into the clips themselves.
type clipStrategy interface {
	produceClips(ctx context.Context, u *updater, topic string, b band, script *models.VideoScript) ([]models.Clip, *services.SpeechResult, error)
}

type sceneStrategy struct {
	clips  ClipProducer
	speech services.SpeechService
}

func (s *sceneStrategy) produceClips(ctx context.Context, u *updater, topic string, b band, script *models.VideoScript) ([]models.Clip, *services.SpeechResult, error) {
	if err := u.update(ctx, "clip-generation:"+topic, b.at(35), models.EventClips,
		fmt.Sprintf("Generating scene clips (%d scenes)…", len(script.Scenes)), nil); err != nil {
		return nil, nil, err
	}
	clips, err := s.clips.GenerateSceneClips(ctx, script)
	if err != nil {
		return nil, nil, err
	}
	labels := make([]string, len(clips))
	for i, c := range clips {
		labels[i] = fmt.Sprintf("Scene %d", c.Index+1)
	}
	if err := u.update(ctx, "clip-generation:"+topic, b.at(42), models.EventClips, "Scene clips ready", labels); err != nil {
		return nil, nil, err
	}

	if err := u.update(ctx, "voice:"+topic, b.at(50), models.EventVoice, "Synthesizing voiceover…", nil); err != nil {
		return nil, nil, err
	}
	tts, err := s.speech.Synthesize(ctx, script.Voiceover)
	if err != nil {
		return nil, nil, err
	}
	if err := u.update(ctx, "voice:"+topic, b.at(54), models.EventVoice,
		fmt.Sprintf("Voiceover ready (%d KB)", len(tts.Audio)/1024), nil); err != nil {
		return nil, nil, err
	}

	return clips, tts, nil
}

type anchorStrategy struct {
	clips ClipProducer
}

// produceClips skips the voice stage: the lip-synced clips carry their own
// audio, so no separate track is handed to assembly.
func (s *anchorStrategy) produceClips(ctx context.Context, u *updater, topic string, b band, script *models.VideoScript) ([]models.Clip, *services.SpeechResult, error) {
	if err := u.update(ctx, "clip-generation:"+topic, b.at(35), models.EventClips, "Generating talking anchor clips…", nil); err != nil {
		return nil, nil, err
	}
	clips, err := s.clips.GenerateAnchorClips(ctx, script.Voiceover)
	if err != nil {
		return nil, nil, err
	}
	labels := make([]string, len(clips))
	for i, c := range clips {
		labels[i] = fmt.Sprintf("Segment %d", c.Index+1)
	}
	if err := u.update(ctx, "clip-generation:"+topic, b.at(42), models.EventClips,
		fmt.Sprintf("Anchor clips ready (%d segments)", len(clips)), labels); err != nil {
		return nil, nil, err
	}

	return clips, nil, nil
}
