package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// ---------------------------------------------------------------------------
// FFmpegService — media assembly
// Downloads the generated clips, concatenates them with a stream copy,
// optionally muxes a separate voiceover track, optionally burns in a headline
// overlay, and extracts a thumbnail frame. Everything happens in a scoped
// scratch directory that is removed when assembly returns.
// ---------------------------------------------------------------------------

const clipDownloadTimeout = 120 * time.Second

type FFmpegService struct {
	tempDir string
}

func NewFFmpegService(tempDir string) *FFmpegService {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		panic(fmt.Sprintf("failed to create temp dir: %v", err))
	}
	return &FFmpegService{tempDir: tempDir}
}

// AssembleOptions carries the optional assembly inputs. Voiceover is a
// complete audio file (scene mode); anchor-mode clips arrive with audio
// embedded and leave it nil.
type AssembleOptions struct {
	OverlayText     string
	Voiceover       []byte
	VoiceoverFormat string // file extension, defaults to "mp3"
}

// AssembledMedia is the final output pair plus the measured duration.
type AssembledMedia struct {
	Video           []byte
	Thumbnail       []byte
	DurationSeconds int
}

// Assemble turns an ordered clip URL list into a final video and thumbnail.
// Any single download failing fails the whole assembly; a missing clip would
// desynchronize narration from visuals.
func (s *FFmpegService) Assemble(ctx context.Context, clipURLs []string, opts AssembleOptions) (*AssembledMedia, error) {
	if len(clipURLs) == 0 {
		return nil, fmt.Errorf("no clips to assemble")
	}

	tmp, err := os.MkdirTemp(s.tempDir, "walter-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	clipPaths, err := s.downloadClips(ctx, clipURLs, tmp)
	if err != nil {
		return nil, err
	}

	concatenated := filepath.Join(tmp, "concat.mp4")
	if err := s.concatClips(ctx, clipPaths, tmp, concatenated); err != nil {
		return nil, err
	}

	voiced := concatenated
	if len(opts.Voiceover) > 0 {
		voiced = filepath.Join(tmp, "voiced.mp4")
		if err := s.muxVoiceover(ctx, concatenated, opts, tmp, voiced); err != nil {
			return nil, err
		}
	}

	final := voiced
	if opts.OverlayText != "" {
		final = filepath.Join(tmp, "final.mp4")
		if err := s.burnOverlay(ctx, voiced, opts.OverlayText, final); err != nil {
			return nil, err
		}
	}

	thumbPath := filepath.Join(tmp, "thumb.png")
	if err := s.runFFmpeg(ctx, "-y", "-i", final, "-vframes", "1", "-q:v", "2", thumbPath); err != nil {
		return nil, fmt.Errorf("thumbnail extraction failed: %w", err)
	}

	durationSec, err := s.videoDurationSeconds(ctx, final)
	if err != nil {
		log.Printf("[FFmpeg] Duration probe failed, recording 0: %v", err)
		durationSec = 0
	}

	video, err := os.ReadFile(final)
	if err != nil {
		return nil, fmt.Errorf("failed to read final video: %w", err)
	}
	thumbnail, err := os.ReadFile(thumbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read thumbnail: %w", err)
	}

	log.Printf("[FFmpeg] Assembled %d clips into %d bytes (%ds, overlay=%v, voiceover=%v)",
		len(clipURLs), len(video), durationSec, opts.OverlayText != "", len(opts.Voiceover) > 0)

	return &AssembledMedia{Video: video, Thumbnail: thumbnail, DurationSeconds: durationSec}, nil
}

// downloadClips fetches every clip in parallel, preserving input order in the
// returned paths. The first failure cancels the rest.
func (s *FFmpegService) downloadClips(ctx context.Context, clipURLs []string, tmp string) ([]string, error) {
	clipPaths := make([]string, len(clipURLs))
	client := &http.Client{Timeout: clipDownloadTimeout}

	g, gctx := errgroup.WithContext(ctx)
	for i, url := range clipURLs {
		i, url := i, url
		clipPaths[i] = filepath.Join(tmp, fmt.Sprintf("clip-%d.mp4", i))
		g.Go(func() error {
			return downloadToFile(gctx, client, url, clipPaths[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("clip download failed: %w", err)
	}
	return clipPaths, nil
}

func downloadToFile(ctx context.Context, client *http.Client, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s (status %d)", url, resp.StatusCode)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("failed to write %s: %w", destPath, err)
	}
	return nil
}

// concatClips joins clips with the concat demuxer and a stream copy. All
// clips share codec parameters by construction, so no re-encode is needed.
func (s *FFmpegService) concatClips(ctx context.Context, clipPaths []string, tmp, outPath string) error {
	listFile := filepath.Join(tmp, "concat.txt")
	if err := os.WriteFile(listFile, []byte(concatListFile(clipPaths)), 0644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}

	if err := s.runFFmpeg(ctx, "-y", "-f", "concat", "-safe", "0", "-i", listFile, "-c", "copy", outPath); err != nil {
		return fmt.Errorf("clip concatenation failed: %w", err)
	}
	return nil
}

// concatListFile renders the demuxer list. Single quotes in paths use the
// close-escape-reopen sequence the demuxer expects.
func concatListFile(clipPaths []string) string {
	lines := make([]string, len(clipPaths))
	for i, p := range clipPaths {
		lines[i] = fmt.Sprintf("file '%s'", strings.ReplaceAll(p, "'", `'\''`))
	}
	return strings.Join(lines, "\n")
}

// muxVoiceover lays the narration over the concatenated video as the sole
// audio stream. -shortest trims to the shorter input so the output never runs
// silent-then-frozen or carries audio past the last frame.
func (s *FFmpegService) muxVoiceover(ctx context.Context, videoPath string, opts AssembleOptions, tmp, outPath string) error {
	format := opts.VoiceoverFormat
	if format == "" {
		format = "mp3"
	}
	audioPath := filepath.Join(tmp, "voiceover."+format)
	if err := os.WriteFile(audioPath, opts.Voiceover, 0644); err != nil {
		return fmt.Errorf("failed to write voiceover: %w", err)
	}

	err := s.runFFmpeg(ctx,
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("voiceover mux failed: %w", err)
	}
	return nil
}

// burnOverlay draws the headline in the top-left corner on a translucent box.
func (s *FFmpegService) burnOverlay(ctx context.Context, videoPath, overlayText, outPath string) error {
	filter := fmt.Sprintf("drawtext=text='%s':x=54:y=70:fontsize=42:fontcolor=white:box=1:boxcolor=black@0.55:boxborderw=18",
		escapeDrawtext(overlayText))

	err := s.runFFmpeg(ctx,
		"-y",
		"-i", videoPath,
		"-vf", filter,
		"-c:a", "copy",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("overlay burn-in failed: %w", err)
	}
	return nil
}

// escapeDrawtext escapes the characters the drawtext filter treats specially.
// Colons delimit filter options and quotes end the text argument.
func escapeDrawtext(text string) string {
	text = strings.ReplaceAll(text, `\`, `\\`)
	text = strings.ReplaceAll(text, ":", `\:`)
	text = strings.ReplaceAll(text, "'", `\'`)
	return text
}

// videoDurationSeconds probes the container duration, rounded down.
func (s *FFmpegService) videoDurationSeconds(ctx context.Context, videoPath string) (int, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return int(seconds), nil
}

// runFFmpeg executes ffmpeg with the given args, keeping the stderr tail for
// error reporting.
func (s *FFmpegService) runFFmpeg(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		tail := stderr.String()
		if len(tail) > 2000 {
			tail = tail[len(tail)-2000:]
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, tail)
	}
	return nil
}
