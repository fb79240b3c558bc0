// Package video — классификация видео через сэмплирование кадров.
//
// Кадры извлекаются внешним ffmpeg (декодирование видео в Go не
// оправдано для редкого батч-тулинга), каждый кадр классифицируется
// как обычное изображение, вердикт по видео — доля watercolor-кадров.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ilkoid/aquarel/pkg/classifier"
	"github.com/ilkoid/aquarel/pkg/config"
	"github.com/ilkoid/aquarel/pkg/utils"
)

// FrameResult — результат классификации одного кадра.
type FrameResult struct {
	FrameIndex   int
	TimestampSec float64
	Probs        map[string]float64
	IsWatercolor bool
}

// Result — агрегированный вердикт по видео.
type Result struct {
	IsWatercolor            bool
	Confidence              float64 // Средняя вероятность watercolor по всем кадрам
	PercentFrames           float64 // Доля watercolor-кадров
	ProcessedFrames         int
	PlannedFrames           int
	TotalVideoFrames        int
	DurationSec             float64
	WatercolorFrames        int
	AvgWatercolorConfidence float64
	Frames                  []FrameResult
}

// Processor сэмплирует и классифицирует кадры видео.
type Processor struct {
	engine *classifier.Engine
	cfg    config.VideoConfig
}

// New создает Processor. cfg прогоняется через GetDefaults.
func New(engine *classifier.Engine, cfg config.VideoConfig) *Processor {
	return &Processor{engine: engine, cfg: cfg.GetDefaults()}
}

// probeInfo — метаданные видеопотока из ffprobe.
type probeInfo struct {
	DurationSec float64
	FPS         float64
	TotalFrames int
}

// probe читает метаданные видео через ffprobe (JSON вывод).
func (p *Processor) probe(ctx context.Context, videoPath string) (probeInfo, error) {
	cmd := exec.CommandContext(ctx, p.cfg.FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=r_frame_rate,nb_frames,duration",
		"-of", "json",
		videoPath)

	out, err := cmd.Output()
	if err != nil {
		return probeInfo{}, fmt.Errorf("ffprobe %s: %w", videoPath, err)
	}

	var parsed struct {
		Streams []struct {
			RFrameRate string `json:"r_frame_rate"`
			NbFrames   string `json:"nb_frames"`
			Duration   string `json:"duration"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return probeInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(parsed.Streams) == 0 {
		return probeInfo{}, fmt.Errorf("no video stream in %s", videoPath)
	}

	s := parsed.Streams[0]
	info := probeInfo{
		FPS: parseFrameRate(s.RFrameRate),
	}
	info.DurationSec, _ = strconv.ParseFloat(s.Duration, 64)
	info.TotalFrames, _ = strconv.Atoi(s.NbFrames)

	// Некоторые контейнеры не пишут nb_frames, восстанавливаем из длительности
	if info.TotalFrames == 0 && info.FPS > 0 {
		info.TotalFrames = int(info.DurationSec * info.FPS)
	}

	return info, nil
}

// parseFrameRate парсит ffprobe формат "30000/1001" или "25/1".
func parseFrameRate(s string) float64 {
	parts := strings.SplitN(s, "/", 2)
	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0
	}
	if len(parts) == 1 {
		return num
	}
	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || den == 0 {
		return 0
	}
	return num / den
}

// extractFrame извлекает один кадр по таймкоду как JPEG байты.
func (p *Processor) extractFrame(ctx context.Context, videoPath string, tsSec float64) ([]byte, error) {
	cmd := exec.CommandContext(ctx, p.cfg.FFmpegPath,
		"-v", "error",
		"-ss", strconv.FormatFloat(tsSec, 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
		"-c:v", "mjpeg",
		"-f", "image2pipe",
		"pipe:1")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg extract at %.3fs: %w (%s)",
			tsSec, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame at %.3fs", tsSec)
	}
	return stdout.Bytes(), nil
}

// Process сэмплирует кадры видео и возвращает агрегированный вердикт.
//
// Алгоритм:
//  1. Интервал сэмплирования = fps * sample_interval_sec, но не реже
//     чем нужно для min_frames кадров на всё видео.
//  2. Каждый выбранный кадр классифицируется vision моделью.
//  3. Early stop: если кадров запланировано больше 100 и после 10%
//     уже набрана доля detection_threshold, остальное пропускается.
//  4. Вердикт: доля watercolor-кадров >= detection_threshold.
func (p *Processor) Process(ctx context.Context, videoPath string) (Result, error) {
	info, err := p.probe(ctx, videoPath)
	if err != nil {
		return Result{}, err
	}

	frameInterval := 1
	if info.FPS > 0 {
		frameInterval = int(info.FPS * p.cfg.SampleIntervalSec)
	}
	if info.TotalFrames > 0 {
		maxInterval := info.TotalFrames / p.cfg.MinFrames
		if maxInterval == 0 {
			maxInterval = 1
		}
		if frameInterval > maxInterval || frameInterval == 0 {
			frameInterval = maxInterval
		}
	}
	if frameInterval < 1 {
		frameInterval = 1
	}

	planned := 0
	if info.TotalFrames > 0 {
		planned = info.TotalFrames/frameInterval + 1
	}

	earlyStopAfter := 0
	if planned > 100 {
		earlyStopAfter = planned / 10
		utils.Debug("Early stop enabled", "video", videoPath, "check_after_frames", earlyStopAfter)
	}

	utils.Info("Processing video",
		"path", videoPath,
		"duration_sec", info.DurationSec,
		"fps", info.FPS,
		"planned_frames", planned)

	res := Result{
		PlannedFrames:    planned,
		TotalVideoFrames: info.TotalFrames,
		DurationSec:      info.DurationSec,
	}

	var probSum, wcProbSum float64

	for frameIdx := 0; frameIdx < info.TotalFrames; frameIdx += frameInterval {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		ts := 0.0
		if info.FPS > 0 {
			ts = float64(frameIdx) / info.FPS
		}

		jpegData, err := p.extractFrame(ctx, videoPath, ts)
		if err != nil {
			// Битый кадр в конце файла не должен валить всё видео
			utils.Warn("Frame extraction failed", "video", videoPath, "ts_sec", ts, "error", err)
			continue
		}

		probs, err := p.engine.Predict(ctx, jpegData)
		if err != nil {
			return res, fmt.Errorf("classify frame at %.3fs: %w", ts, err)
		}

		verdict := p.engine.Verdict(probs)
		res.Frames = append(res.Frames, FrameResult{
			FrameIndex:   frameIdx,
			TimestampSec: ts,
			Probs:        probs,
			IsWatercolor: verdict.IsWatercolor,
		})
		res.ProcessedFrames++
		probSum += verdict.Confidence
		if verdict.IsWatercolor {
			res.WatercolorFrames++
			wcProbSum += verdict.Confidence
		}

		if earlyStopAfter > 0 && res.ProcessedFrames == earlyStopAfter {
			percent := float64(res.WatercolorFrames) / float64(res.ProcessedFrames)
			if percent >= p.cfg.DetectionThreshold {
				utils.Info("Early stop triggered",
					"video", videoPath,
					"percent_watercolor", percent,
					"frames_processed", res.ProcessedFrames)
				break
			}
		}
	}

	if res.ProcessedFrames == 0 {
		return res, nil
	}

	res.Confidence = probSum / float64(res.ProcessedFrames)
	res.PercentFrames = float64(res.WatercolorFrames) / float64(res.ProcessedFrames)
	if res.WatercolorFrames > 0 {
		res.AvgWatercolorConfidence = wcProbSum / float64(res.WatercolorFrames)
	}
	res.IsWatercolor = res.PercentFrames >= p.cfg.DetectionThreshold

	return res, nil
}
