// Package classifier выполняет классификацию изображений по стилю
// через vision модель.
//
// Модель получает изображение и закрытый набор меток, возвращает
// JSON с вероятностью каждой метки. Engine поверх вероятностей
// реализует обычный и строгий (multi-condition) вердикты watercolor.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ilkoid/aquarel/pkg/config"
	"github.com/ilkoid/aquarel/pkg/llm"
	"github.com/ilkoid/aquarel/pkg/utils"
)

// Закрытый набор меток. Watercolor — целевая.
const (
	LabelWatercolor   = "a watercolor painting"
	LabelOil          = "an oil painting"
	LabelPencilSketch = "a pencil sketch"
	LabelPhotograph   = "a photograph"
	LabelDigitalArt   = "digital art"
	LabelAcrylic      = "an acrylic painting"
	LabelVector       = "a vector illustration"
	LabelBWPhoto      = "a black and white photo"
)

// Labels — все метки в фиксированном порядке (для промпта и отчётов).
var Labels = []string{
	LabelWatercolor,
	LabelOil,
	LabelPencilSketch,
	LabelPhotograph,
	LabelDigitalArt,
	LabelAcrylic,
	LabelVector,
	LabelBWPhoto,
}

// paintingLabels — метки, попадающие под зонтичный тег "Painting".
var paintingLabels = map[string]bool{
	LabelWatercolor: true,
	LabelOil:        true,
	LabelAcrylic:    true,
}

// Classification — результат классификации одного изображения.
type Classification struct {
	IsWatercolor bool
	Confidence   float64 // Вероятность watercolor метки
	TopLabel     string
	Probs        map[string]float64
}

// Engine выполняет классификацию через vision модель.
type Engine struct {
	provider llm.Provider
	cfg      config.ClassifierConfig
	imgCfg   config.ImageProcConfig
}

// New создает Engine.
//
// cfg прогоняется через GetDefaults: нулевой threshold означает 0.85.
func New(provider llm.Provider, cfg config.ClassifierConfig, imgCfg config.ImageProcConfig) *Engine {
	return &Engine{provider: provider, cfg: cfg.GetDefaults(), imgCfg: imgCfg}
}

// Predict возвращает вероятности всех меток для изображения.
//
// Изображение ресайзится до imgCfg.MaxWidth и уходит в модель как
// base64 data-uri. Ответ модели — JSON объект метка → вероятность;
// отсутствующие метки считаются нулевыми, значения нормализуются
// чтобы сумма была 1 (модели не всегда аккуратны с softmax).
func (e *Engine) Predict(ctx context.Context, imageData []byte) (map[string]float64, error) {
	jpegData, err := utils.ResizeImage(imageData, e.imgCfg.MaxWidth, e.quality())
	if err != nil {
		return nil, fmt.Errorf("prepare image: %w", err)
	}

	resp, err := e.provider.Generate(ctx, []llm.Message{
		{
			Role:    llm.RoleSystem,
			Content: e.systemPrompt(),
		},
		{
			Role:    llm.RoleUser,
			Content: "Classify this image.",
			Images:  []string{utils.ImageDataURL(jpegData)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vision request: %w", err)
	}

	probs, err := parseProbs(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("parse model response: %w", err)
	}

	return probs, nil
}

// Classify — полный вердикт для изображения: Predict + пороги.
func (e *Engine) Classify(ctx context.Context, imageData []byte) (Classification, error) {
	probs, err := e.Predict(ctx, imageData)
	if err != nil {
		return Classification{}, err
	}
	return e.Verdict(probs), nil
}

// Verdict строит Classification из готовых вероятностей.
// Чистая функция — используется и для кадров видео.
func (e *Engine) Verdict(probs map[string]float64) Classification {
	top := topLabel(probs)
	wcProb := probs[LabelWatercolor]

	var isWC bool
	if e.cfg.StrictMode {
		isWC = e.isWatercolorStrict(probs)
	} else {
		isWC = wcProb > e.cfg.Threshold && top == LabelWatercolor
	}

	return Classification{
		IsWatercolor: isWC,
		Confidence:   wcProb,
		TopLabel:     top,
		Probs:        probs,
	}
}

// isWatercolorStrict — строгая мультиусловная проверка для минимизации
// ложных срабатываний:
//  1. watercolor должна быть топ-меткой
//  2. вероятность выше порога
//  3. отрыв от второго места не меньше MinMargin
//  4. photograph и digital art ниже своих потолков
func (e *Engine) isWatercolorStrict(probs map[string]float64) bool {
	if topLabel(probs) != LabelWatercolor {
		return false
	}

	wcProb := probs[LabelWatercolor]
	if wcProb < e.cfg.Threshold {
		return false
	}

	sorted := make([]float64, 0, len(probs))
	for _, p := range probs {
		sorted = append(sorted, p)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	if len(sorted) > 1 && sorted[0]-sorted[1] < e.cfg.MinMargin {
		return false
	}

	if probs[LabelPhotograph] > e.cfg.MaxPhotoProb {
		return false
	}
	if probs[LabelDigitalArt] > e.cfg.MaxDigitalProb {
		return false
	}

	return true
}

// IsPaintingLabel сообщает попадает ли метка под зонтичный тег "Painting".
func IsPaintingLabel(label string) bool {
	return paintingLabels[label]
}

// quality возвращает JPEG качество с дефолтом 85.
func (e *Engine) quality() int {
	if e.imgCfg.Quality == 0 {
		return 85
	}
	return e.imgCfg.Quality
}

// systemPrompt — инструкция модели вернуть вероятности как JSON.
func (e *Engine) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are an art style classifier. ")
	b.WriteString("Estimate the probability that the image belongs to each of the following categories. ")
	b.WriteString("Respond with a single JSON object mapping every category to a probability in [0,1]; probabilities must sum to 1. ")
	b.WriteString("No explanations, JSON only. Categories: ")
	b.WriteString(strings.Join(Labels, "; "))
	return b.String()
}

// parseProbs извлекает и нормализует вероятности из ответа модели.
func parseProbs(content string) (map[string]float64, error) {
	cleaned := utils.CleanJsonBlock(content)
	if !strings.HasPrefix(cleaned, "{") {
		cleaned = utils.ExtractJSON(cleaned)
	}
	if cleaned == "" {
		return nil, fmt.Errorf("no json object in response")
	}

	var raw map[string]float64
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal probabilities: %w", err)
	}

	// Оставляем только известные метки, остальное — шум модели
	probs := make(map[string]float64, len(Labels))
	sum := 0.0
	for _, label := range Labels {
		p := raw[label]
		if p < 0 {
			p = 0
		}
		probs[label] = p
		sum += p
	}

	if sum <= 0 {
		return nil, fmt.Errorf("model returned no known labels")
	}

	// Нормализация: сумма должна быть 1
	for label := range probs {
		probs[label] /= sum
	}

	return probs, nil
}

// topLabel возвращает метку с максимальной вероятностью.
// При равенстве выигрывает более ранняя метка из Labels (детерминизм).
func topLabel(probs map[string]float64) string {
	best := ""
	bestProb := -1.0
	for _, label := range Labels {
		if probs[label] > bestProb {
			best = label
			bestProb = probs[label]
		}
	}
	return best
}
