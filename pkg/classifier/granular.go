package classifier

// Зонтичные и гранулярные теги для Immich.
const (
	TagPainting = "Painting"
)

// GranularTag возвращает гранулярный тег по уверенности watercolor.
//
// Шкала покрывает диапазон [0.35, 1.0]; ниже 0.35 тег не присваивается
// (пустая строка). Гранулярные теги позволяют оператору ревьюить
// пограничные случаи отдельно от уверенных.
func GranularTag(confidence float64) string {
	switch {
	case confidence >= 0.85:
		return "Watercolor85"
	case confidence >= 0.75:
		return "Watercolor75"
	case confidence >= 0.65:
		return "Watercolor65"
	case confidence >= 0.55:
		return "Watercolor55"
	case confidence >= 0.45:
		return "Watercolor45"
	case confidence >= 0.35:
		return "Watercolor35"
	default:
		return ""
	}
}

// TagsFor возвращает полный набор тегов для результата классификации:
// основной тег (если watercolor), гранулярный тег по уверенности и
// зонтичный "Painting" если топ-метка — любой вид живописи.
func TagsFor(c Classification, mainTag string) []string {
	var tags []string

	if c.IsWatercolor && mainTag != "" {
		tags = append(tags, mainTag)
	}

	if g := GranularTag(c.Confidence); g != "" {
		tags = append(tags, g)
	}

	if IsPaintingLabel(c.TopLabel) {
		tags = append(tags, TagPainting)
	}

	return tags
}
