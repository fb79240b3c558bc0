package immich

// Asset — ассет как его отдаёт Immich search/metadata.
type Asset struct {
	ID           string    `json:"id"`
	OriginalPath string    `json:"originalPath"`
	ExifInfo     *ExifInfo `json:"exifInfo,omitempty"`
}

// ExifInfo — подмножество exif-метаданных, нужное dedup-воркфлоу.
type ExifInfo struct {
	FileSizeInByte int64 `json:"fileSizeInByte"`
}

// Tag — тег Immich.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DuplicateGroup — группа дубликатов, найденная сервером.
type DuplicateGroup struct {
	DuplicateID string  `json:"duplicateId"`
	Assets      []Asset `json:"assets"`
}

// searchResponse — обёртка ответа POST /api/search/metadata.
type searchResponse struct {
	Assets struct {
		Items []Asset `json:"items"`
	} `json:"assets"`
}
