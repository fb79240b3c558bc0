package immich

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// EnsureTag идемпотентно гарантирует существование тега и возвращает его ID.
//
// Маленькая state machine {absent, exists}: сначала листинг тегов
// (с пагинацией), при отсутствии — создание. Повторный вызов для уже
// существующего тега — no-op, возвращающий тот же ID.
func (c *Client) EnsureTag(ctx context.Context, name string) (string, error) {
	page := 1
	for {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("size", strconv.Itoa(c.pageSize))

		var tags []Tag
		if err := c.doRequest(ctx, http.MethodGet, "/api/tags", params, nil, &tags); err != nil {
			return "", fmt.Errorf("list tags: %w", err)
		}

		for _, t := range tags {
			if t.Name == name {
				return t.ID, nil
			}
		}

		// Получили меньше полной страницы — тегов больше нет
		if len(tags) < c.pageSize {
			break
		}
		page++
	}

	var created Tag
	if err := c.doRequest(ctx, http.MethodPost, "/api/tags", nil,
		map[string]string{"name": name}, &created); err != nil {
		return "", fmt.Errorf("create tag %q: %w", name, err)
	}

	return created.ID, nil
}

// AddTagToAssets вешает тег на пачку ассетов одним вызовом.
//
// Идемпотентно: повторное навешивание существующего тега — no-op на
// стороне сервера, не ошибка.
func (c *Client) AddTagToAssets(ctx context.Context, tagID string, assetIDs []string) error {
	if len(assetIDs) == 0 {
		return nil
	}

	path := "/api/tags/" + tagID + "/assets"
	if err := c.doRequest(ctx, http.MethodPut, path, nil,
		map[string][]string{"ids": assetIDs}, nil); err != nil {
		return fmt.Errorf("tag %d assets: %w", len(assetIDs), err)
	}
	return nil
}

// AssetsByTag возвращает ВСЕ ассеты с указанным тегом.
//
// Использует search/metadata с пагинацией (прямого endpoint для
// ассетов тега у Immich нет). Порядок — как отдал сервер.
func (c *Client) AssetsByTag(ctx context.Context, tagID string) ([]Asset, error) {
	var all []Asset
	page := 1

	for {
		var resp searchResponse
		body := map[string]any{
			"tagIds": []string{tagID},
			"page":   page,
			"size":   c.pageSize,
		}
		if err := c.doRequest(ctx, http.MethodPost, "/api/search/metadata", nil, body, &resp); err != nil {
			return nil, fmt.Errorf("search assets by tag (page %d): %w", page, err)
		}

		items := resp.Assets.Items
		if len(items) == 0 {
			break
		}

		all = append(all, items...)

		if len(items) < c.pageSize {
			break
		}
		page++
	}

	return all, nil
}

// AssetIDByPath ищет asset ID по серверному originalPath.
//
// Возвращает пустую строку без ошибки если ассет не найден.
// Проверяет что найденный ассет действительно имеет запрошенный путь —
// search/metadata может вернуть частичные совпадения.
func (c *Client) AssetIDByPath(ctx context.Context, remotePath string) (string, error) {
	var resp searchResponse
	body := map[string]string{"originalPath": remotePath}
	if err := c.doRequest(ctx, http.MethodPost, "/api/search/metadata", nil, body, &resp); err != nil {
		return "", fmt.Errorf("search asset by path: %w", err)
	}

	if len(resp.Assets.Items) == 0 {
		return "", nil
	}

	asset := resp.Assets.Items[0]
	if asset.OriginalPath != remotePath {
		return "", nil
	}
	return asset.ID, nil
}
