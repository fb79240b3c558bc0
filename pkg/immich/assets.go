package immich

import (
	"context"
	"fmt"
	"net/http"
)

// DeleteAssets удаляет ассеты на сервере (перемещает в корзину Immich).
//
// Вызывается операторским тулингом после того как миграция проверена
// по отчёту, либо mover-ом сразу после успешного move (opt-in).
func (c *Client) DeleteAssets(ctx context.Context, assetIDs []string) error {
	if len(assetIDs) == 0 {
		return nil
	}

	if err := c.doRequest(ctx, http.MethodDelete, "/api/assets", nil,
		map[string][]string{"ids": assetIDs}, nil); err != nil {
		return fmt.Errorf("delete %d assets: %w", len(assetIDs), err)
	}
	return nil
}

// DuplicateGroups возвращает группы дубликатов, обнаруженные сервером.
func (c *Client) DuplicateGroups(ctx context.Context) ([]DuplicateGroup, error) {
	var groups []DuplicateGroup
	if err := c.doRequest(ctx, http.MethodGet, "/api/duplicates", nil, nil, &groups); err != nil {
		return nil, fmt.Errorf("get duplicates: %w", err)
	}
	return groups, nil
}

// EmptyTrash очищает корзину Immich.
func (c *Client) EmptyTrash(ctx context.Context) error {
	if err := c.doRequest(ctx, http.MethodPost, "/api/trash/empty", nil, nil, nil); err != nil {
		return fmt.Errorf("empty trash: %w", err)
	}
	return nil
}

// Ping проверяет доступность сервера и валидность API ключа.
//
// Полезен для диагностики перед длинным батчем:
//   - 401 = невалидный ключ
//   - сетевые ошибки = сервер недоступен
func (c *Client) Ping(ctx context.Context) error {
	var resp struct {
		Res string `json:"res"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/server/ping", nil, nil, &resp); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if resp.Res != "pong" {
		return fmt.Errorf("unexpected ping response: %q", resp.Res)
	}
	return nil
}
