// Package llm — универсальный язык общения с vision моделями.
//
// Классификатор работает только через интерфейс Provider и не знает
// какой конкретно OpenAI-совместимый провайдер за ним стоит.
package llm

import "context"

// Роли сообщений.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message — одно сообщение диалога.
//
// Images — base64 data-uri или http ссылки; непустой список превращает
// запрос в Vision запрос (MultiContent на стороне адаптера).
type Message struct {
	Role    string
	Content string
	Images  []string
}

// Provider — адаптер конкретного API.
//
// Все долгие операции принимают context.Context; все ошибки
// возвращаются, никаких panic.
type Provider interface {
	// Generate выполняет один запрос к модели и возвращает её ответ.
	Generate(ctx context.Context, messages []Message) (Message, error)
}
