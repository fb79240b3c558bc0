// Package utils предоставляет вспомогательные функции для graceful shutdown.
//
// При получении SIGINT (Ctrl+C) или SIGTERM контекст отменяется; батч
// сохраняет уже накопленные результаты и завершается (поведение оригинала
// при прерывании длинной обработки).
package utils

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SetupGracefulShutdown устанавливает обработчик сигналов для graceful shutdown.
//
// Возвращает функцию которую следует вызвать через defer для освобождения ресурсов:
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer SetupGracefulShutdown(cancel)()
//
// При получении сигнала:
//  1. Логируется "Received signal, shutting down gracefully..."
//  2. Вызывается cancel() для отмены контекста
//  3. Все операции должны проверить ctx.Err() и завершиться
func SetupGracefulShutdown(cancel context.CancelFunc) func() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		Info("Received signal, shutting down gracefully", "signal", sig.String())
		cancel()
	}()

	return func() {
		// Закрываем логи (это всегда безопасно вызвать)
		Close()
	}
}
