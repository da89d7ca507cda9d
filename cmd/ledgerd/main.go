// Package main — точка входа сервиса реферального леджера.
// Загружает конфигурацию, инициализирует приложение и запускает HTTP-сервер
// вместе с планировщиком свипа. Поддерживает graceful shutdown по SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/referral-ledger/internal/app"
	"serotonyl.ru/referral-ledger/internal/config"
)

func main() {
	setupLogging()

	log.Info("=== Леджер запускается ===")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Не удалось загрузить конфигурацию")
	}

	level, err := log.ParseLevel(cfg.AppLogLevel)
	if err == nil {
		log.SetLevel(level)
	}
	if cfg.IsProduction() {
		log.SetFormatter(&log.JSONFormatter{})
	}

	// Контекст с отменой для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Не удалось инициализировать приложение")
	}
	defer application.Close()

	// Обрабатываем сигналы остановки (Ctrl+C, docker stop)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		log.Infof("Получен сигнал %s, останавливаемся...", sig)
		cancel()
	}()

	log.Info("=== Леджер готов к работе ===")

	if err := application.Run(ctx); err != nil {
		log.WithError(err).Error("Приложение завершилось с ошибкой")
	}

	log.Info("=== Леджер остановлен ===")
}

// setupLogging настраивает формат логов.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}
