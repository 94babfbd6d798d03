// Package main (in api-subfolder) launches the watermark studio: HTTP API, export workers and session janitor
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/UnendingLoop/WatermarkStudio/internal/config"
	"github.com/UnendingLoop/WatermarkStudio/internal/exporter"
	"github.com/UnendingLoop/WatermarkStudio/internal/heic"
	"github.com/UnendingLoop/WatermarkStudio/internal/mwlogger"
	"github.com/UnendingLoop/WatermarkStudio/internal/service"
	"github.com/UnendingLoop/WatermarkStudio/internal/session"
	"github.com/UnendingLoop/WatermarkStudio/internal/storage"
	"github.com/UnendingLoop/WatermarkStudio/internal/transport"
	"github.com/UnendingLoop/WatermarkStudio/internal/video"
	"github.com/UnendingLoop/WatermarkStudio/internal/worker"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"
)

func main() {
	// инициализировать конфиг/ считать энвы
	appConfig, err := config.Load("./.env")
	if err != nil {
		log.Fatalf("Failed to load config: %s\nExiting app...", err)
	}

	// стартуем логгер
	zlog.InitConsole()
	if err := zlog.SetLevel(appConfig.LogLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	// готовим заранее слушатель прерываний - контекст для всего приложения
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// хранилище и сессии живут только в памяти процесса
	strg := storage.NewBlobStorage(appConfig.MaxStorageMB)
	sessions := session.NewStore()
	queue := worker.NewQueue(appConfig.ExportQueueSize)

	// внешние утилиты
	vp := video.NewProcessor(appConfig.FFmpegPath, appConfig.FFprobePath, appConfig.VideoFPSFallback)
	conv := heic.NewConverter(appConfig.MagickPath)

	// создаем экземпляр сервиса
	svc := service.NewStudioService(sessions, strg, queue, conv, vp, service.Options{
		PreviewMaxWidth:  appConfig.PreviewMaxWidth,
		PreviewMaxHeight: appConfig.PreviewMaxHeight,
	})
	var apiSvc StudioAPIService = svc

	// воркеры экспорта
	exp := exporter.NewExporter(strg, vp, appConfig.JPEGQuality, appConfig.VideoWorkers)
	var wg sync.WaitGroup
	for i := 0; i < appConfig.ExportWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.NewWorkerInstance(svc, exp, queue.Jobs()).StartWorker(ctx)
		}()
	}

	// cоздаем экземпляр хендлера HTTP
	handlers := transport.NewStudioHandler(apiSvc, appConfig.MaxUploadMB)
	// сетапим сервер
	engine := ginext.New(appConfig.GinMode)

	engine.GET("/ping", handlers.SimplePinger)
	engine.POST("/sessions", handlers.CreateSession)                  // новая сессия
	engine.GET("/sessions/:id", handlers.GetSession)                  // состояние сессии
	engine.DELETE("/sessions/:id", handlers.CloseSession)             // закрыть сессию, отменить экспорт
	engine.POST("/sessions/:id/items", handlers.AddItems)             // загрузить исходники
	engine.GET("/sessions/:id/items", handlers.ListItems)             // список исходников
	engine.DELETE("/sessions/:id/items/:index", handlers.RemoveItem)  // убрать исходник
	engine.POST("/sessions/:id/watermark", handlers.SetWatermark)     // свой ватермарк
	engine.DELETE("/sessions/:id/watermark", handlers.ResetWatermark) // вернуть дефолтный
	engine.GET("/sessions/:id/params", handlers.GetParams)            // параметры размещения
	engine.PUT("/sessions/:id/params", handlers.UpdateParams)         // частичное обновление
	engine.GET("/sessions/:id/preview", handlers.Preview)             // PNG превью
	engine.POST("/sessions/:id/export", handlers.StartExport)         // запуск экспорта
	engine.GET("/sessions/:id/export", handlers.ExportStatus)         // прогресс
	engine.GET("/sessions/:id/export/archive", handlers.LoadArchive)  // скачать zip

	srv := &http.Server{
		Addr:              ":" + appConfig.Port,
		Handler:           mwlogger.NewMWLogger(engine),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Server launch
	go func() {
		log.Printf("Server running on http://localhost%s\n", srv.Addr)
		err := srv.ListenAndServe()
		if err != nil {
			switch {
			case errors.Is(err, http.ErrServerClosed):
				log.Println("Server gracefully stopping...")
			default:
				log.Printf("Server stopped: %v", err)
				stop()
			}
		}
	}()

	// запускаем фонового уборщика брошенных сессий
	go janitorLoop(ctx, apiSvc, appConfig.SessionTTL, appConfig.JanitorInterval)

	// ждем отмены контекста для запуска грейсфул остановки
	<-ctx.Done()

	shutdown(srv, &wg)
	log.Println("Exiting app...")
}

func janitorLoop(ctx context.Context, svc StudioAPIService, ttl, every time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			log.Println("Janitor loop crashed:", r)
		}
	}()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.ExpireIdle(context.Background(), ttl)
		}
	}
}

func shutdown(srv *http.Server, wg *sync.WaitGroup) {
	log.Println("Interrupt received!!! Starting shutdown sequence...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Println("Failed to shutdown HTTP-server correctly:", err)
	}
	log.Println("HTTP-server stopped.")

	// воркеры видят отмену общего контекста и прерывают текущий экспорт
	wg.Wait()
	log.Println("Export workers stopped.")
}
