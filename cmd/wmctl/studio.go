package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/UnendingLoop/WatermarkStudio/internal/config"
	"github.com/UnendingLoop/WatermarkStudio/internal/exporter"
	"github.com/UnendingLoop/WatermarkStudio/internal/heic"
	"github.com/UnendingLoop/WatermarkStudio/internal/model"
	"github.com/UnendingLoop/WatermarkStudio/internal/service"
	"github.com/UnendingLoop/WatermarkStudio/internal/session"
	"github.com/UnendingLoop/WatermarkStudio/internal/storage"
	"github.com/UnendingLoop/WatermarkStudio/internal/video"
	"github.com/UnendingLoop/WatermarkStudio/internal/worker"
	"gopkg.in/yaml.v3"
)

// studio - локальный экземпляр сервиса с одним воркером экспорта
type studio struct {
	svc   *service.StudioService
	queue *worker.Queue
	done  chan struct{}
}

func startStudio(ctx context.Context, cfg *config.AppConfig) *studio {
	strg := storage.NewBlobStorage(cfg.MaxStorageMB)
	queue := worker.NewQueue(1)
	vp := video.NewProcessor(cfg.FFmpegPath, cfg.FFprobePath, cfg.VideoFPSFallback)

	svc := service.NewStudioService(session.NewStore(), strg, queue, heic.NewConverter(cfg.MagickPath), vp, service.Options{
		PreviewMaxWidth:  cfg.PreviewMaxWidth,
		PreviewMaxHeight: cfg.PreviewMaxHeight,
	})

	st := &studio{svc: svc, queue: queue, done: make(chan struct{})}
	exp := exporter.NewExporter(strg, vp, cfg.JPEGQuality, cfg.VideoWorkers)
	go func() {
		defer close(st.done)
		worker.NewWorkerInstance(svc, exp, queue.Jobs()).StartWorker(ctx)
	}()
	return st
}

func (s *studio) stop() {
	s.queue.Close()
	<-s.done
}

// prepare creates a session and applies the watermark file and the params patch if given.
func (s *studio) prepare(ctx context.Context, markPath string, patch *model.ParamsPatch) (string, error) {
	info, err := s.svc.CreateSession(ctx)
	if err != nil {
		return "", err
	}
	id := info.ID.String()

	if markPath != "" {
		f, err := readUpload(markPath)
		if err != nil {
			return "", err
		}
		if _, err := s.svc.SetWatermark(ctx, id, f); err != nil {
			return "", fmt.Errorf("watermark %s: %w", markPath, err)
		}
	}
	if patch != nil {
		if _, err := s.svc.UpdateParams(ctx, id, *patch); err != nil {
			return "", fmt.Errorf("params: %w", err)
		}
	}
	return id, nil
}

// readUpload - тип не заполняем, сервис определит его по расширению
func readUpload(path string) (model.UploadFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.UploadFile{}, err
	}
	return model.UploadFile{Name: filepath.Base(path), Data: data}, nil
}

// loadParams reads a YAML params file. Missing keys keep their current values.
func loadParams(path string) (*model.ParamsPatch, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var patch model.ParamsPatch
	if err := yaml.Unmarshal(raw, &patch); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &patch, nil
}
