package routing

import (
	"os"
	"sync"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/metrics"
	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"
)

// PersistentModel is a predictor whose state can be saved to and restored from a file.
type PersistentModel interface {
	SaveModel(path string) error
	LoadModel(path string) error
	Trained() bool
}

type watchedModel struct {
	name    string
	model   PersistentModel
	path    string
	modTime time.Time
}

// ModelReloader loads offline-trained model files and reloads them when they change on disk.
type ModelReloader struct {
	mu            sync.Mutex
	models        []*watchedModel
	cronScheduler *cron.Cron
	logger        hclog.Logger
	collector     *metrics.Collector
}

func NewModelReloader(logger hclog.Logger, collector *metrics.Collector) *ModelReloader {
	return &ModelReloader{
		cronScheduler: cron.New(),
		logger:        logger.Named("model-reloader"),
		collector:     collector,
	}
}

// Watch registers a model file. An empty path is ignored.
func (reloader *ModelReloader) Watch(name string, model PersistentModel, path string) {
	if path == "" {
		return
	}

	reloader.mu.Lock()
	defer reloader.mu.Unlock()

	reloader.models = append(reloader.models, &watchedModel{name: name, model: model, path: path})
	reloader.collector.SetModelTrained(name, model.Trained())
}

// ReloadIfChanged loads every watched file whose modification time moved since the last load.
// Failures keep the current model and are logged.
func (reloader *ModelReloader) ReloadIfChanged() int {
	reloader.mu.Lock()
	defer reloader.mu.Unlock()

	reloaded := 0
	for _, watched := range reloader.models {
		info, err := os.Stat(watched.path)
		if err != nil {
			if !os.IsNotExist(err) || !watched.modTime.IsZero() {
				reloader.logger.Warn("cannot stat model file", "model", watched.name, "path", watched.path, "error", err)
			}
			continue
		}
		if !info.ModTime().After(watched.modTime) {
			continue
		}

		if err := watched.model.LoadModel(watched.path); err != nil {
			reloader.logger.Error("model reload failed, keeping current model", "model", watched.name, "error", err)
			continue
		}
		watched.modTime = info.ModTime()
		reloader.collector.SetModelTrained(watched.name, watched.model.Trained())
		reloaded++
	}

	return reloaded
}

// Start loads the models once and then checks them on schedule, e.g. "@every 10m".
func (reloader *ModelReloader) Start(schedule string) error {
	reloader.ReloadIfChanged()

	if schedule == "" {
		return nil
	}
	if _, err := reloader.cronScheduler.AddFunc(schedule, func() { reloader.ReloadIfChanged() }); err != nil {
		return err
	}
	reloader.cronScheduler.Start()

	return nil
}

func (reloader *ModelReloader) Stop() {
	<-reloader.cronScheduler.Stop().Done()
}

// MarkTrained refreshes the trained gauge after an in-process training run.
func (reloader *ModelReloader) MarkTrained(name string, model PersistentModel) {
	reloader.collector.SetModelTrained(name, model.Trained())
}
