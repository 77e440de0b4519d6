package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/relay-router/internal/model"
	"github.com/dgraph-io/badger/v4"
	"github.com/hashicorp/go-hclog"
)

// BadgerMirror keeps node snapshots in an embedded store with per-entry TTL, so a restarted
// process can answer lookups for nodes that reported shortly before it went down.
type BadgerMirror struct {
	db *badger.DB
}

// OpenBadgerMirror opens the store at dir. An empty dir keeps everything in memory.
func OpenBadgerMirror(dir string, logger hclog.Logger) (*BadgerMirror, error) {
	options := badger.DefaultOptions(dir).WithLogger(&badgerLogger{logger: logger.Named("badger")})
	if dir == "" {
		options = options.WithInMemory(true)
	}

	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", dir, err)
	}

	return &BadgerMirror{db: db}, nil
}

func (mirror *BadgerMirror) Put(ctx context.Context, nodeMetrics model.NodeMetrics, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(nodeMetrics)
	if err != nil {
		return err
	}

	return mirror.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(metricsKey(nodeMetrics.NodeId)), value).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
}

func (mirror *BadgerMirror) Get(ctx context.Context, nodeId string) (model.NodeMetrics, error) {
	if err := ctx.Err(); err != nil {
		return model.NodeMetrics{}, err
	}

	var nodeMetrics model.NodeMetrics
	err := mirror.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metricsKey(nodeId)))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &nodeMetrics)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return model.NodeMetrics{}, ErrNodeNotFound
	}
	if err != nil {
		return model.NodeMetrics{}, err
	}

	return nodeMetrics, nil
}

func (mirror *BadgerMirror) Close() error {
	return mirror.db.Close()
}

// badgerLogger routes badger's internal logging into hclog.
type badgerLogger struct {
	logger hclog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace(fmt.Sprintf(format, args...))
}
