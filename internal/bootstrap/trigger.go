// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-badge-engine/internal/config"
	"github.com/AccelByte/extend-badge-engine/pkg/activity"
	"github.com/AccelByte/extend-badge-engine/pkg/aggregate"
	"github.com/AccelByte/extend-badge-engine/pkg/badge"
	"github.com/AccelByte/extend-badge-engine/pkg/rule"
	"github.com/AccelByte/extend-badge-engine/pkg/trigger"
)

// InitCatalog seeds the badge repository from CATALOG_SEED_PATH, if the file
// exists, and wraps it in the snapshot cache used by the engine.
func InitCatalog(ctx context.Context, cfg *config.Config, badges badge.Repository, registry *rule.Registry) (*badge.CachedCatalog, error) {
	seed, err := badge.LoadSeed(cfg.CatalogSeedPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logrus.Warnf("no badge seed file at %s, starting with the stored catalog", cfg.CatalogSeedPath)
	case err != nil:
		return nil, fmt.Errorf("failed to load badge seed from %s: %w", cfg.CatalogSeedPath, err)
	default:
		if err := seed.Apply(ctx, badges, registry); err != nil {
			return nil, err
		}
	}

	return badge.NewCachedCatalog(badges, cfg.CatalogCacheTTL), nil
}

// InitTrigger wires the session commit trigger and the dispatcher that runs
// it off the request path, and returns the recorder that feeds them.
//
// ============================================================
// DEVELOPER: Add aggregate sources here.
// ============================================================
// A rule type may only read facts some aggregate.Source computes.
// Register extra sources on the accessor before it is handed to
// the trigger:
//
// accessor.Register(mySource)
// ============================================================
func InitTrigger(cfg *config.Config, storage *Storage, catalog badge.Catalog, evaluator *rule.Evaluator, metrics *trigger.Metrics) (*trigger.Dispatcher, *activity.Recorder) {
	accessor := aggregate.NewAccessor(aggregate.DefaultSources(storage.History)...)

	t := trigger.New(trigger.Dependencies{
		Catalog:   catalog,
		Accessor:  accessor,
		Evaluator: evaluator,
		Store:     storage.Assignments,
	}, trigger.Options{
		Timeout: cfg.EvaluationTimeout,
		Metrics: metrics,
	})

	dispatcher := trigger.NewDispatcher(t, cfg.DispatchWorkers, cfg.DispatchQueueSize, metrics)
	recorder := activity.NewRecorder(storage.Records, dispatcher)

	logrus.Infof("initialized badge trigger (workers: %d, queue: %d, timeout: %v)",
		cfg.DispatchWorkers, cfg.DispatchQueueSize, cfg.EvaluationTimeout)

	return dispatcher, recorder
}
