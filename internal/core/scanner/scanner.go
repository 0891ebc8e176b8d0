// Package scanner periodically sweeps each layer for promotion candidates.
// It runs beside ingestion, never in its path: a scan pass only reads
// candidates and applies compare-and-swap updates, skipping anything that
// changed underneath it.
package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/strata/internal/audit"
	"github.com/agenthands/strata/internal/config"
	"github.com/agenthands/strata/internal/core/confidence"
	"github.com/agenthands/strata/internal/core/layers"
	"github.com/agenthands/strata/internal/core/model"
	"github.com/agenthands/strata/internal/core/reasoning"
	"github.com/agenthands/strata/internal/driver"
)

type Scanner struct {
	store   driver.GraphStore
	machine *layers.Machine
	engine  *reasoning.Engine
	sink    *audit.Sink
	cfg     config.ScannerConfig
	logger  *zap.Logger
	now     func() time.Time
}

func New(store driver.GraphStore, machine *layers.Machine, engine *reasoning.Engine, sink *audit.Sink, cfg config.ScannerConfig, logger *zap.Logger) *Scanner {
	return &Scanner{
		store:   store,
		machine: machine,
		engine:  engine,
		sink:    sink,
		cfg:     cfg,
		logger:  logger.Named("scanner"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// BatchSize returns the configured per-pass candidate limit.
func (s *Scanner) BatchSize() int { return s.cfg.BatchSize }

// Run ticks until the context is cancelled. Each tick sweeps every layer
// below the top.
func (s *Scanner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("promotion scanner started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("promotion scanner stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scanner) sweep(ctx context.Context) {
	for layer := model.LayerPerception; layer < model.LayerApplication; layer++ {
		summary, err := s.Scan(ctx, layer, s.cfg.BatchSize)
		if err != nil {
			s.logger.Error("entity scan failed", zap.String("layer", layer.String()), zap.Error(err))
			continue
		}
		relSummary, err := s.ScanRelationships(ctx, layer, s.cfg.BatchSize)
		if err != nil {
			s.logger.Error("relationship scan failed", zap.String("layer", layer.String()), zap.Error(err))
			continue
		}
		if summary.Attempted+relSummary.Attempted > 0 {
			s.logger.Info("scan pass complete",
				zap.String("layer", layer.String()),
				zap.Int("entities_attempted", summary.Attempted),
				zap.Int("entities_promoted", summary.Promoted),
				zap.Int("relationships_promoted", relSummary.Promoted),
				zap.Int("skipped", summary.Skipped+relSummary.Skipped))
		}
	}
}

// Scan evaluates promotion for entities at one layer. The store query is a
// cheap confidence pre-filter; the state machine runs the full guard set.
// Entities that change under the scan lose their turn (Skipped) and are
// picked up on the next pass.
func (s *Scanner) Scan(ctx context.Context, layer model.Layer, batchSize int) (model.ScanSummary, error) {
	var summary model.ScanSummary

	next, ok := layer.Next()
	if !ok {
		return summary, nil
	}

	records, err := s.store.Query(ctx, driver.GetPromotionCandidatesQuery, map[string]interface{}{
		"layer":          layer.String(),
		"min_confidence": s.machine.Threshold(next),
		"limit":          int64(batchSize),
	})
	if err != nil {
		return summary, fmt.Errorf("failed to fetch promotion candidates: %w", err)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		entity, err := driver.EntityFromRecord(rec)
		if err != nil {
			s.logger.Warn("skipping unreadable candidate", zap.Error(err))
			continue
		}
		summary.Attempted++

		if skipped := s.refreshConfidence(ctx, entity); skipped {
			summary.Skipped++
			continue
		}

		result := s.machine.AttemptPromotion(entity)
		if !result.Promoted {
			summary.Blocked++
			continue
		}

		patch := map[string]interface{}{
			"layer":      entity.Layer.String(),
			"updated_at": s.now().Format(time.RFC3339Nano),
		}
		if err := s.store.UpdateProperties(ctx, entity.ID, patch, entity.Version); err != nil {
			if errors.Is(err, driver.ErrConflict) {
				summary.Skipped++
				continue
			}
			return summary, fmt.Errorf("failed to persist promotion of %s: %w", entity.ID, err)
		}

		if err := s.sink.Append(result.Record); err != nil {
			s.logger.Error("failed to audit promotion",
				zap.String("entity", entity.ID), zap.Error(err))
		}
		summary.Promoted++
	}
	return summary, nil
}

// refreshConfidence runs the periodic-scan rules (staleness decay) and
// persists the result under CAS. Returns true when a concurrent write means
// this candidate should be skipped.
func (s *Scanner) refreshConfidence(ctx context.Context, entity *model.Entity) bool {
	res := s.engine.Run(reasoning.OpPeriodicScan, &reasoning.Context{
		Entity: entity,
		Now:    s.now(),
	})
	combined, ok, err := reasoning.Combine(res, confidence.StrategyMin)
	if err != nil || !ok || combined >= entity.Confidence.Score {
		return false
	}

	updated, err := entity.Confidence.Update(combined, "periodic_scan", confidence.StrategyMin, s.now())
	if err != nil {
		s.logger.Warn("confidence refresh failed", zap.String("entity", entity.ID), zap.Error(err))
		return false
	}

	evidence, err := json.Marshal(updated.Evidence)
	if err != nil {
		s.logger.Warn("confidence refresh failed", zap.String("entity", entity.ID), zap.Error(err))
		return false
	}
	patch := map[string]interface{}{
		"confidence": updated.Score,
		"evidence":   string(evidence),
		"updated_at": s.now().Format(time.RFC3339Nano),
	}

	if err := s.store.UpdateProperties(ctx, entity.ID, patch, entity.Version); err != nil {
		if errors.Is(err, driver.ErrConflict) {
			return true
		}
		s.logger.Warn("confidence refresh failed", zap.String("entity", entity.ID), zap.Error(err))
		return false
	}
	entity.Confidence = updated
	entity.Version++
	return false
}

// ScanRelationships evaluates promotion for edges at one layer, honoring the
// endpoint layer ceiling.
func (s *Scanner) ScanRelationships(ctx context.Context, layer model.Layer, batchSize int) (model.ScanSummary, error) {
	var summary model.ScanSummary

	next, ok := layer.Next()
	if !ok {
		return summary, nil
	}

	records, err := s.store.Query(ctx, driver.GetRelationshipCandidatesQuery, map[string]interface{}{
		"layer":          layer.String(),
		"min_confidence": s.machine.Threshold(next),
		"limit":          int64(batchSize),
	})
	if err != nil {
		return summary, fmt.Errorf("failed to fetch relationship candidates: %w", err)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		rel, err := driver.RelationshipFromRecord(rec)
		if err != nil {
			s.logger.Warn("skipping unreadable candidate", zap.Error(err))
			continue
		}
		sourceLayer, okS := model.ParseLayer(asString(rec["source_layer"]))
		targetLayer, okT := model.ParseLayer(asString(rec["target_layer"]))
		if !okS || !okT {
			s.logger.Warn("skipping edge with unreadable endpoint layers", zap.String("id", rel.ID))
			continue
		}
		summary.Attempted++

		result := s.machine.AttemptRelationshipPromotion(rel, sourceLayer, targetLayer)
		if !result.Promoted {
			summary.Blocked++
			continue
		}

		patch := map[string]interface{}{"layer": rel.Layer.String()}
		if err := s.store.UpdateProperties(ctx, rel.ID, patch, rel.Version); err != nil {
			if errors.Is(err, driver.ErrConflict) {
				summary.Skipped++
				continue
			}
			return summary, fmt.Errorf("failed to persist promotion of edge %s: %w", rel.ID, err)
		}

		if err := s.sink.Append(result.Record); err != nil {
			s.logger.Error("failed to audit promotion",
				zap.String("relationship", rel.ID), zap.Error(err))
		}
		summary.Promoted++
	}
	return summary, nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}
