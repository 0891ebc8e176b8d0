// Package core wires resolution, the canonical registry, the layer state
// machine and the reasoning engine into the ingestion pipeline. All writes go
// through the graph store's compare-and-swap; conflicting writers retry with
// backoff instead of locking each other out.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenthands/strata/internal/audit"
	"github.com/agenthands/strata/internal/config"
	"github.com/agenthands/strata/internal/core/confidence"
	"github.com/agenthands/strata/internal/core/layers"
	"github.com/agenthands/strata/internal/core/model"
	"github.com/agenthands/strata/internal/core/reasoning"
	"github.com/agenthands/strata/internal/core/registry"
	"github.com/agenthands/strata/internal/core/resolve"
	"github.com/agenthands/strata/internal/driver"
	"github.com/agenthands/strata/internal/llm"
)

type Strata struct {
	store    driver.GraphStore
	labels   *driver.LabelRegistry
	registry *registry.Registry
	resolver *resolve.Resolver
	machine  *layers.Machine
	engine   *reasoning.Engine
	sink     *audit.Sink
	embedder llm.EmbedderClient
	cfg      *config.Config
	logger   *zap.Logger
	now      func() time.Time
}

// New assembles the pipeline. The embedder may be nil; resolution then stops
// at the fuzzy stage.
func New(store driver.GraphStore, embedder llm.EmbedderClient, sink *audit.Sink, cfg *config.Config, logger *zap.Logger) *Strata {
	engine := reasoning.NewEngine(logger)
	reasoning.RegisterDefaults(engine, cfg.HalfLife())

	return &Strata{
		store:    store,
		labels:   driver.NewLabelRegistry(),
		registry: registry.New(cfg.Synonyms, store, logger),
		resolver: resolve.New(cfg.Resolution, cfg.Synonyms, embedder, logger),
		machine:  layers.NewMachine(cfg.Layers),
		engine:   engine,
		sink:     sink,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger.Named("core"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Machine exposes the layer state machine for the scanner.
func (s *Strata) Machine() *layers.Machine { return s.machine }

// Engine exposes the reasoning engine for the scanner.
func (s *Strata) Engine() *reasoning.Engine { return s.engine }

// Bootstrap builds indices and rehydrates the in-memory registry from the
// persisted graph. Must run before the first ingest.
func (s *Strata) Bootstrap(ctx context.Context) error {
	if err := s.store.BuildIndices(ctx); err != nil {
		return fmt.Errorf("failed to build indices: %w", err)
	}

	records, err := s.store.Query(ctx, driver.GetEntitySummariesQuery, nil)
	if err != nil {
		return fmt.Errorf("failed to load entity summaries: %w", err)
	}
	for _, rec := range records {
		id, _ := rec["id"].(string)
		name, _ := rec["canonical_name"].(string)
		if id == "" {
			continue
		}
		createdAt := s.now()
		if raw, ok := rec["created_at"].(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				createdAt = t
			}
		}
		aliases := append([]string{name}, recordStrings(rec["aliases"])...)
		s.registry.Register(id, aliases, createdAt)
	}

	s.logger.Info("registry rehydrated", zap.Int("concepts", len(records)))
	return nil
}

// IngestDrafts resolves and persists one document's extraction output.
// Entities resolve before relationships so endpoints exist by the time edges
// are created. A failure on one draft lands in that item's warnings and the
// rest of the document still processes; only context expiry aborts the batch.
// Partial state already committed stays committed; re-ingesting the same
// document is idempotent by resolution.
func (s *Strata) IngestDrafts(ctx context.Context, docID string, drafts *model.ExtractedDrafts) (*model.IngestReport, error) {
	report := &model.IngestReport{DocumentID: docID}

	// Ids resolved in this batch feed the graph-neighborhood strategy for
	// later drafts in the same document.
	var batchIDs []string

	for _, draft := range drafts.Entities {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		item, err := s.ingestEntity(ctx, docID, draft, batchIDs)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			item.Warnings = append(item.Warnings, err.Error())
			s.logger.Warn("entity draft failed",
				zap.String("document", docID),
				zap.String("name", draft.Name),
				zap.Error(err))
		}
		if item.EntityID != "" {
			batchIDs = append(batchIDs, item.EntityID)
		}
		report.Entities = append(report.Entities, item)
	}

	for _, draft := range drafts.Relationships {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Relationships = append(report.Relationships, s.ingestRelationship(ctx, docID, draft))
	}

	s.logger.Info("document ingested",
		zap.String("document", docID),
		zap.Int("entities", len(report.Entities)),
		zap.Int("relationships", len(report.Relationships)))
	return report, nil
}

func (s *Strata) ingestEntity(ctx context.Context, docID string, draft model.EntityDraft, batchIDs []string) (model.ItemOutcome, error) {
	item := model.ItemOutcome{Name: draft.Name}

	candidates, err := s.fetchCandidates(ctx, draft.Type)
	if err != nil {
		return item, fmt.Errorf("failed to fetch candidates for %q: %w", draft.Name, err)
	}

	outcome, err := s.resolver.Resolve(ctx, resolve.Query{Draft: draft, NeighborIDs: batchIDs}, candidates)
	if err != nil {
		return item, err
	}
	item.Kind = outcome.Kind
	item.Strategy = outcome.Strategy

	switch outcome.Kind {
	case model.OutcomeNewEntity:
		entity, warnings, err := s.createEntity(ctx, docID, draft)
		if err != nil {
			if errors.Is(err, confidence.ErrInvalidScore) {
				item.Warnings = append(item.Warnings, err.Error())
				return item, nil
			}
			return item, err
		}
		item.EntityID = entity.ID
		item.Warnings = append(item.Warnings, warnings...)

	case model.OutcomeMergedInto:
		warnings, err := s.mergeDraft(ctx, docID, draft, outcome)
		if err != nil {
			return item, err
		}
		item.EntityID = s.registry.Canonical(outcome.EntityID)
		item.Warnings = append(item.Warnings, warnings...)
		for _, c := range outcome.Candidates {
			item.Warnings = append(item.Warnings,
				fmt.Sprintf("near-duplicate of %s (%s, %.2f)", c.EntityID, c.Strategy, c.Confidence))
		}

	case model.OutcomeAmbiguous:
		// Never auto-merge an ambiguous draft. The graph-neighborhood
		// strategy only ever hints, so its drafts still become new entities;
		// an equal-confidence name tie is held back entirely for review.
		if outcome.Strategy == "graph_neighborhood" {
			entity, warnings, err := s.createEntity(ctx, docID, draft)
			if err != nil {
				if errors.Is(err, confidence.ErrInvalidScore) {
					item.Warnings = append(item.Warnings, err.Error())
					return item, nil
				}
				return item, err
			}
			item.EntityID = entity.ID
			item.Warnings = append(item.Warnings, warnings...)
		}
		ids := make([]string, 0, len(outcome.Candidates))
		for _, c := range outcome.Candidates {
			ids = append(ids, c.EntityID)
		}
		item.Warnings = append(item.Warnings,
			fmt.Sprintf("%v: %q matched [%s] via %s, flagged for review",
				model.ErrAmbiguousResolution, draft.Name, strings.Join(ids, ", "), outcome.Strategy))
		s.logger.Warn("ambiguous resolution",
			zap.String("name", draft.Name),
			zap.String("strategy", outcome.Strategy),
			zap.Strings("candidates", ids))
	}
	return item, nil
}

// createEntity persists a new Perception-layer entity. A concurrent ingest of
// the same name is caught by a name-key re-check just before the write and
// turned into a merge.
func (s *Strata) createEntity(ctx context.Context, docID string, draft model.EntityDraft) (*model.Entity, []string, error) {
	now := s.now()
	name := resolve.NormalizeName(draft.Name, s.cfg.Synonyms)

	conf, err := confidence.New(draft.Confidence, "extraction:"+docID, now)
	if err != nil {
		return nil, nil, fmt.Errorf("draft %q rejected: %w", draft.Name, err)
	}

	// Resolution ran against a snapshot; another writer may have created this
	// name since.
	records, err := s.store.Query(ctx, driver.GetEntitiesByNameKeyQuery,
		map[string]interface{}{"name_key": resolve.NameKey(name)})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to re-check name key: %w", err)
	}
	if len(records) > 0 {
		if existing, ok := records[0]["id"].(string); ok && existing != "" {
			warnings, err := s.mergeDraft(ctx, docID, draft, model.ResolutionOutcome{
				Kind:            model.OutcomeMergedInto,
				EntityID:        existing,
				Strategy:        "normalized_name",
				MatchConfidence: 0.9,
			})
			if err != nil {
				return nil, nil, err
			}
			merged, err := s.loadEntity(ctx, s.registry.Canonical(existing))
			if err != nil {
				return nil, nil, err
			}
			return merged, warnings, nil
		}
	}

	entity := &model.Entity{
		ID:              uuid.New().String(),
		CanonicalName:   name,
		Type:            draft.Type,
		Layer:           model.LayerPerception,
		Confidence:      conf,
		SourceRefs:      []model.SourceRef{{DocumentID: docID, ExtractedAt: now}},
		ValidationCount: 1,
		OntologyMatch:   s.ontologyMatch(draft.Name),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	// Aliases keep every observed surface form verbatim, starting with the
	// one that created the entity.
	entity.Aliases = []string{draft.Name}
	if draft.Description != "" {
		entity.Properties = map[string]interface{}{"description": draft.Description}
	}

	res := s.engine.Run(reasoning.OpEntityCreated, &reasoning.Context{Entity: entity, Now: now})
	warnings := res.Warnings
	if combined, ok, err := reasoning.Combine(res, confidence.StrategyWeightedAverage); err == nil && ok {
		if updated, err := entity.Confidence.Update(combined, "reasoning:entity_created",
			confidence.StrategyWeightedAverage, now); err == nil {
			entity.Confidence = updated
		}
	}

	var embedding []float32
	if s.embedder != nil {
		embedding, err = s.embedder.Embed(ctx, name)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("embedding unavailable for %q", name))
			s.logger.Warn("embedding failed", zap.String("name", name), zap.Error(err))
			embedding = nil
		}
	}

	props, err := driver.EntityProps(entity, resolve.NameKey(name), embedding)
	if err != nil {
		return nil, nil, err
	}
	labels := []string{"Entity", s.labels.Label(draft.Type)}
	if err := s.store.CreateNode(ctx, entity.ID, labels, props); err != nil {
		return nil, nil, fmt.Errorf("failed to create entity %q: %w", name, err)
	}

	s.registry.Register(entity.ID, []string{draft.Name, name}, now)
	s.logger.Info("entity created",
		zap.String("id", entity.ID),
		zap.String("name", name),
		zap.String("type", draft.Type))

	s.tryPromote(ctx, entity)
	return entity, warnings, nil
}

// mergeDraft folds a draft into an existing entity: alias union, source
// tracking, confidence reinforcement. The whole read-modify-write retries on
// version conflicts.
func (s *Strata) mergeDraft(ctx context.Context, docID string, draft model.EntityDraft, outcome model.ResolutionOutcome) ([]string, error) {
	canonicalID := s.registry.Canonical(outcome.EntityID)
	var warnings []string

	err := s.withRetry(ctx, func() error {
		entity, err := s.loadEntity(ctx, canonicalID)
		if err != nil {
			return err
		}
		now := s.now()

		if !entity.HasExactAlias(draft.Name) {
			entity.Aliases = append(entity.Aliases, draft.Name)
		}

		newDocument := true
		for _, ref := range entity.SourceRefs {
			if ref.DocumentID == docID {
				newDocument = false
				break
			}
		}
		if newDocument {
			entity.SourceRefs = append(entity.SourceRefs, model.SourceRef{DocumentID: docID, ExtractedAt: now})
			entity.ValidationCount++
		}

		// An independent re-observation reinforces; the match confidence
		// discounts the observation before it counts.
		observation := draft.Confidence * outcome.MatchConfidence
		updated, err := entity.Confidence.Update(observation, "merge:"+docID,
			confidence.StrategyBayesian, now)
		if err != nil {
			return fmt.Errorf("draft %q rejected: %w", draft.Name, err)
		}
		entity.Confidence = updated

		res := s.engine.Run(reasoning.OpEntityCreated, &reasoning.Context{Entity: entity, Now: now})
		warnings = res.Warnings
		if combined, ok, err := reasoning.Combine(res, confidence.StrategyWeightedAverage); err == nil && ok {
			if v, err := entity.Confidence.Update(combined, "reasoning:merge",
				confidence.StrategyWeightedAverage, now); err == nil {
				entity.Confidence = v
			}
		}

		entity.UpdatedAt = now
		props, err := driver.EntityProps(entity, resolve.NameKey(entity.CanonicalName), nil)
		if err != nil {
			return err
		}
		delete(props, "id")
		delete(props, "created_at")

		if err := s.store.UpdateProperties(ctx, entity.ID, props, entity.Version); err != nil {
			return err
		}
		entity.Version++

		if err := s.registry.AddAlias(canonicalID, draft.Name); err != nil {
			s.logger.Warn("alias not recorded", zap.String("alias", draft.Name), zap.Error(err))
		}
		s.logger.Info("draft merged",
			zap.String("entity", entity.ID),
			zap.String("alias", draft.Name),
			zap.String("strategy", outcome.Strategy),
			zap.Float64("confidence", entity.Confidence.Score))

		s.tryPromote(ctx, entity)
		return nil
	})
	return warnings, err
}

func (s *Strata) ingestRelationship(ctx context.Context, docID string, draft model.RelationshipDraft) model.ItemOutcome {
	item := model.ItemOutcome{Name: fmt.Sprintf("%s -[%s]-> %s", draft.SourceName, draft.Type, draft.TargetName)}

	sourceID, okS := s.registry.Lookup(draft.SourceName)
	targetID, okT := s.registry.Lookup(draft.TargetName)
	if !okS || !okT {
		missing := draft.SourceName
		if okS {
			missing = draft.TargetName
		}
		item.Warnings = append(item.Warnings,
			fmt.Sprintf("%v: %q, edge dropped", model.ErrDanglingEndpoint, missing))
		s.logger.Warn("dangling relationship dropped",
			zap.String("source", draft.SourceName),
			zap.String("target", draft.TargetName),
			zap.String("type", draft.Type))
		return item
	}

	now := s.now()
	conf, err := confidence.New(draft.Confidence, "extraction:"+docID, now)
	if err != nil {
		item.Warnings = append(item.Warnings, fmt.Sprintf("draft rejected: %v", err))
		return item
	}

	rel := &model.Relationship{
		ID:         uuid.New().String(),
		SourceID:   sourceID,
		TargetID:   targetID,
		Type:       draft.Type,
		Layer:      model.LayerPerception,
		Confidence: conf,
		CreatedAt:  now,
	}

	sourceLayer, targetLayer := s.endpointLayers(ctx, sourceID, targetID)
	res := s.engine.Run(reasoning.OpRelationshipCreated, &reasoning.Context{
		Relationship: rel,
		SourceLayer:  sourceLayer,
		TargetLayer:  targetLayer,
		Now:          now,
	})
	item.Warnings = append(item.Warnings, res.Warnings...)
	rel.Provenance = strings.Join(res.Provenance, "; ")
	if combined, ok, err := reasoning.Combine(res, confidence.StrategyWeightedAverage); err == nil && ok {
		if v, err := rel.Confidence.Update(combined, "reasoning:relationship_created",
			confidence.StrategyWeightedAverage, now); err == nil {
			rel.Confidence = v
		}
	}

	props, err := driver.RelationshipProps(rel)
	if err != nil {
		item.Warnings = append(item.Warnings, fmt.Sprintf("edge dropped: %v", err))
		return item
	}
	if err := s.store.CreateEdge(ctx, sourceID, targetID, draft.Type, props); err != nil {
		if errors.Is(err, driver.ErrNotFound) {
			item.Warnings = append(item.Warnings,
				fmt.Sprintf("%v: endpoint vanished, edge dropped", model.ErrDanglingEndpoint))
			return item
		}
		item.Warnings = append(item.Warnings, fmt.Sprintf("edge dropped: %v", err))
		return item
	}

	item.Kind = model.OutcomeNewEntity
	item.EntityID = rel.ID
	return item
}

// GetEntity loads an entity by id, following merge redirects so historical
// ids keep resolving after their concept was absorbed.
func (s *Strata) GetEntity(ctx context.Context, id string) (*model.Entity, error) {
	return s.loadEntity(ctx, s.registry.Canonical(id))
}

// Lookup resolves a name or alias to its canonical entity.
func (s *Strata) Lookup(ctx context.Context, nameOrAlias string) (*model.Entity, error) {
	id, ok := s.registry.Lookup(nameOrAlias)
	if !ok {
		return nil, fmt.Errorf("entity %q: %w", nameOrAlias, driver.ErrNotFound)
	}
	return s.loadEntity(ctx, id)
}

// PromoteEntity attempts one guarded promotion for the entity.
func (s *Strata) PromoteEntity(ctx context.Context, id string) (model.PromotionResult, error) {
	var result model.PromotionResult
	err := s.withRetry(ctx, func() error {
		entity, err := s.loadEntity(ctx, s.registry.Canonical(id))
		if err != nil {
			return err
		}

		result = s.machine.AttemptPromotion(entity)
		if !result.Promoted {
			return nil
		}

		patch := map[string]interface{}{
			"layer":      entity.Layer.String(),
			"updated_at": s.now().Format(time.RFC3339Nano),
		}
		if err := s.store.UpdateProperties(ctx, entity.ID, patch, entity.Version); err != nil {
			return err
		}
		return s.sink.Append(result.Record)
	})
	return result, err
}

// DemoteEntity moves an entity one layer down after failed validation.
func (s *Strata) DemoteEntity(ctx context.Context, id, reason string) (*model.PromotionRecord, error) {
	var record *model.PromotionRecord
	err := s.withRetry(ctx, func() error {
		entity, err := s.loadEntity(ctx, s.registry.Canonical(id))
		if err != nil {
			return err
		}

		record = s.machine.Demote(entity, reason)
		if record == nil {
			return nil
		}

		patch := map[string]interface{}{
			"layer":            entity.Layer.String(),
			"validation_count": int64(entity.ValidationCount),
			"updated_at":       s.now().Format(time.RFC3339Nano),
		}
		if err := s.store.UpdateProperties(ctx, entity.ID, patch, entity.Version); err != nil {
			return err
		}
		return s.sink.Append(record)
	})
	return record, err
}

// MergeEntities folds two resolved entities into one canonical concept.
func (s *Strata) MergeEntities(ctx context.Context, a, b string) (string, error) {
	return s.registry.Merge(ctx, a, b)
}

// LayerCounts reports how many entities sit at each layer.
func (s *Strata) LayerCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, 4)
	for layer := model.LayerPerception; layer <= model.LayerApplication; layer++ {
		records, err := s.store.Query(ctx, driver.CountEntitiesByLayerQuery,
			map[string]interface{}{"layer": layer.String()})
		if err != nil {
			return nil, fmt.Errorf("failed to count layer %s: %w", layer, err)
		}
		if len(records) > 0 {
			if n, ok := records[0]["count"].(int64); ok {
				counts[layer.String()] = n
			}
		}
	}
	return counts, nil
}

// tryPromote runs an inline promotion attempt after a write. Failures are
// logged, never fatal; the scanner retries on its next pass.
func (s *Strata) tryPromote(ctx context.Context, entity *model.Entity) {
	result := s.machine.AttemptPromotion(entity)
	if !result.Promoted {
		return
	}

	patch := map[string]interface{}{
		"layer":      entity.Layer.String(),
		"updated_at": s.now().Format(time.RFC3339Nano),
	}
	if err := s.store.UpdateProperties(ctx, entity.ID, patch, entity.Version); err != nil {
		s.logger.Warn("inline promotion not persisted",
			zap.String("entity", entity.ID), zap.Error(err))
		return
	}
	entity.Version++
	if err := s.sink.Append(result.Record); err != nil {
		s.logger.Error("failed to audit promotion",
			zap.String("entity", entity.ID), zap.Error(err))
	}
}

func (s *Strata) loadEntity(ctx context.Context, id string) (*model.Entity, error) {
	records, err := s.store.Query(ctx, driver.GetEntityByIDQuery, map[string]interface{}{"id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to load entity %s: %w", id, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("entity %s: %w", id, driver.ErrNotFound)
	}
	return driver.EntityFromRecord(records[0])
}

func (s *Strata) fetchCandidates(ctx context.Context, entityType string) ([]resolve.Candidate, error) {
	records, err := s.store.Query(ctx, driver.GetCandidatesByTypeQuery, map[string]interface{}{
		"type":  entityType,
		"limit": int64(s.cfg.Resolution.CandidateLimit),
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]resolve.Candidate, 0, len(records))
	for _, rec := range records {
		id, _ := rec["id"].(string)
		name, _ := rec["canonical_name"].(string)
		if id == "" {
			continue
		}
		candidates = append(candidates, resolve.Candidate{
			ID:          id,
			Name:        name,
			Aliases:     recordStrings(rec["aliases"]),
			Embedding:   recordFloats(rec["name_embedding"]),
			NeighborIDs: recordStrings(rec["neighbor_ids"]),
		})
	}
	return candidates, nil
}

func (s *Strata) endpointLayers(ctx context.Context, sourceID, targetID string) (model.Layer, model.Layer) {
	sourceLayer, targetLayer := model.LayerPerception, model.LayerPerception
	if e, err := s.loadEntity(ctx, sourceID); err == nil {
		sourceLayer = e.Layer
	}
	if e, err := s.loadEntity(ctx, targetID); err == nil {
		targetLayer = e.Layer
	}
	return sourceLayer, targetLayer
}

// ontologyMatch reports whether the name is anchored in the configured
// vocabulary, either as an abbreviation or an expansion.
func (s *Strata) ontologyMatch(name string) bool {
	for abbr, full := range s.cfg.Synonyms {
		if strings.EqualFold(abbr, name) || strings.EqualFold(full, name) {
			return true
		}
	}
	return false
}

// withRetry re-runs fn on version conflicts with capped exponential backoff.
// Exhausted retries surface as ErrResolutionFailed.
func (s *Strata) withRetry(ctx context.Context, fn func() error) error {
	base := time.Duration(s.cfg.Retry.BaseMillis) * time.Millisecond
	maxBackoff := time.Duration(s.cfg.Retry.MaxBackoffMS) * time.Millisecond

	var err error
	for attempt := 0; attempt < s.cfg.Retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := base << (attempt - 1)
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err = fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, driver.ErrConflict) {
			return err
		}
		s.logger.Debug("write conflicted, retrying", zap.Int("attempt", attempt+1))
	}
	return fmt.Errorf("%w after %d attempts: %v", model.ErrResolutionFailed, s.cfg.Retry.MaxAttempts, err)
}

func recordStrings(v interface{}) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []interface{}:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func recordFloats(v interface{}) []float32 {
	switch vals := v.(type) {
	case []float32:
		return vals
	case []float64:
		out := make([]float32, len(vals))
		for i, f := range vals {
			out[i] = float32(f)
		}
		return out
	case []interface{}:
		out := make([]float32, 0, len(vals))
		for _, item := range vals {
			if f, ok := item.(float64); ok {
				out = append(out, float32(f))
			}
		}
		return out
	}
	return nil
}
