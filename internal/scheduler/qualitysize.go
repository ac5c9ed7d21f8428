// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/Kha-kis/arr-dashboard-sub014/internal/arr"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/guide"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/store"
)

// syncQualitySizes aligns quality-definition size limits for every instance
// with a preset mapping. Application is idempotent by content hash: when
// the preset's hash matches what was last applied, the instance is skipped.
// Notify-strategy mappings count a pending update instead of applying.
func (s *Scheduler) syncQualitySizes(ctx context.Context, report *RunReport) {
	mappings, err := s.store.ListQualitySizeMappings()
	if err != nil {
		report.addError(fmt.Errorf("load quality-size mappings: %w", err))
		return
	}

	for i := range mappings {
		if err := s.syncQualitySize(ctx, &mappings[i], report); err != nil {
			report.addError(fmt.Errorf("quality-size %s: %w", mappings[i].InstanceID, err))
			report.itemErrors++
		}
	}
}

func (s *Scheduler) syncQualitySize(ctx context.Context, mapping *store.QualitySizeMapping, report *RunReport) error {
	inst, ok := s.instances[mapping.InstanceID]
	if !ok {
		return fmt.Errorf("unknown instance %s", mapping.InstanceID)
	}
	log := s.logger.With().Str("instance", inst.ID).Str("preset", mapping.PresetType).Logger()

	var presets []guide.QualitySizePreset
	if err := s.cache.Get(string(inst.Service), string(guide.ConfigQualitySize), &presets); err != nil {
		return fmt.Errorf("load cached quality-size presets: %w", err)
	}
	var preset *guide.QualitySizePreset
	for i := range presets {
		if presets[i].Type == mapping.PresetType {
			preset = &presets[i]
			break
		}
	}
	if preset == nil {
		return fmt.Errorf("preset %q not present in guide", mapping.PresetType)
	}

	hash, err := presetHash(preset)
	if err != nil {
		return err
	}
	if mapping.AppliedDataHash != nil && *mapping.AppliedDataHash == hash {
		report.QualitySizeSkipped++
		return nil
	}

	// Notify mappings report that the preset changed without touching
	// the instance. The stored hash stays as-is so the pending state
	// repeats until someone applies.
	if mapping.Strategy == store.StrategyNotify {
		report.QualitySizePending++
		log.Info().Str("hash", hash[:12]).Msg("Quality-size preset changed, update pending")
		return nil
	}

	// Reset first so stale limits on qualities the preset no longer
	// names cannot survive. Once reset succeeds the stored hash is
	// stale, so null it before applying: if the apply fails the next
	// cycle must not skip on a hash describing limits that are gone.
	defs, err := inst.API.ResetQualityDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("reset quality definitions: %w", err)
	}

	mapping.AppliedDataHash = nil
	mapping.AppliedAt = nil
	if err := s.store.PutQualitySizeMapping(mapping); err != nil {
		return fmt.Errorf("null applied hash: %w", err)
	}

	applyLimits(defs, preset, s.cfg.ReversedQualityOrder)
	if _, err := inst.API.UpdateQualityDefinitions(ctx, defs); err != nil {
		log.Error().Err(err).Msg("Quality-size apply failed after reset, will re-apply next cycle")
		return fmt.Errorf("apply quality definitions: %w", err)
	}

	now := s.now().UTC()
	mapping.AppliedDataHash = &hash
	mapping.AppliedAt = &now
	if err := s.store.PutQualitySizeMapping(mapping); err != nil {
		return fmt.Errorf("persist applied hash: %w", err)
	}

	report.QualitySizeApplied++
	log.Info().Str("hash", hash[:12]).Msg("Quality-size limits applied")
	return nil
}

// presetHash is the content hash of a preset's limits: sha256 over the
// canonical JSON of its quality items.
func presetHash(preset *guide.QualitySizePreset) (string, error) {
	raw, err := json.Marshal(preset.Qualities)
	if err != nil {
		return "", fmt.Errorf("hash preset: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// applyLimits writes the preset's limits onto matching definitions in
// place. Definitions the preset does not name stay at their reset state.
// reversed reads items published in the flipped min/max ordering.
func applyLimits(defs []arr.QualityDefinition, preset *guide.QualitySizePreset, reversed bool) {
	byQuality := make(map[string]*guide.QualitySizeItem, len(preset.Qualities))
	for i := range preset.Qualities {
		byQuality[strings.ToLower(preset.Qualities[i].Quality)] = &preset.Qualities[i]
	}

	for i := range defs {
		item := byQuality[strings.ToLower(defs[i].Quality.Name)]
		if item == nil {
			item = byQuality[strings.ToLower(defs[i].Title)]
		}
		if item == nil {
			continue
		}
		minSize, preferred, maxSize := item.Min, item.Preferred, item.Max
		if reversed {
			minSize, maxSize = maxSize, minSize
		}
		defs[i].MinSize = &minSize
		defs[i].PreferredSize = &preferred
		defs[i].MaxSize = &maxSize
	}
}
