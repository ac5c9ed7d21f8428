// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Kha-kis/arr-dashboard-sub014/internal/diff"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/guide"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/metrics"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/pipeline"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/store"
)

// RunReport summarizes one cycle.
type RunReport struct {
	// RunID correlates log lines and stored conflicts from one cycle.
	RunID      string    `json:"runId"`
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	Guide *guide.RefreshSummary `json:"guide,omitempty"`

	TemplatesApplied  int `json:"templatesApplied"`
	TemplatesNotified int `json:"templatesNotified"`
	TemplatesSkipped  int `json:"templatesSkipped"`

	QualitySizeApplied int `json:"qualitySizeApplied"`
	QualitySizeSkipped int `json:"qualitySizeSkipped"`
	QualitySizePending int `json:"qualitySizePending"`

	Results []pipeline.Result `json:"results,omitempty"`
	Errors  []string          `json:"errors,omitempty"`

	// Failed marks a cycle that could not run at all, as opposed to one
	// with isolated item errors.
	Failed        bool   `json:"failed"`
	FailureReason string `json:"failureReason,omitempty"`

	itemErrors int
}

func (r *RunReport) applied() int {
	total := 0
	for i := range r.Results {
		total += r.Results[i].FormatsCreated + r.Results[i].FormatsUpdated +
			r.Results[i].FormatsDeleted + r.Results[i].ProfilesUpdated
	}
	return total + r.QualitySizeApplied
}

func (r *RunReport) addError(err error) {
	r.Errors = append(r.Errors, err.Error())
}

// cycle executes one full pass. A guide refresh failure does not abort the
// cycle when cached data exists; templates then run against the cache.
func (s *Scheduler) cycle(ctx context.Context, trigger string, force bool) *RunReport {
	report := &RunReport{RunID: uuid.NewString(), Trigger: trigger, StartedAt: s.now()}
	defer func() { report.FinishedAt = s.now() }()

	log := s.logger.With().Str("run_id", report.RunID).Logger()
	log.Info().Str("trigger", trigger).Bool("force", force).Msg("Sync cycle started")

	summary, err := s.refresher.RefreshAll(ctx, force)
	if err != nil {
		log.Warn().Err(err).Msg("Guide refresh failed, syncing from cached data")
		report.addError(fmt.Errorf("guide refresh: %w", err))
	} else {
		report.Guide = summary
	}

	// Quality-size definitions go first: templates may reference quality
	// groups whose limits the size pass just aligned.
	s.syncQualitySizes(ctx, report)

	templates, err := s.store.ListTemplates()
	if err != nil {
		report.Failed = true
		report.FailureReason = fmt.Sprintf("load templates: %v", err)
		return report
	}

	for i := range templates {
		s.runTemplate(ctx, trigger, &templates[i], report)
	}

	return report
}

// runTemplate applies one template per its update strategy.
func (s *Scheduler) runTemplate(ctx context.Context, trigger string, tpl *store.Template, report *RunReport) {
	log := s.logger.With().Str("template", tpl.ID).Str("instance", tpl.InstanceID).Logger()

	inst, ok := s.instances[tpl.InstanceID]
	if !ok {
		report.TemplatesSkipped++
		report.addError(fmt.Errorf("template %s: %w: %s", tpl.ID, pipeline.ErrNoInstance, tpl.InstanceID))
		return
	}

	// Manual-strategy templates only run on manual triggers.
	if tpl.Strategy == store.StrategyManual && trigger != TriggerManual {
		report.TemplatesSkipped++
		return
	}

	rt, err := s.resolveTemplate(tpl, inst.Service)
	if err != nil {
		report.TemplatesSkipped++
		report.addError(fmt.Errorf("template %s: %w", tpl.ID, err))
		log.Error().Err(err).Msg("Failed to resolve template against guide cache")
		return
	}

	if tpl.Strategy == store.StrategyNotify {
		s.notifyTemplate(ctx, tpl, inst, rt.desired, report, log)
		return
	}

	commit := ""
	if report.Guide != nil {
		commit = report.Guide.CommitHash
	}
	res, err := s.runner.Sync(ctx, pipeline.Request{
		InstanceID:   inst.ID,
		API:          inst.API,
		Desired:      rt.desired,
		Profiles:     rt.profiles,
		AllowDeletes: inst.AllowDeletes,
		Overrides:    templateOverrides(tpl),
		Provenance:   rt.provenance,
		CommitHash:   commit,
	})
	if err != nil {
		report.TemplatesSkipped++
		report.addError(fmt.Errorf("template %s: %w", tpl.ID, err))
		return
	}

	report.TemplatesApplied++
	report.Results = append(report.Results, *res)
	report.itemErrors += len(res.Errors)
	s.recordResult(inst.ID, res)

	for i := range rt.groups {
		g := rt.groups[i]
		g.InstanceID = inst.ID
		g.LastSyncedAt = s.now().UTC()
		if err := s.store.PutGroupTracking(&g); err != nil {
			log.Warn().Err(err).Str("group", g.GroupTrashID).Msg("Failed to persist group tracking")
		}
	}

	// A clean apply clears the notify flag left by earlier cycles.
	if tpl.UpdatesAvailable {
		tpl.UpdatesAvailable = false
		tpl.UpdatedAt = s.now().UTC()
		if err := s.store.PutTemplate(tpl); err != nil {
			log.Warn().Err(err).Msg("Failed to clear updates-available flag")
		}
	}
}

// notifyTemplate plans without applying and flags the template when guide
// content diverges from the instance.
func (s *Scheduler) notifyTemplate(ctx context.Context, tpl *store.Template, inst Instance, desired []guide.CustomFormat, report *RunReport, log zerolog.Logger) {
	instanceFormats, err := inst.API.GetCustomFormats(ctx)
	if err != nil {
		report.TemplatesSkipped++
		report.addError(fmt.Errorf("template %s: fetch instance formats: %w", tpl.ID, err))
		return
	}
	tracking, err := s.store.ListFormatTracking(inst.ID)
	if err != nil {
		report.TemplatesSkipped++
		report.addError(fmt.Errorf("template %s: load tracking: %w", tpl.ID, err))
		return
	}
	tracked := make(map[string]int, len(tracking))
	for i := range tracking {
		tracked[tracking[i].TrashID] = tracking[i].RemoteID
	}

	plan := diff.ComputePlan(diff.Input{
		Desired:      desired,
		Instance:     instanceFormats,
		Tracked:      tracked,
		AllowDeletes: inst.AllowDeletes,
		Overrides:    templateOverrides(tpl),
	})
	available := !plan.Empty() || len(plan.SkippedDeletes) > 0

	if available {
		report.TemplatesNotified++
		log.Info().
			Int("creates", len(plan.Creates)).
			Int("updates", len(plan.Updates)).
			Int("deletes", len(plan.Deletes)+len(plan.SkippedDeletes)).
			Msg("Guide updates available, template set to notify")
	}

	if available != tpl.UpdatesAvailable {
		tpl.UpdatesAvailable = available
		tpl.UpdatedAt = s.now().UTC()
		if err := s.store.PutTemplate(tpl); err != nil {
			log.Warn().Err(err).Msg("Failed to persist updates-available flag")
		}
	}
}

// recordResult feeds one sync result into metrics and the conflict log.
func (s *Scheduler) recordResult(instanceID string, res *pipeline.Result) {
	metrics.SyncItemChanges.WithLabelValues(instanceID, "format", "create").Add(float64(res.FormatsCreated))
	metrics.SyncItemChanges.WithLabelValues(instanceID, "format", "update").Add(float64(res.FormatsUpdated))
	metrics.SyncItemChanges.WithLabelValues(instanceID, "format", "delete").Add(float64(res.FormatsDeleted))
	metrics.SyncItemChanges.WithLabelValues(instanceID, "profile", "update").Add(float64(res.ProfilesUpdated))

	for _, itemErr := range res.Errors {
		s.recorder.RecordItemError(instanceID, itemErr.Kind, itemErr.Err)
	}

	// A score rewritten away from a non-zero value means someone set it
	// deliberately; surface it for review.
	for _, sc := range res.ScoreChanges {
		if sc.From == 0 {
			continue
		}
		err := s.store.PutScoreConflict(&store.ScoreConflict{
			InstanceID:   instanceID,
			TrashID:      fmt.Sprintf("remote-%d", sc.RemoteID),
			FormatName:   sc.FormatName,
			GuideScore:   sc.To,
			CurrentScore: sc.From,
			RecordedAt:   s.now().UTC(),
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("format", sc.FormatName).Msg("Failed to record score conflict")
		}
	}
}

// resolvedTemplate is a template materialized against the cached guide:
// the formats to sync, the profiles to manage, per-format provenance, and
// the group tracking records to persist after a successful apply.
type resolvedTemplate struct {
	desired    []guide.CustomFormat
	profiles   []pipeline.ProfileSpec
	provenance map[string]pipeline.Provenance
	groups     []store.GroupTracking
}

// resolveTemplate materializes a template against the cached guide
// documents: its directly selected formats, the formats its groups
// contribute, and the quality profiles it manages. Group profile
// exclusions withhold a group's formats from excluded profiles without
// removing them from the instance.
func (s *Scheduler) resolveTemplate(tpl *store.Template, service guide.ServiceType) (*resolvedTemplate, error) {
	var formats []guide.CustomFormat
	if err := s.cache.Get(string(service), string(guide.ConfigCustomFormats), &formats); err != nil {
		return nil, fmt.Errorf("load cached custom formats: %w", err)
	}
	byTrashID := make(map[string]*guide.CustomFormat, len(formats))
	for i := range formats {
		byTrashID[formats[i].TrashID] = &formats[i]
	}

	rt := &resolvedTemplate{provenance: make(map[string]pipeline.Provenance)}
	desired := make(map[string]*guide.CustomFormat)
	// originGroups tracks which groups contributed each format, for
	// per-profile exclusion. Directly selected formats have no origin
	// and are never withheld.
	originGroups := make(map[string][]*guide.CFGroup)

	for _, trashID := range tpl.FormatTrashIDs {
		cf, ok := byTrashID[trashID]
		if !ok {
			return nil, fmt.Errorf("format %s not present in guide", trashID)
		}
		desired[trashID] = cf
		rt.provenance[trashID] = pipeline.Provenance{Source: "template", Reference: tpl.ID}
	}

	if len(tpl.GroupTrashIDs) > 0 {
		var groups []guide.CFGroup
		if err := s.cache.Get(string(service), string(guide.ConfigCFGroups), &groups); err != nil {
			return nil, fmt.Errorf("load cached format groups: %w", err)
		}
		groupByID := make(map[string]*guide.CFGroup, len(groups))
		for i := range groups {
			groupByID[groups[i].TrashID] = &groups[i]
		}

		for _, groupID := range tpl.GroupTrashIDs {
			grp, ok := groupByID[groupID]
			if !ok {
				return nil, fmt.Errorf("format group %s not present in guide", groupID)
			}
			var contributed []string
			for _, item := range grp.CustomFormats {
				cf, ok := byTrashID[item.TrashID]
				if !ok {
					s.logger.Warn().
						Str("group", grp.Name).
						Str("trash_id", item.TrashID).
						Msg("Group references a format missing from the guide, skipping item")
					continue
				}
				if _, direct := desired[item.TrashID]; !direct {
					originGroups[item.TrashID] = append(originGroups[item.TrashID], grp)
					rt.provenance[item.TrashID] = pipeline.Provenance{Source: "group", Reference: grp.TrashID}
					contributed = append(contributed, item.TrashID)
				}
				desired[item.TrashID] = cf
			}
			rt.groups = append(rt.groups, store.GroupTracking{
				GroupTrashID:   grp.TrashID,
				GroupName:      grp.Name,
				FormatTrashIDs: contributed,
			})
		}
	}

	rt.desired = make([]guide.CustomFormat, 0, len(desired))
	for _, cf := range desired {
		rt.desired = append(rt.desired, *cf)
	}

	if len(tpl.ProfileTrashIDs) > 0 {
		var profiles []guide.QualityProfile
		if err := s.cache.Get(string(service), string(guide.ConfigQualityProfiles), &profiles); err != nil {
			return nil, fmt.Errorf("load cached quality profiles: %w", err)
		}
		profileByID := make(map[string]*guide.QualityProfile, len(profiles))
		for i := range profiles {
			profileByID[profiles[i].TrashID] = &profiles[i]
		}

		for _, profileID := range tpl.ProfileTrashIDs {
			gp, ok := profileByID[profileID]
			if !ok {
				return nil, fmt.Errorf("profile %s not present in guide", profileID)
			}

			scoped := make(map[string]*guide.CustomFormat, len(desired))
			for trashID, cf := range desired {
				if excludedByAllOrigins(originGroups[trashID], profileID) {
					continue
				}
				scoped[trashID] = cf
			}
			if tpl.ScoreSet != "" && gp.TrashScoreSet == "" {
				gp = cloneProfileWithScoreSet(gp, tpl.ScoreSet)
			}
			rt.profiles = append(rt.profiles, pipeline.ProfileSpec{Guide: gp, Desired: scoped})
		}
	}

	return rt, nil
}

// excludedByAllOrigins reports whether every group that contributed a
// format excludes the profile. A format with no origins was selected
// directly and is never excluded.
func excludedByAllOrigins(origins []*guide.CFGroup, profileTrashID string) bool {
	if len(origins) == 0 {
		return false
	}
	for _, grp := range origins {
		if !grp.ExcludesProfile(profileTrashID) {
			return false
		}
	}
	return true
}

// templateOverrides maps a template's user adjustments to planner
// overrides. Nil when the template has none.
func templateOverrides(tpl *store.Template) *diff.Overrides {
	if len(tpl.ExcludeTrashIDs) == 0 && len(tpl.TermOverrides) == 0 &&
		len(tpl.AddTerms) == 0 && len(tpl.RemoveTerms) == 0 {
		return nil
	}
	o := &diff.Overrides{
		TermOverrides: tpl.TermOverrides,
		AddTerms:      tpl.AddTerms,
		RemoveTerms:   tpl.RemoveTerms,
	}
	if len(tpl.ExcludeTrashIDs) > 0 {
		o.ExcludeTrashIDs = make(map[string]bool, len(tpl.ExcludeTrashIDs))
		for _, id := range tpl.ExcludeTrashIDs {
			o.ExcludeTrashIDs[id] = true
		}
	}
	return o
}

func cloneProfileWithScoreSet(gp *guide.QualityProfile, scoreSet string) *guide.QualityProfile {
	clone := *gp
	clone.TrashScoreSet = scoreSet
	return &clone
}
