// Arr Dashboard - TRaSH Guides Sync for Sonarr/Radarr Instances
// Copyright 2026 Kha-kis
// SPDX-License-Identifier: MIT
// https://github.com/Kha-kis/arr-dashboard-sub014

// Package diff plans custom-format changes against an instance snapshot.
// Planning is pure: no I/O, no clock, same inputs same plan. The executor
// applies plans; this package only decides what should change.
package diff

import (
	"sort"
	"strings"

	"github.com/Kha-kis/arr-dashboard-sub014/internal/arr"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/guide"
	"github.com/Kha-kis/arr-dashboard-sub014/internal/match"
)

// Overrides carries user-level adjustments applied before planning.
type Overrides struct {
	// ExcludeTrashIDs removes formats from the desired set entirely.
	// Excluded formats are never created, updated, or deleted.
	ExcludeTrashIDs map[string]bool

	// TermOverrides replaces the "value" field of a named
	// ReleaseTitleSpecification within a format, keyed by trash_id then
	// specification name. Used to swap guide regex terms for user ones.
	TermOverrides map[string]map[string]string

	// AddTerms appends user release-title specifications to a format,
	// keyed by trash_id then new specification name; the value is the
	// regex term.
	AddTerms map[string]map[string]string

	// RemoveTerms drops specifications from a format by name, keyed by
	// trash_id.
	RemoveTerms map[string][]string
}

func (o *Overrides) excluded(trashID string) bool {
	return o != nil && o.ExcludeTrashIDs[trashID]
}

// FormatChange is one planned create or update. Payload carries the body
// to send; for updates its ID is the instance's.
type FormatChange struct {
	TrashID string
	Name    string
	Payload *arr.CustomFormat

	// Tier reports how the instance counterpart was found (updates only).
	Tier match.Tier

	// Reasons lists what differs, for logs and dry-run output.
	Reasons []string
}

// FormatDeletion is one planned or withheld delete.
type FormatDeletion struct {
	TrashID  string
	Name     string
	RemoteID int
}

// Plan is the full set of changes for one instance's custom formats.
type Plan struct {
	Creates []FormatChange
	Updates []FormatChange
	Deletes []FormatDeletion

	// SkippedDeletes are untracked remote-only formats that would be
	// deleted but were withheld because deletes are disabled for the
	// instance.
	SkippedDeletes []FormatDeletion

	Unchanged int
}

// Empty reports whether the plan carries no applicable changes. Withheld
// deletes do not count: an empty plan means apply would be a no-op.
func (p *Plan) Empty() bool {
	return len(p.Creates) == 0 && len(p.Updates) == 0 && len(p.Deletes) == 0
}

// Input is everything format planning needs.
type Input struct {
	// Desired is the guide formats selected for this instance.
	Desired []guide.CustomFormat

	// Instance is the instance's current custom formats.
	Instance []arr.CustomFormat

	// Tracked maps trash_id to the remote ID recorded by a previous
	// sync. Tracked formats that fall out of the desired set are always
	// planned for deletion; the sync created them and must clean them up.
	Tracked map[string]int

	// AllowDeletes gates deletion of untracked remote-only formats.
	// When false those are planned into SkippedDeletes instead. Tracked
	// orphans are not gated.
	AllowDeletes bool

	Overrides *Overrides
}

// ComputePlan diffs the desired guide formats against the instance
// snapshot.
func ComputePlan(in Input) *Plan {
	plan := &Plan{}

	desired := make([]guide.CustomFormat, 0, len(in.Desired))
	for i := range in.Desired {
		if in.Overrides.excluded(in.Desired[i].TrashID) {
			continue
		}
		desired = append(desired, applyTermOverrides(in.Desired[i], in.Overrides))
	}

	matches := match.MatchMany(desired, in.Instance)
	desiredIDs := make(map[string]bool, len(desired))

	for _, m := range matches {
		desiredIDs[m.Guide.TrashID] = true
		payload := arr.FromGuideFormat(m.Guide)

		if m.Instance == nil {
			plan.Creates = append(plan.Creates, FormatChange{
				TrashID: m.Guide.TrashID,
				Name:    m.Guide.Name,
				Payload: payload,
			})
			continue
		}

		reasons := match.SpecDifferences(m.Guide.Specifications, m.Instance.Specifications)
		if m.Guide.Name != m.Instance.Name {
			reasons = append(reasons, "name differs")
		}
		if m.Guide.IncludeCustomFormatWhenRenaming != m.Instance.IncludeCustomFormatWhenRenaming {
			reasons = append(reasons, "rename flag differs")
		}
		if len(reasons) == 0 {
			plan.Unchanged++
			continue
		}

		payload.ID = m.Instance.ID
		plan.Updates = append(plan.Updates, FormatChange{
			TrashID: m.Guide.TrashID,
			Name:    m.Guide.Name,
			Payload: payload,
			Tier:    m.Tier,
			Reasons: reasons,
		})
	}

	// Tracked formats that fell out of the desired set were created by a
	// previous sync; they are cleaned up regardless of the delete gate.
	// Exclusion removes a format from management, so excluded formats
	// are not deleted either.
	trashIDs := make([]string, 0, len(in.Tracked))
	for trashID := range in.Tracked {
		trashIDs = append(trashIDs, trashID)
	}
	sort.Strings(trashIDs)

	for _, trashID := range trashIDs {
		if desiredIDs[trashID] || in.Overrides.excluded(trashID) {
			continue
		}
		plan.Deletes = append(plan.Deletes, FormatDeletion{
			TrashID:  trashID,
			RemoteID: in.Tracked[trashID],
			Name:     remoteName(in.Instance, in.Tracked[trashID]),
		})
	}

	// Untracked remote-only formats may be the user's own work, so their
	// deletion is gated. Withheld ones are reported, not applied.
	claimed := make(map[int]bool, len(matches))
	for _, m := range matches {
		if m.Instance != nil {
			claimed[m.Instance.ID] = true
		}
	}
	trackedRemote := make(map[int]bool, len(in.Tracked))
	for _, id := range in.Tracked {
		trackedRemote[id] = true
	}
	for i := range in.Instance {
		cf := &in.Instance[i]
		if claimed[cf.ID] || trackedRemote[cf.ID] {
			continue
		}
		trashID := match.InstanceTrashID(cf)
		if in.Overrides.excluded(trashID) {
			continue
		}
		del := FormatDeletion{
			TrashID:  trashID,
			Name:     cf.Name,
			RemoteID: cf.ID,
		}
		if in.AllowDeletes {
			plan.Deletes = append(plan.Deletes, del)
		} else {
			plan.SkippedDeletes = append(plan.SkippedDeletes, del)
		}
	}

	return plan
}

func remoteName(instance []arr.CustomFormat, id int) string {
	for i := range instance {
		if instance[i].ID == id {
			return instance[i].Name
		}
	}
	return ""
}

// applyTermOverrides returns a copy of cf with the user's term overrides
// applied: removed specifications dropped, replacement terms swapped into
// existing release-title specifications, added terms appended as new ones.
func applyTermOverrides(cf guide.CustomFormat, o *Overrides) guide.CustomFormat {
	if o == nil {
		return cf
	}
	terms := o.TermOverrides[cf.TrashID]
	adds := o.AddTerms[cf.TrashID]
	removes := o.RemoveTerms[cf.TrashID]
	if len(terms) == 0 && len(adds) == 0 && len(removes) == 0 {
		return cf
	}

	removed := make(map[string]bool, len(removes))
	for _, name := range removes {
		removed[name] = true
	}

	specs := make([]guide.Specification, 0, len(cf.Specifications)+len(adds))
	for _, spec := range cf.Specifications {
		if removed[spec.Name] {
			continue
		}
		if value, ok := terms[spec.Name]; ok && strings.EqualFold(spec.Implementation, "ReleaseTitleSpecification") {
			fields := make(guide.SpecFields, len(spec.Fields))
			for k, v := range spec.Fields {
				fields[k] = v
			}
			fields["value"] = value
			spec.Fields = fields
		}
		specs = append(specs, spec)
	}

	// Added terms in name order so the payload is stable run to run.
	addNames := make([]string, 0, len(adds))
	for name := range adds {
		addNames = append(addNames, name)
	}
	sort.Strings(addNames)
	for _, name := range addNames {
		specs = append(specs, guide.Specification{
			Name:           name,
			Implementation: "ReleaseTitleSpecification",
			Fields:         guide.SpecFields{"value": adds[name]},
		})
	}

	cf.Specifications = specs
	return cf
}

// VerifyIdempotency simulates applying the plan and replans against the
// resulting state. A correct plan replans to empty; any residual changes
// are returned as reasons.
func VerifyIdempotency(in Input, plan *Plan) []string {
	after := simulate(in.Instance, plan)

	next := ComputePlan(Input{
		Desired:      in.Desired,
		Instance:     after,
		Tracked:      simulateTracked(in.Tracked, plan),
		AllowDeletes: in.AllowDeletes,
		Overrides:    in.Overrides,
	})
	if next.Empty() {
		return nil
	}

	var reasons []string
	for _, c := range next.Creates {
		reasons = append(reasons, "residual create: "+c.Name)
	}
	for _, u := range next.Updates {
		reasons = append(reasons, "residual update: "+u.Name+" ("+strings.Join(u.Reasons, "; ")+")")
	}
	for _, d := range next.Deletes {
		reasons = append(reasons, "residual delete: "+d.Name)
	}
	return reasons
}

// simulate applies a plan to an instance snapshot in memory.
func simulate(instance []arr.CustomFormat, plan *Plan) []arr.CustomFormat {
	deleted := make(map[int]bool, len(plan.Deletes))
	for _, d := range plan.Deletes {
		deleted[d.RemoteID] = true
	}
	updates := make(map[int]*arr.CustomFormat, len(plan.Updates))
	for i := range plan.Updates {
		updates[plan.Updates[i].Payload.ID] = plan.Updates[i].Payload
	}

	nextID := 0
	var after []arr.CustomFormat
	for i := range instance {
		if instance[i].ID > nextID {
			nextID = instance[i].ID
		}
		if deleted[instance[i].ID] {
			continue
		}
		if upd, ok := updates[instance[i].ID]; ok {
			after = append(after, *upd)
			continue
		}
		after = append(after, instance[i])
	}
	for i := range plan.Creates {
		nextID++
		created := *plan.Creates[i].Payload
		created.ID = nextID
		after = append(after, created)
	}
	return after
}

func simulateTracked(tracked map[string]int, plan *Plan) map[string]int {
	next := make(map[string]int, len(tracked))
	for k, v := range tracked {
		next[k] = v
	}
	for _, d := range plan.Deletes {
		delete(next, d.TrashID)
	}
	return next
}
