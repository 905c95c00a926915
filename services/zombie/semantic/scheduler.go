// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package semantic

import (
	"context"
	"regexp"

	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
	"github.com/AleutianAI/ZombieGraph/services/zombie/graph"
)

const (
	schedulerDetectorName = "scheduler"

	schedulerConfidence = 0.9
)

// schedulerTargetRe extracts the job reference from scheduler entry text
// when the extractor did not parse it: crontab-style lines whose command
// tail names a job ("0 3 * * * run_job nightly_rollup") or explicit
// job = "name" / method = "name" attributes in scheduler config.
var schedulerTargetRe = regexp.MustCompile(`(?i)(?:job|method|task|target)\s*[:=]\s*["']?([A-Za-z_][\w.]*)["']?`)

// schedulerDetector links scheduler entries to the jobs they trigger.
//
// The owning symbol is whatever declares the schedule (a config entry, a
// @Scheduled-annotated method's class, a job-runner registration); the
// Triggers edge points at the job symbol. Trigger targets are also
// reported as root candidates, since a scheduler firing them makes them
// externally reachable even when no code calls them.
type schedulerDetector struct{}

func (d *schedulerDetector) Name() string { return schedulerDetectorName }

func (d *schedulerDetector) Detect(_ context.Context, c *Corpus, out *Result) error {
	for _, f := range c.Files {
		sourceKey := f.SourceKey()
		for i := range f.Fragments {
			fr := &f.Fragments[i]
			if fr.Kind != fact.FragmentSchedulerEntry {
				continue
			}
			targetName := fr.Attrs["target"]
			if targetName == "" {
				if m := schedulerTargetRe.FindStringSubmatch(fr.Text); m != nil {
					targetName = m[1]
				}
			}
			if targetName == "" {
				continue
			}

			target, ok := pickJobSymbol(c.LookupSymbols(targetName))
			if !ok {
				out.Unresolved = append(out.Unresolved, Unresolved{
					Detector:   schedulerDetectorName,
					OwnerID:    fr.OwnerID,
					TargetName: targetName,
					Location:   fr.Location,
				})
				continue
			}

			if fr.OwnerID != target.ID {
				out.Links = append(out.Links, Link{
					FromID:     fr.OwnerID,
					ToID:       target.ID,
					Type:       graph.EdgeTriggers,
					Confidence: schedulerConfidence,
					Detector:   schedulerDetectorName,
					SourceFile: sourceKey,
					Location:   fr.Location,
				})
			}
			out.RootCandidates = append(out.RootCandidates, target.ID)
		}
	}
	return nil
}

// pickJobSymbol prefers job symbols, then callables, then anything with
// the name. Earliest declaration wins within a kind.
func pickJobSymbol(candidates []fact.Symbol) (fact.Symbol, bool) {
	if len(candidates) == 0 {
		return fact.Symbol{}, false
	}
	for _, kind := range []fact.SymbolKind{fact.KindJob, fact.KindFunction, fact.KindMethod} {
		for _, s := range candidates {
			if s.Kind == kind {
				return s, true
			}
		}
	}
	return candidates[0], true
}
