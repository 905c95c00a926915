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
	"fmt"
	"regexp"
	"strings"

	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
	"github.com/AleutianAI/ZombieGraph/services/zombie/graph"
)

const (
	procedureDetectorName = "stored_procedure"

	procDeclaredConfidence = 0.85
	procPhantomConfidence  = 0.75

	// PhantomRepo is the synthetic repository holding phantom symbols
	// for database-side entities referenced but never declared in any
	// ingested file.
	PhantomRepo = "external"

	// PhantomMetadataKey marks phantom symbols in Symbol.Metadata.
	PhantomMetadataKey = "phantom"
)

// procCallRe matches procedure invocations in call-site fragment text:
// "CALL refresh_totals(...)", "EXEC dbo.sp_rollup", "EXECUTE cleanup".
var procCallRe = regexp.MustCompile(`(?i)\b(?:call|exec(?:ute)?)\s+([A-Za-z_][\w.]*)`)

// procedureDetector links code call sites to stored procedures.
//
// A procedure that is invoked but never declared still gets a node: the
// detector interns a phantom symbol under the "external" repository so
// reachability can flow through the database boundary instead of
// silently truncating at it.
type procedureDetector struct{}

func (d *procedureDetector) Name() string { return procedureDetectorName }

func (d *procedureDetector) Detect(_ context.Context, c *Corpus, out *Result) error {
	for _, f := range c.Files {
		sourceKey := f.SourceKey()
		for i := range f.Fragments {
			fr := &f.Fragments[i]
			if fr.Kind != fact.FragmentProcedureCall {
				continue
			}
			procName := fr.Attrs["procedure"]
			if procName == "" {
				if m := procCallRe.FindStringSubmatch(fr.Text); m != nil {
					procName = m[1]
				}
			}
			if procName == "" {
				continue
			}

			target, declared := c.LookupProcedure(procName)
			confidence := procDeclaredConfidence
			if !declared {
				phantom, created, err := internPhantomProcedure(c, procName)
				if err != nil {
					return err
				}
				if created {
					out.PhantomsCreated++
				}
				target = phantom
				confidence = procPhantomConfidence
			}

			out.Links = append(out.Links, Link{
				FromID:     fr.OwnerID,
				ToID:       target.ID,
				Type:       graph.EdgeInvokes,
				Confidence: confidence,
				Detector:   procedureDetectorName,
				SourceFile: sourceKey,
				Location:   fr.Location,
			})
		}
	}
	return nil
}

// internPhantomProcedure registers (or finds) the phantom symbol for an
// undeclared procedure. The ID uses the lowercased unqualified name so
// "CALL dbo.Cleanup" and "exec cleanup" share one node.
func internPhantomProcedure(c *Corpus, rawName string) (fact.Symbol, bool, error) {
	name := strings.ToLower(rawName)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	sym := fact.Symbol{
		ID:       fact.GenerateID(PhantomRepo, "procedures", name),
		Name:     name,
		Kind:     fact.KindProcedure,
		RepoID:   PhantomRepo,
		FilePath: "procedures",
		Metadata: map[string]string{PhantomMetadataKey: "true"},
	}
	_, created, err := c.Table.Intern(sym)
	if err != nil {
		return fact.Symbol{}, false, fmt.Errorf("interning phantom procedure %q: %w", name, err)
	}
	if created {
		// Make the phantom visible to later lookups in this run.
		c.proceduresByName[name] = sym
		c.symbolsByID[sym.ID] = sym
	}
	return sym, created, nil
}

// IsPhantom reports whether a symbol is a detector-created phantom.
func IsPhantom(s *fact.Symbol) bool {
	return s.Metadata[PhantomMetadataKey] == "true"
}
