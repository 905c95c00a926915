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
	"strings"

	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
	"github.com/AleutianAI/ZombieGraph/services/zombie/graph"
)

const (
	sqlDetectorName = "sql"

	sqlConfidence = 0.8
)

// sqlTableRe extracts table names from the clauses that introduce them.
// Lexical, not a SQL parser: good enough for the common statement shapes
// embedded in application code, and unresolved names fall out as
// diagnostics rather than wrong edges.
var sqlTableRe = regexp.MustCompile(`(?i)\b(?:from|join|into|update)\s+([A-Za-z_][\w.]*)`)

// sqlFirstKeywordRe finds the leading statement keyword, skipping
// whitespace and a WITH ... prefix is handled separately.
var sqlFirstKeywordRe = regexp.MustCompile(`(?i)^\s*([a-z]+)`)

// sqlAccessDetector links code symbols to the tables their embedded SQL
// touches: Reads for SELECT, Writes for data modification, Queries when
// the statement kind cannot be determined.
type sqlAccessDetector struct{}

func (d *sqlAccessDetector) Name() string { return sqlDetectorName }

func (d *sqlAccessDetector) Detect(_ context.Context, c *Corpus, out *Result) error {
	for _, f := range c.Files {
		sourceKey := f.SourceKey()
		for i := range f.Fragments {
			fr := &f.Fragments[i]
			if fr.Kind != fact.FragmentSQL {
				continue
			}
			edgeType := classifyStatement(fr.Text)
			seen := make(map[string]bool)
			for _, m := range sqlTableRe.FindAllStringSubmatch(fr.Text, -1) {
				name := m[1]
				lower := strings.ToLower(name)
				if seen[lower] || sqlNoise[lower] {
					continue
				}
				seen[lower] = true

				table, ok := c.LookupTable(name)
				if !ok {
					out.Unresolved = append(out.Unresolved, Unresolved{
						Detector:   sqlDetectorName,
						OwnerID:    fr.OwnerID,
						TargetName: name,
						Location:   fr.Location,
					})
					continue
				}
				out.Links = append(out.Links, Link{
					FromID:     fr.OwnerID,
					ToID:       table.ID,
					Type:       edgeType,
					Confidence: sqlConfidence,
					Detector:   sqlDetectorName,
					SourceFile: sourceKey,
					Location:   fr.Location,
				})
			}
		}
	}
	return nil
}

// sqlNoise filters keywords the table regex can capture in nested
// statements ("SELECT ... FROM (SELECT ...)").
var sqlNoise = map[string]bool{
	"select": true, "where": true, "values": true, "set": true, "dual": true,
}

func classifyStatement(text string) graph.EdgeType {
	m := sqlFirstKeywordRe.FindStringSubmatch(text)
	if m == nil {
		return graph.EdgeQueries
	}
	keyword := strings.ToUpper(m[1])
	if keyword == "WITH" {
		// CTE prefix: classify by the statement after the CTE bodies.
		rest := strings.ToUpper(text)
		for _, kw := range []string{"INSERT", "UPDATE", "DELETE", "MERGE"} {
			if strings.Contains(rest, kw+" ") {
				return graph.EdgeWrites
			}
		}
		return graph.EdgeReads
	}
	switch keyword {
	case "SELECT":
		return graph.EdgeReads
	case "INSERT", "UPDATE", "DELETE", "MERGE", "REPLACE", "TRUNCATE":
		return graph.EdgeWrites
	default:
		return graph.EdgeQueries
	}
}
