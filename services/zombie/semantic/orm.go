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

	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
	"github.com/AleutianAI/ZombieGraph/services/zombie/graph"
)

const (
	ormDetectorName = "orm"

	ormMapConfidence       = 0.9
	ormFieldConfidence     = 0.8
	ormStatementConfidence = 0.95
)

// ormTableRe pulls a table name out of common mapping annotation shapes:
// JPA @Table(name = "users"), SQLAlchemy __tablename__ = "users",
// Rails-ish self.table_name = "users".
var ormTableRe = regexp.MustCompile(`(?i)(?:@table\s*\(\s*name\s*=\s*|__tablename__\s*=\s*|table_name\s*=\s*)["']([A-Za-z_][\w.]*)["']`)

// ormNamespaceRe and ormStatementIDRe pull the namespace and statement id
// out of raw mapper-file XML when the extractor did not parse Attrs:
// <mapper namespace="com.x.UserMapper"> ... <select id="getUser">.
var (
	ormNamespaceRe   = regexp.MustCompile(`(?i)namespace\s*=\s*["']([\w.$]+)["']`)
	ormStatementIDRe = regexp.MustCompile(`(?i)\bid\s*=\s*["'](\w+)["']`)
)

// ormDetector links ORM evidence to the symbols it binds.
//
// Annotation mappings: the extractor attaches one FragmentORMMapping per
// mapping annotation, owned by the entity class (whole-table mapping,
// Maps edge) or by a field symbol (column mapping, Uses edge). The table
// name comes from the parsed Attrs when the extractor provided it,
// otherwise from a lexical scan of the raw annotation text.
//
// Mapper statements: mapper files contribute one FragmentMapperStatement
// per (namespace, id) statement. Each statement is interned as its own
// symbol; a declared method whose qualified name equals "namespace.id"
// gets an Implements edge to that statement node. The full statement
// index is built before any linking so a method is never matched against
// a partial index.
type ormDetector struct{}

func (d *ormDetector) Name() string { return ormDetectorName }

func (d *ormDetector) Detect(_ context.Context, c *Corpus, out *Result) error {
	statements, err := d.indexStatements(c)
	if err != nil {
		return err
	}
	d.linkStatements(c, statements, out)

	for _, f := range c.Files {
		sourceKey := f.SourceKey()
		for i := range f.Fragments {
			fr := &f.Fragments[i]
			if fr.Kind != fact.FragmentORMMapping {
				continue
			}
			tableName := fr.Attrs["table"]
			if tableName == "" {
				if m := ormTableRe.FindStringSubmatch(fr.Text); m != nil {
					tableName = m[1]
				}
			}
			if tableName == "" {
				continue
			}
			table, ok := c.LookupTable(tableName)
			if !ok {
				out.Unresolved = append(out.Unresolved, Unresolved{
					Detector:   ormDetectorName,
					OwnerID:    fr.OwnerID,
					TargetName: tableName,
					Location:   fr.Location,
				})
				continue
			}

			edgeType := graph.EdgeMaps
			confidence := ormMapConfidence
			if ownerIsField(c, fr.OwnerID) {
				edgeType = graph.EdgeUses
				confidence = ormFieldConfidence
			}
			out.Links = append(out.Links, Link{
				FromID:     fr.OwnerID,
				ToID:       table.ID,
				Type:       edgeType,
				Confidence: confidence,
				Detector:   ormDetectorName,
				SourceFile: sourceKey,
				Location:   fr.Location,
			})
		}
	}
	return nil
}

func ownerIsField(c *Corpus, ownerID string) bool {
	s, ok := c.SymbolByID(ownerID)
	return ok && s.Kind == fact.KindField
}

// mapperStatement is one indexed (namespace, id) pair with its interned
// statement symbol.
type mapperStatement struct {
	sym       fact.Symbol
	sourceKey string
}

// indexStatements interns a statement symbol for every mapper-statement
// fragment in the corpus. Fragments missing both parsed Attrs and a
// recognizable namespace/id in their raw text are skipped.
func (d *ormDetector) indexStatements(c *Corpus) ([]mapperStatement, error) {
	var statements []mapperStatement
	for _, f := range c.Files {
		sourceKey := f.SourceKey()
		for i := range f.Fragments {
			fr := &f.Fragments[i]
			if fr.Kind != fact.FragmentMapperStatement {
				continue
			}
			namespace := fr.Attrs["namespace"]
			id := fr.Attrs["id"]
			if namespace == "" {
				if m := ormNamespaceRe.FindStringSubmatch(fr.Text); m != nil {
					namespace = m[1]
				}
			}
			if id == "" {
				if m := ormStatementIDRe.FindStringSubmatch(fr.Text); m != nil {
					id = m[1]
				}
			}
			if namespace == "" || id == "" {
				continue
			}
			qualified := namespace + "." + id
			sym := fact.Symbol{
				ID:            fact.GenerateID(f.RepoID, f.FilePath, qualified),
				Name:          id,
				QualifiedName: qualified,
				Kind:          fact.KindStatement,
				RepoID:        f.RepoID,
				FilePath:      f.FilePath,
				Location:      fr.Location,
			}
			if _, _, err := c.Table.Intern(sym); err != nil {
				return nil, fmt.Errorf("interning mapper statement %q: %w", qualified, err)
			}
			statements = append(statements, mapperStatement{sym: sym, sourceKey: sourceKey})
		}
	}
	return statements, nil
}

// linkStatements emits an Implements edge from every declared method or
// function whose qualified name equals a statement's "namespace.id". A
// statement with no matching method is recorded as unresolved and
// nothing else happens; the method keeps whatever reachability its other
// edges give it.
func (d *ormDetector) linkStatements(c *Corpus, statements []mapperStatement, out *Result) {
	for _, st := range statements {
		matched := false
		for _, s := range c.LookupSymbols(st.sym.QualifiedName) {
			if s.Kind != fact.KindMethod && s.Kind != fact.KindFunction {
				continue
			}
			matched = true
			out.Links = append(out.Links, Link{
				FromID:     s.ID,
				ToID:       st.sym.ID,
				Type:       graph.EdgeImplements,
				Confidence: ormStatementConfidence,
				Detector:   ormDetectorName,
				SourceFile: st.sourceKey,
				Location:   st.sym.Location,
			})
		}
		if !matched {
			out.Unresolved = append(out.Unresolved, Unresolved{
				Detector:   ormDetectorName,
				OwnerID:    st.sym.ID,
				TargetName: st.sym.QualifiedName,
				Location:   st.sym.Location,
			})
		}
	}
}
