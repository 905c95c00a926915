// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fact defines the ingestion contract for the zombie-code engine.
//
// Language-specific extractors run outside this module and emit one
// FileFacts value per source file: the symbols the file declares, the
// references it makes, and the raw fragments (SQL strings, mapping
// annotations, scheduler entries) that semantic detectors mine later.
// Everything downstream of this package is language-agnostic.
//
// # Ownership Model
//
// FileFacts values are owned by the caller until handed to the ingestion
// coordinator, after which they must not be mutated. The engine never
// mutates facts; incremental refresh replaces whole FileFacts values.
//
// # Thread Safety
//
// All types in this package are plain data with no internal
// synchronization. Share them read-only.
package fact

// SymbolKind classifies a declared symbol.
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindClass     SymbolKind = "class"
	KindInterface SymbolKind = "interface"
	KindField     SymbolKind = "field"
	KindVariable  SymbolKind = "variable"
	KindTable     SymbolKind = "table"
	KindProcedure SymbolKind = "procedure"
	KindStatement SymbolKind = "statement"
	KindJob       SymbolKind = "job"
	KindEndpoint  SymbolKind = "endpoint"
	KindConfigKey SymbolKind = "config_key"
	KindModule    SymbolKind = "module"
	KindUnknown   SymbolKind = "unknown"
)

// Visibility is the declared access level of a symbol.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityProtected Visibility = "protected"
	VisibilityPrivate   Visibility = "private"
	VisibilityPackage   Visibility = "package"
)

// Location is a position within a source file.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Symbol is a single declared code entity.
//
// ID must be in the canonical Repo::Path::Symbol form produced by
// GenerateID. Annotations carry raw decorator/attribute text exactly as
// written in the source ("@Scheduled(cron = \"0 0 * * *\")"); root
// detection and semantic detectors pattern-match against them.
type Symbol struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	QualifiedName string            `json:"qualified_name,omitempty"`
	Kind          SymbolKind        `json:"kind"`
	Language      string            `json:"language,omitempty"`
	RepoID        string            `json:"repo_id"`
	FilePath      string            `json:"file_path"`
	Location      Location          `json:"location"`
	Visibility    Visibility        `json:"visibility,omitempty"`
	Exported      bool              `json:"exported"`
	Annotations   []string          `json:"annotations,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// RefKind classifies a reference from one symbol to another.
type RefKind string

const (
	RefCall       RefKind = "call"
	RefImport     RefKind = "import"
	RefExtends    RefKind = "extends"
	RefImplements RefKind = "implements"
	RefUsesType   RefKind = "uses_type"
	RefReads      RefKind = "reads"
	RefWrites     RefKind = "writes"
	RefReference  RefKind = "reference"
)

// Reference is one use of a name by a declared symbol. The target is a
// name, not an ID: resolution to a concrete symbol happens in the graph
// builder after all files have been collected.
//
// Confidence is the extractor's own certainty hint in [0,1]; zero means
// "unset" and is treated as full confidence by the builder.
type Reference struct {
	FromID          string   `json:"from_id"`
	TargetName      string   `json:"target_name"`
	TargetQualified string   `json:"target_qualified,omitempty"`
	Kind            RefKind  `json:"kind"`
	Location        Location `json:"location"`
	Confidence      float64  `json:"confidence,omitempty"`
}

// FragmentKind classifies a non-symbol piece of evidence.
type FragmentKind string

const (
	FragmentSQL             FragmentKind = "sql"
	FragmentORMMapping      FragmentKind = "orm_mapping"
	FragmentMapperStatement FragmentKind = "mapper_statement"
	FragmentProcedureCall   FragmentKind = "procedure_call"
	FragmentSchedulerEntry  FragmentKind = "scheduler_entry"
)

// Fragment is raw evidence attached to a declaring symbol, consumed by
// semantic detectors. Text is the fragment verbatim (a SQL string literal,
// an annotation body, a crontab line). Attrs carries extractor-parsed
// key/value pairs where available (e.g. "table" for ORM mappings).
type Fragment struct {
	Kind     FragmentKind      `json:"kind"`
	OwnerID  string            `json:"owner_id"`
	Text     string            `json:"text"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Location Location          `json:"location"`
}

// FileFacts is everything an extractor learned about one source file.
// ContentHash is an opaque digest of the file contents; the store uses it
// to short-circuit re-ingestion of unchanged files.
type FileFacts struct {
	RepoID      string      `json:"repo_id"`
	FilePath    string      `json:"file_path"`
	ContentHash string      `json:"content_hash"`
	Language    string      `json:"language,omitempty"`
	Symbols     []Symbol    `json:"symbols"`
	References  []Reference `json:"references,omitempty"`
	Fragments   []Fragment  `json:"fragments,omitempty"`
}

// SourceKey returns the graph-wide identity of this file, used to tag
// edges for incremental removal.
func (f *FileFacts) SourceKey() string {
	return f.RepoID + "::" + NormalizePath(f.FilePath)
}
