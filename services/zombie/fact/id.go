// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fact

import (
	"fmt"
	"strings"
)

// idSeparator joins the three components of a canonical symbol ID.
// Component values must not contain it.
const idSeparator = "::"

// NormalizePath converts a repo-relative path to forward slashes and
// strips any leading "./". Windows extractors emit backslashes; the graph
// must treat both spellings of the same file as one node.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.TrimPrefix(p, "./")
	return p
}

// GenerateID builds the canonical Repo::Path::Symbol identifier.
//
// Description:
//
//	Produces the stable, human-readable ID used everywhere in the engine:
//	symbol table keys, snapshot records, query parameters. The path is
//	normalized so the same file always yields the same ID regardless of
//	the extractor's platform.
//
// Inputs:
//
//	repo - Repository identifier (e.g. "billing-service").
//	path - Repo-relative file path.
//	symbol - Qualified symbol name within the file.
//
// Outputs:
//
//	The canonical ID string.
//
// Example:
//
//	id := fact.GenerateID("billing", "src/invoice.py", "Invoice.total")
//	// "billing::src/invoice.py::Invoice.total"
func GenerateID(repo, path, symbol string) string {
	return repo + idSeparator + NormalizePath(path) + idSeparator + symbol
}

// ParseID splits a canonical ID back into its components.
//
// The symbol component may itself contain "::" (nested C++ names), so the
// split is anchored on the first two separators only. Returns an error if
// any component is empty or the separators are missing.
func ParseID(id string) (repo, path, symbol string, err error) {
	parts := strings.SplitN(id, idSeparator, 3)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("malformed symbol ID %q: want Repo::Path::Symbol", id)
	}
	if parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("malformed symbol ID %q: empty component", id)
	}
	return parts[0], parts[1], parts[2], nil
}
