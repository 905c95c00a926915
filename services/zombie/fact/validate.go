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
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyRepoID indicates FileFacts without a repository identifier.
	ErrEmptyRepoID = errors.New("facts have empty repo ID")

	// ErrEmptyFilePath indicates FileFacts without a file path.
	ErrEmptyFilePath = errors.New("facts have empty file path")

	// ErrPathTraversal indicates a file path containing "..".
	ErrPathTraversal = errors.New("file path contains traversal sequence")
)

// Validate checks the structural integrity of a fact set before ingestion.
//
// Structural problems (empty identifiers, path traversal, symbols claiming
// a different file) fail the whole file. Content-level anomalies such as
// duplicate symbol IDs are deliberately not errors here: the symbol table
// records them as diagnostics so one bad declaration cannot sink an
// otherwise usable file.
func (f *FileFacts) Validate() error {
	if f.RepoID == "" {
		return ErrEmptyRepoID
	}
	if strings.Contains(f.RepoID, idSeparator) {
		return fmt.Errorf("repo ID %q contains reserved separator", f.RepoID)
	}
	if f.FilePath == "" {
		return ErrEmptyFilePath
	}
	norm := NormalizePath(f.FilePath)
	for _, seg := range strings.Split(norm, "/") {
		if seg == ".." {
			return fmt.Errorf("%w: %q", ErrPathTraversal, f.FilePath)
		}
	}
	for i := range f.Symbols {
		s := &f.Symbols[i]
		if s.ID == "" {
			return fmt.Errorf("symbol %d (%q) has empty ID", i, s.Name)
		}
		if s.Name == "" {
			return fmt.Errorf("symbol %d (%s) has empty name", i, s.ID)
		}
		repo, path, _, err := ParseID(s.ID)
		if err != nil {
			return err
		}
		if repo != f.RepoID || path != norm {
			return fmt.Errorf("symbol %s declared outside its file %s/%s", s.ID, f.RepoID, norm)
		}
	}
	for i := range f.References {
		r := &f.References[i]
		if r.FromID == "" || r.TargetName == "" {
			return fmt.Errorf("reference %d has empty endpoint", i)
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			return fmt.Errorf("reference %d has confidence %v outside [0,1]", i, r.Confidence)
		}
	}
	for i := range f.Fragments {
		// Mapper statements declare their own node and need no owner.
		if f.Fragments[i].OwnerID == "" && f.Fragments[i].Kind != FragmentMapperStatement {
			return fmt.Errorf("fragment %d has no owner", i)
		}
	}
	return nil
}
