// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package roots

import (
	"strings"

	"github.com/AleutianAI/ZombieGraph/services/zombie/fact"
)

// builtinAnnotations maps known framework markers to root kinds. Matching
// is substring-based over the raw annotation text, so parameterized forms
// ("@Scheduled(cron = ...)") match too.
var builtinAnnotations = []struct {
	marker string
	kind   Kind
}{
	// Spring / JVM web.
	{"@RestController", KindController},
	{"@Controller", KindController},
	{"@RequestMapping", KindEndpoint},
	{"@GetMapping", KindEndpoint},
	{"@PostMapping", KindEndpoint},
	// Schedulers.
	{"@Scheduled", KindScheduler},
	{"@Cron", KindScheduler},
	// Event and message listeners.
	{"@EventListener", KindListener},
	{"@KafkaListener", KindListener},
	{"@RabbitListener", KindListener},
	{"@JmsListener", KindListener},
	// Python web decorators.
	{"@app.route", KindEndpoint},
	{"@router.", KindEndpoint},
	{"@api_view", KindEndpoint},
	// ASP.NET attributes.
	{"[ApiController", KindController},
	{"[Route", KindEndpoint},
	{"[HttpGet", KindEndpoint},
	{"[HttpPost", KindEndpoint},
}

// matchBuiltin applies the built-in structural and annotation rules.
func matchBuiltin(s *fact.Symbol, includeTests bool) (Kind, string, bool) {
	for _, b := range builtinAnnotations {
		if hasAnnotation(s, b.marker) {
			return b.kind, "builtin:annotation:" + b.marker, true
		}
	}

	switch s.Kind {
	case fact.KindEndpoint:
		return KindEndpoint, "builtin:kind:endpoint", true
	case fact.KindJob:
		return KindScheduler, "builtin:kind:job", true
	}

	if isMainFunction(s) {
		return KindMain, "builtin:main", true
	}

	if includeTests && isTestSymbol(s) {
		return KindTest, "builtin:test", true
	}

	return "", "", false
}

func isMainFunction(s *fact.Symbol) bool {
	if s.Kind != fact.KindFunction {
		return false
	}
	switch s.Name {
	case "main", "Main", "__main__":
		return true
	}
	return false
}

func isTestSymbol(s *fact.Symbol) bool {
	if s.Kind != fact.KindFunction && s.Kind != fact.KindMethod {
		return false
	}
	if strings.HasPrefix(s.Name, "Test") || strings.HasPrefix(s.Name, "test_") {
		return true
	}
	p := fact.NormalizePath(s.FilePath)
	return strings.HasSuffix(p, "_test.go") || strings.Contains(p, "/tests/")
}
