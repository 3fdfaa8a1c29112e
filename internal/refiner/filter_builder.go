package refiner

import (
	"strings"

	"snaportho-caseprep/internal/vectorstore"
)

// BuildFilter maps refined-query tokens onto a metadata filter over the
// specialty and region fields. It is deterministic and makes no external
// calls. Tokens that match neither synonym map are ignored; when nothing
// matches at all the result is nil, which callers must treat as "no
// filtering", not an error.
func BuildFilter(refinedQuery string) *vectorstore.Filter {
	specialties := make(map[string]struct{})
	regions := make(map[string]struct{})

	for _, token := range strings.Split(refinedQuery, ",") {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}

		if canonical, ok := specialtySynonyms[token]; ok {
			specialties[canonical] = struct{}{}
		}
		if aliases, ok := regionSynonyms[token]; ok {
			for _, alias := range aliases {
				regions[alias] = struct{}{}
			}
		}
	}

	var clauses []*vectorstore.Filter
	if len(specialties) > 0 {
		clauses = append(clauses, vectorstore.In("specialty", setToSlice(specialties)))
	}
	if len(regions) > 0 {
		clauses = append(clauses, vectorstore.In("region", setToSlice(regions)))
	}

	return vectorstore.And(clauses...)
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	return out
}
