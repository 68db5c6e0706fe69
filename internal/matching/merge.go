package matching

import (
	"time"

	"gameshelf/internal/catalog"
)

// providerResult is one provider's answer, tagged with its registration.
type providerResult struct {
	reg  Registered
	meta *Metadata
}

// merge folds results into a single entry. results must already be ordered by
// descending priority.
func merge(results []providerResult, now time.Time) *catalog.Entry {
	merged := &catalog.Entry{
		Metadata: catalog.Metadata{
			Fields:      make(map[catalog.Field]catalog.Provenance, len(catalog.Fields)),
			ExternalIDs: make(map[string]string, len(results)),
		},
	}
	for _, res := range results {
		id := res.reg.Provider.ID()
		if res.meta.ExternalID != "" {
			merged.Metadata.ExternalIDs[id] = res.meta.ExternalID
		}
		src := toEntry(res.meta)
		prov := catalog.ProviderSourced(id, now)
		for _, field := range catalog.Fields {
			if merged.Provenance(field).IsSet() || src.IsEmpty(field) {
				continue
			}
			merged.SetFrom(field, src, prov)
		}
		merged.CoverCandidates = appendDistinct(merged.CoverCandidates, res.meta.CoverURLs, id)
		merged.HeaderCandidates = appendDistinct(merged.HeaderCandidates, res.meta.HeaderURLs, id)
	}
	return merged
}

func appendDistinct(dst []catalog.SourcedURL, urls []string, providerID string) []catalog.SourcedURL {
	for _, url := range urls {
		if url == "" {
			continue
		}
		candidate := catalog.SourcedURL{URL: url, ProviderID: providerID}
		seen := false
		for _, existing := range dst {
			if existing == candidate {
				seen = true
				break
			}
		}
		if !seen {
			dst = append(dst, candidate)
		}
	}
	return dst
}
