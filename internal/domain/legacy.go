package domain

// legacyToCanonical maps deprecated flat category names to their canonical
// dotted identifiers. The table is a fixed bijection; feeds and bulk dumps
// still tag old papers with the legacy form.
var legacyToCanonical = map[string]string{
	"chem-ph":  "physics.chem-ph",
	"alg-geom": "math.AG",
	"cmp-lg":   "cs.CL",
	"acc-phys": "physics.acc-ph",
	"adap-org": "nlin.AO",
	"chao-dyn": "nlin.CD",
	"ao-sci":   "physics.ao-ph",
	"plasm-ph": "physics.plasm-ph",
	"supr-con": "cond-mat.supr-con",
	"funct-an": "math.FA",
	"dg-ga":    "math.DG",
	"patt-sol": "nlin.PS",
	"q-alg":    "math.QA",
	"bayes-an": "physics.data-an",
	"mtrl-th":  "cond-mat.mtrl-sci",
	"comp-gas": "nlin.CG",
	"solv-int": "nlin.SI",
	"atom-ph":  "physics.atom-ph",
}

var canonicalToLegacy = func() map[string]string {
	m := make(map[string]string, len(legacyToCanonical))
	for legacy, canonical := range legacyToCanonical {
		m[canonical] = legacy
	}
	return m
}()

// CanonicalIdentifier maps a legacy category string to its canonical form.
// Strings without a legacy alias pass through unchanged.
func CanonicalIdentifier(s string) string {
	if canonical, ok := legacyToCanonical[s]; ok {
		return canonical
	}
	return s
}

// LegacyIdentifier returns the legacy alias for a canonical identifier
// string, if one exists.
func LegacyIdentifier(s string) (string, bool) {
	legacy, ok := canonicalToLegacy[s]
	return legacy, ok
}

// LegacyEquivalents synthesizes, for every category whose canonical
// identifier has a legacy alias, a category carrying the legacy identifier
// and the same metadata. Feeds that tag papers with old-style strings then
// still match during enrichment.
func LegacyEquivalents(categories []Category) []Category {
	var out []Category
	for _, c := range categories {
		legacy, ok := canonicalToLegacy[c.ID.String()]
		if !ok {
			continue
		}
		id, err := ParseCategoryID(legacy)
		if err != nil {
			continue
		}
		out = append(out, Category{
			ID:           id,
			ArchiveName:  c.ArchiveName,
			CategoryName: c.CategoryName,
			Description:  c.Description,
		})
	}
	return out
}
