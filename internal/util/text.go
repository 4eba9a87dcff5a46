package util

import "strings"

// greekToLatin maps uppercase Greek letters to the visually similar Latin
// letters the source document actually prints. The extraction model emits
// Greek homoglyphs for some codes, so comparison happens post-translation.
var greekToLatin = strings.NewReplacer(
	"Τ", "T", "Ν", "N", "Ι", "I", "Α", "A", "Β", "B", "Γ", "G",
	"Δ", "D", "Ε", "E", "Ζ", "Z", "Η", "H", "Θ", "TH", "Κ", "K",
	"Λ", "L", "Μ", "M", "Ξ", "X", "Ο", "O", "Π", "P", "Ρ", "R",
	"Σ", "S", "Υ", "Y", "Φ", "F", "Χ", "CH", "Ψ", "PS", "Ω", "W",
)

// codeCorrections is a curated wrong→right table of full product codes the
// model has been observed to misread (digit "1" where the letter "I" is
// printed). Matched literally, never fuzzily.
var codeCorrections = [][2]string{
	{"US05132045M10800", "US05132045MI0800"},
	{"US05132045M10900", "US05132045MI0900"},
	{"UT05125045M10800", "UT05125045MI0800"},
	{"GSW0410800B", "GSW04I0800B"},
	{"GSW0411000B", "GSW04I1000B"},
	{"GSC0810800B", "GSC08I0800B"},
	{"GSC0811000B", "GSC08I1000B"},
}

// NormalizeCode translates Greek homoglyphs to Latin. Idempotent: the output
// contains no Greek letters, so a second application is a no-op.
func NormalizeCode(input string) string {
	return greekToLatin.Replace(input)
}

// CorrectCode applies the literal misread-code substitutions.
func CorrectCode(input string) string {
	out := input
	for _, c := range codeCorrections {
		if strings.Contains(out, c[0]) {
			out = strings.ReplaceAll(out, c[0], c[1])
		}
	}
	return out
}

// MergeKey builds the identity key used for deduplication: correction first,
// then homoglyph normalization, per the order the misreads occur in.
func MergeKey(code string) string {
	return NormalizeCode(CorrectCode(strings.TrimSpace(code)))
}
