package usecase

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pricescout/backend/internal/domain"
)

// Attribute kinds DetectSpecs understands
const (
	SpecMemory    = "memory"
	SpecStorage   = "storage"
	SpecDisplay   = "display"
	SpecProcessor = "processor"
	SpecColor     = "color"
	SpecSize      = "size"
)

// specKinds is the order attributes are detected and listed in Raw
var specKinds = []string{SpecMemory, SpecStorage, SpecDisplay, SpecProcessor, SpecColor, SpecSize}

type specRule struct {
	pattern *regexp.Regexp
	format  func(m []string) string
}

func capacity(m []string) string { return m[1] + strings.ToUpper(m[2]) }

func gigabytes(m []string) string { return m[1] + "GB" }

func inches(m []string) string { return m[1] + " inch" }

func verbatim(m []string) string { return strings.Join(strings.Fields(m[1]), " ") }

func upperCased(m []string) string { return strings.ToUpper(m[1]) }

// specRules are tried in order per kind; the first match wins
var specRules = map[string][]specRule{
	SpecMemory: {
		{regexp.MustCompile(`(?i)\b(\d+)\s*GB\s*(?:of\s+)?(?:RAM|memory|LPDDR\d\w*|DDR\d)\b`), gigabytes},
		{regexp.MustCompile(`(?i)\bRAM[:\s]*(\d+)\s*GB\b`), gigabytes},
	},
	SpecStorage: {
		{regexp.MustCompile(`(?i)\b(\d+)\s*(GB|TB)\s*(?:SSD|HDD|NVMe|storage|ROM|internal)\b`), capacity},
		{regexp.MustCompile(`(?i)\b(?:SSD|HDD|NVMe)[:\s]*(\d+)\s*(GB|TB)\b`), capacity},
	},
	SpecDisplay: {
		{regexp.MustCompile(`(?i)\b(\d{1,3}(?:\.\d{1,2})?)\s*(?:["”]|''|-?inch|אינץ)`), inches},
		{regexp.MustCompile(`(?i)\b(\d{1,3}(?:\.\d{1,2})?)\s*["']?\s*display\b`), inches},
	},
	SpecProcessor: {
		{regexp.MustCompile(`(?i)\b(i[3579]-\d{4,5}[a-z]*)\b`), verbatim},
		{regexp.MustCompile(`(?i)\b(ryzen\s*[3579]\s*\d{4}[a-z0-9]*)\b`), verbatim},
		{regexp.MustCompile(`(?i)\b(m[1-4](?:\s+(?:pro|max|ultra))?)\b`), verbatim},
		{regexp.MustCompile(`(?i)\b(snapdragon\s*\d+(?:\s*gen\s*\d)?)\b`), verbatim},
		{regexp.MustCompile(`(?i)\b(a\d{2}\s*bionic)\b`), verbatim},
	},
	SpecColor: {
		{regexp.MustCompile(`(?i)\b(rose\s*gold|space\s*gr[ae]y|midnight(?:\s+blue)?|starlight|black|white|silver|gold|gr[ae]y|blue|red|green|pink|purple)\b`), verbatim},
		{regexp.MustCompile(`(שחור|לבן|כסוף|זהב|אפור|כחול|אדום|ירוק|ורוד|סגול)`), verbatim},
	},
	SpecSize: {
		{regexp.MustCompile(`(?i)\bsize[:\s]*(\d+(?:\.\d+)?|XXXL|XXL|XL|XS|S|M|L)\b`), upperCased},
		{regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(mm|cm)\b`), func(m []string) string { return m[1] + strings.ToLower(m[2]) }},
		// letter sizes only in capitals so words like "m" in prose stay out
		{regexp.MustCompile(`\b(XXXL|XXL|XL|XS|S|M|L)\b`), verbatim},
	},
}

// bareCapacityPattern finds capacities without a RAM or storage keyword
var bareCapacityPattern = regexp.MustCompile(`(?i)\b(\d+)\s*(GB|TB)\b`)

// maxBareMemoryGB bounds what an unlabelled capacity may be taken for as RAM
const maxBareMemoryGB = 64

// DetectSpecs extracts technical attributes from text. kinds restricts the
// result to the named attributes; none means all of them.
func DetectSpecs(text string, kinds ...string) (*domain.ProductSpecs, error) {
	wanted := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		k = strings.ToLower(strings.TrimSpace(k))
		if _, ok := specRules[k]; !ok {
			return nil, fmt.Errorf("%w: unknown spec kind %q", domain.ErrInvalidRequest, k)
		}
		wanted[k] = true
	}

	found := make(map[string]string, len(specKinds))
	for _, kind := range specKinds {
		for _, rule := range specRules[kind] {
			if m := rule.pattern.FindStringSubmatch(text); m != nil {
				found[kind] = rule.format(m)
				break
			}
		}
	}
	fillBareCapacities(text, found)

	specs := &domain.ProductSpecs{Raw: []string{}}
	for _, kind := range specKinds {
		value := found[kind]
		if value == "" || (len(wanted) > 0 && !wanted[kind]) {
			continue
		}
		switch kind {
		case SpecMemory:
			specs.Memory = value
		case SpecStorage:
			specs.Storage = value
		case SpecDisplay:
			specs.Display = value
		case SpecProcessor:
			specs.Processor = value
		case SpecColor:
			specs.Color = value
		case SpecSize:
			specs.Size = value
		}
		specs.Raw = append(specs.Raw, kind+": "+value)
	}
	return specs, nil
}

// fillBareCapacities assigns unlabelled capacities such as "16GB 512GB":
// the largest is storage, and the smallest remaining one is memory when it
// is small enough to be RAM.
func fillBareCapacities(text string, found map[string]string) {
	if found[SpecMemory] != "" && found[SpecStorage] != "" {
		return
	}

	type bare struct {
		label string
		gb    int
	}
	var caps []bare
	claimed := map[string]bool{found[SpecMemory]: true, found[SpecStorage]: true}
	for _, m := range bareCapacityPattern.FindAllStringSubmatch(text, -1) {
		label := capacity(m)
		if claimed[label] {
			// each labelled value consumes one occurrence
			claimed[label] = false
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if strings.EqualFold(m[2], "TB") {
			n *= 1024
		}
		caps = append(caps, bare{label: label, gb: n})
	}
	if len(caps) == 0 {
		return
	}
	sort.SliceStable(caps, func(i, j int) bool { return caps[i].gb < caps[j].gb })

	if found[SpecStorage] == "" {
		found[SpecStorage] = caps[len(caps)-1].label
		caps = caps[:len(caps)-1]
	}
	if found[SpecMemory] == "" && len(caps) > 0 && caps[0].gb <= maxBareMemoryGB {
		found[SpecMemory] = caps[0].label
	}
}
