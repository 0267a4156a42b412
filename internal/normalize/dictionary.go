package normalize

import (
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Dictionary maps short abbreviations and datasheet keys to canonical part
// names. It drives both token recognition and canonical part-type detection.
type Dictionary struct {
	// Abbreviations maps description short forms to canonical part names,
	// e.g. "IMP WEAR RING" -> "Impeller Wear Ring".
	Abbreviations map[string]string `yaml:"abbreviations"`
	// PartKeys maps datasheet field labels to canonical part names,
	// e.g. "Diffuser Moc" -> "Diffuser".
	PartKeys map[string]string `yaml:"part_keys"`

	words     map[string]bool // every word of every abbreviation, uppercased
	abbrByLen []string        // abbreviation keys, longest first
}

// DefaultDictionary returns the built-in pump component dictionary.
func DefaultDictionary() *Dictionary {
	d := &Dictionary{
		Abbreviations: map[string]string{
			"STRAINER":      "Strainer",
			"SUC MTH":       "Suction Bell Mouth",
			"DIFF":          "Diffuser",
			"TAP CON":       "Taper Connecting Piece",
			"NECK RING":     "Neck Ring",
			"IMP WEAR RING": "Impeller Wear Ring",
			"IMP N/CAP":     "Impeller Nose Cap",
			"IMP DIST SLV":  "Impeller Distance Sleeve",
			"IMP":           "Impeller",
			"BRG BUSH CARR": "Bearing Bush Carrier",
			"BRG BUSH":      "Bearing Bush",
			"BRG HSG":       "Bearing Housing Sub-Assembly",
			"I BRG BUSH":    "Intermediate Bearing Bush",
			"INT BRG SLV":   "Intermediate Bearing Sleeve",
			"INT BRG CARR":  "Intermediate Bearing Carrier",
			"SHAFT INT":     "Intermediate Shaft",
			"SHAFT RH TOP":  "Top Shaft",
			"SHAFT RH":      "Pump Shaft",
			"P BRG SLV":     "Pump Bearing Sleeve",
			"DIST SLV":      "Distance Sleeve",
			"SAND COLL":     "Sand Collar",
			"GLD SLV":       "Gland Sleeve",
			"GLD SPLIT":     "Split Gland",
			"GLD PACK":      "Gland Packing",
			"LOCK NUT":      "Lock Nut",
			"SLV NUT":       "Sleeve Nut",
			"MUF COUP":      "Muff Coupling",
			"SPT COLL":      "Split Collar",
			"ADJ RING":      "Adjusting Ring",
			"WATER DEFL":    "Water Deflector",
			"SOLE PLT":      "Sole Plate",
			"DBMS":          "Delivery Bend & Motor Stool",
			"ALIGN PAD":     "Alignment Pad",
			"L STF BOX":     "Loose Stuffing Box",
			"ST BOX LOOSE":  "Loose Stuffing Box",
			"STF BOX":       "Stuffing Box",
			"LOG RING":      "Logging Ring",
			"ADPT PLT":      "Adapter Plate",
			"R.M.PIPE TAP":  "RM Pipe (Taper/Bottom)",
			"R.M.PIPE INT":  "RM Pipe (Intermediate)",
			"R.M.PIPE TOP":  "RM Pipe (Top)",
			"R.M.PIPE BOT":  "RM Pipe (Bottom)",
			"COOLING COIL":  "Cooling Coil",
			"RATCHET":       "Ratchet",
			"GASKET":        "Gasket",
			"VITON":         "Viton",
			"HEX BOLT":      "Hex Bolt",
		},
		PartKeys: map[string]string{
			"Impeller":            "Impeller",
			"Shaft":               "Shaft",
			"Top Shaft":           "Top Shaft",
			"Int Shaft":           "Int Shaft",
			"Diffuser Moc":        "Diffuser",
			"Diffuser MOC":        "Diffuser",
			"Strainer":            "Strainer",
			"Neck Ring":           "Neck Ring",
			"Imp Wear Ring":       "Imp Wear Ring",
			"Pump Brg Sleeve":     "Pump Brg Sleeve",
			"Int Sleeve":          "Int Sleeve",
			"Gland Sleeve":        "Gland Sleeve",
			"Bearing bush":        "Bearing Bush",
			"Bearing Bush":        "Bearing Bush",
			"Bearing Bracket":     "Bearing Bracket",
			"Suc Bell Mouth":      "Suc Bell Mouth",
			"Delivery Bend / Tee": "Delivery Bend / Tee",
			"Motor Stool":         "Motor Stool",
			"Column Pipe":         "Column Pipe",
		},
	}
	d.index()
	return d
}

// LoadDictionary reads a dictionary from a YAML file. Entries extend the
// built-in defaults; a file entry for an existing key overrides it.
func LoadDictionary(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dictionary: read %s", path)
	}

	var loaded Dictionary
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, eris.Wrap(err, "dictionary: parse yaml")
	}

	d := DefaultDictionary()
	for abbr, canonical := range loaded.Abbreviations {
		d.Abbreviations[strings.ToUpper(strings.TrimSpace(abbr))] = canonical
	}
	for key, canonical := range loaded.PartKeys {
		d.PartKeys[strings.TrimSpace(key)] = canonical
	}
	d.index()
	return d, nil
}

// index rebuilds the derived lookups after the maps change.
func (d *Dictionary) index() {
	d.words = make(map[string]bool)
	d.abbrByLen = make([]string, 0, len(d.Abbreviations))
	for abbr, canonical := range d.Abbreviations {
		d.abbrByLen = append(d.abbrByLen, abbr)
		for _, w := range splitWords(abbr) {
			d.words[w] = true
		}
		for _, w := range splitWords(strings.ToUpper(canonical)) {
			d.words[w] = true
		}
	}
	for key, canonical := range d.PartKeys {
		for _, w := range splitWords(strings.ToUpper(key)) {
			d.words[w] = true
		}
		for _, w := range splitWords(strings.ToUpper(canonical)) {
			d.words[w] = true
		}
	}
	// Longest first so "IMP WEAR RING" wins over "IMP". Ties broken
	// lexically to keep detection deterministic.
	sort.Slice(d.abbrByLen, func(i, j int) bool {
		if len(d.abbrByLen[i]) != len(d.abbrByLen[j]) {
			return len(d.abbrByLen[i]) > len(d.abbrByLen[j])
		}
		return d.abbrByLen[i] < d.abbrByLen[j]
	})
}

// Recognized reports whether a normalized token is part of any known
// abbreviation or canonical name.
func (d *Dictionary) Recognized(token string) bool {
	return d.words[strings.ToUpper(token)]
}

// DetectCanonical finds the canonical part name for a free-text description.
// Longer abbreviations are tried first; an abbreviation matches as a prefix
// or as a whole-word substring. Datasheet part keys are checked after the
// abbreviations. Returns empty strings when nothing matches.
func (d *Dictionary) DetectCanonical(text string) (canonical, matched string) {
	normalized := normalizeText(text)
	padded := " " + normalized + " "

	for _, abbr := range d.abbrByLen {
		a := normalizeText(abbr)
		if strings.HasPrefix(normalized, a) || strings.Contains(padded, " "+a+" ") {
			return d.Abbreviations[abbr], abbr
		}
	}

	keys := make([]string, 0, len(d.PartKeys))
	for k := range d.PartKeys {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	for _, key := range keys {
		k := normalizeText(key)
		if strings.HasPrefix(normalized, k) || strings.Contains(padded, " "+k+" ") {
			return d.PartKeys[key], key
		}
	}

	return "", ""
}

var nonAlnum = regexp.MustCompile(`[^A-Z0-9 ]+`)

// normalizeText uppercases and collapses punctuation to spaces.
func normalizeText(s string) string {
	upper := strings.ToUpper(s)
	upper = nonAlnum.ReplaceAllString(upper, " ")
	return strings.Join(strings.Fields(upper), " ")
}

// splitWords breaks a string into normalized uppercase words.
func splitWords(s string) []string {
	return strings.Fields(normalizeText(s))
}
