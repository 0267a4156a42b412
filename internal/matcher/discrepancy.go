package matcher

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/sells-group/bom-validator/internal/model"
)

const quantityEpsilon = 1e-9

// discrepancies compares material, coating and quantity across the populated
// slots of a group. Absent values mean "not reported" and never disagree.
func discrepancies(slots map[model.SourceRole]*model.PartRecord) []model.Discrepancy {
	var out []model.Discrepancy

	if d := fieldDiscrepancy(slots, "material", func(r *model.PartRecord) (string, bool) {
		m := strings.TrimSpace(r.Material)
		return m, m != ""
	}, func(a, b string) bool {
		return strings.EqualFold(a, b)
	}); d != nil {
		out = append(out, *d)
	}

	if d := fieldDiscrepancy(slots, "coating", func(r *model.PartRecord) (string, bool) {
		if r.Coating == nil {
			return "", false
		}
		return strconv.FormatBool(*r.Coating), true
	}, func(a, b string) bool {
		return a == b
	}); d != nil {
		out = append(out, *d)
	}

	if d := fieldDiscrepancy(slots, "quantity", func(r *model.PartRecord) (string, bool) {
		if r.Quantity == nil {
			return "", false
		}
		return strconv.FormatFloat(*r.Quantity, 'f', -1, 64), true
	}, quantityEqual); d != nil {
		out = append(out, *d)
	}

	return out
}

// fieldDiscrepancy extracts one field from every populated slot and reports
// a discrepancy when any two reported values disagree.
func fieldDiscrepancy(
	slots map[model.SourceRole]*model.PartRecord,
	field string,
	extract func(*model.PartRecord) (string, bool),
	equal func(a, b string) bool,
) *model.Discrepancy {
	values := make(map[model.SourceRole]string)
	var roles []model.SourceRole
	for _, role := range model.AllSources {
		rec, ok := slots[role]
		if !ok || rec == nil {
			continue
		}
		if v, present := extract(rec); present {
			values[role] = v
			roles = append(roles, role)
		}
	}
	if len(roles) < 2 {
		return nil
	}

	sort.Slice(roles, func(i, j int) bool { return rolePriority[roles[i]] < rolePriority[roles[j]] })
	for i := 1; i < len(roles); i++ {
		if !equal(values[roles[0]], values[roles[i]]) {
			return &model.Discrepancy{Field: field, Values: values}
		}
	}
	return nil
}

func quantityEqual(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA != nil || errB != nil {
		return a == b
	}
	return math.Abs(fa-fb) < quantityEpsilon
}
