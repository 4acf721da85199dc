package airtable

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/devrev/tablegateway/internal/model"
)

var formulaEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// Formula builds a filterByFormula expression that matches every condition
// in order, for example AND({POINT_ID}='BH501', {Zone}='Zone5'). It returns
// "" when there are no conditions.
func Formula(matches []model.FieldMatch) string {
	if len(matches) == 0 {
		return ""
	}

	terms := make([]string, len(matches))
	for i, m := range matches {
		terms[i] = "{" + m.Field + "}='" + formulaEscaper.Replace(m.Value) + "'"
	}
	return "AND(" + strings.Join(terms, ", ") + ")"
}

// encodeCriteria adds the filter and sort parameters for criteria to q.
func encodeCriteria(q url.Values, criteria model.FilterCriteria) {
	if formula := Formula(criteria.Matches); formula != "" {
		q.Set("filterByFormula", formula)
	}
	for i, s := range criteria.Sort {
		prefix := "sort[" + strconv.Itoa(i) + "]"
		q.Set(prefix+"[field]", s.Field)
		direction := s.Direction
		if direction == "" {
			direction = model.SortAscending
		}
		q.Set(prefix+"[direction]", string(direction))
	}
}
