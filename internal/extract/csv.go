package extract

import (
	"encoding/csv"
	"fmt"
	"strings"
)

// UnitTestsCSV renders extracted test cases as semicolon-delimited CSV with
// a trailing empty Result column for manual fill-in.
func UnitTestsCSV(testCases, expectedResults []string) (string, error) {
	rows := make([][]string, 0, len(testCases)+1)
	rows = append(rows, []string{"Test Case", "Expected Result", "Result"})
	for i := range testCases {
		expected := ""
		if i < len(expectedResults) {
			expected = expectedResults[i]
		}
		rows = append(rows, []string{testCases[i], expected, ""})
	}
	return writeCSV(rows)
}

// AcceptanceCriteriaCSV renders extracted acceptance criteria as
// semicolon-delimited CSV.
func AcceptanceCriteriaCSV(issueIDs, criteria []string) (string, error) {
	rows := make([][]string, 0, len(issueIDs)+1)
	rows = append(rows, []string{"Issue ID", "Acceptance criteria"})
	for i := range issueIDs {
		crit := ""
		if i < len(criteria) {
			crit = criteria[i]
		}
		rows = append(rows, []string{issueIDs[i], crit})
	}
	return writeCSV(rows)
}

func writeCSV(rows [][]string) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	w.Comma = ';'
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("failed to write csv: %w", err)
	}
	return sb.String(), nil
}
