// Package extract mines structured records out of free-form model answers.
// It is best-effort text mining, not a grammar: malformed or reordered
// output degrades to partial or empty extraction instead of failing.
package extract

import "strings"

type state int

const (
	stateNone state = iota
	stateFirst
	stateSecond
)

// Parser accumulates two-field records from an answer processed line by
// line. A line containing the first label starts a new record (flushing the
// previous one), a line containing the second label switches fields, and any
// other line extends whichever field is active.
type Parser struct {
	firstLabel  string
	secondLabel string
}

func NewParser(firstLabel, secondLabel string) *Parser {
	return &Parser{firstLabel: firstLabel, secondLabel: secondLabel}
}

// Parse returns the two field sequences, always equal in length and paired
// by position. An answer without the first label yields two empty sequences.
func (p *Parser) Parse(answer string) ([]string, []string) {
	var firsts, seconds []string
	var curFirst, curSecond string
	current := stateNone

	flush := func() {
		if curFirst == "" {
			return
		}
		firsts = append(firsts, strings.TrimSpace(curFirst))
		seconds = append(seconds, strings.TrimSpace(curSecond))
		curFirst, curSecond = "", ""
	}

	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.Contains(line, p.firstLabel):
			flush()
			current = stateFirst
			if seed := seedAfterLabel(line, p.firstLabel); seed != "" {
				curFirst = seed + " "
			}
		case strings.Contains(line, p.secondLabel):
			current = stateSecond
			if seed := seedAfterLabel(line, p.secondLabel); seed != "" {
				curSecond = seed + " "
			}
		case current == stateFirst:
			curFirst += line + " "
		case current == stateSecond:
			curSecond += line + " "
		}
	}
	flush()

	return firsts, seconds
}

// seedAfterLabel extracts the text following the label on its own line,
// dropping a separating colon: "Expected Result: shown" seeds "shown",
// while "Test Case 1: login" seeds "1: login".
func seedAfterLabel(line, label string) string {
	idx := strings.Index(line, label)
	if idx < 0 {
		return ""
	}
	rest := strings.TrimSpace(line[idx+len(label):])
	rest = strings.TrimSpace(strings.TrimPrefix(rest, ":"))
	return rest
}

// ParseUnitTests extracts (test case, expected result) pairs.
func ParseUnitTests(answer string) ([]string, []string) {
	return NewParser("Test Case", "Expected Result").Parse(answer)
}

// ParseAcceptanceCriteria extracts (issue id, acceptance criteria) pairs.
func ParseAcceptanceCriteria(answer string) ([]string, []string) {
	return NewParser("Issue ID", "Acceptance Criteria").Parse(answer)
}
