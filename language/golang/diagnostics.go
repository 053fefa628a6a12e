package golang

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/caffeineduck/scriptbox/executor"
)

var buildErrorRe = regexp.MustCompile(`^(\S+?):(\d+)(?::(\d+))?: (.+)$`)

// parseBuildOutput extracts file:line[:col]: message lines from go build
// output. Package headers and notes are skipped.
func parseBuildOutput(output string) []executor.Diagnostic {
	var diags []executor.Diagnostic
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := buildErrorRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		diags = append(diags, executor.Diagnostic{
			Severity: executor.SeverityError,
			Code:     CodeBuild,
			Message:  m[4],
			File:     strings.TrimPrefix(m[1], "./"),
			Line:     lineNo,
			Column:   col,
		})
	}
	return diags
}
