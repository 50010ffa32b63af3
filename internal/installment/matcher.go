package installment

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Dan9191/reminder-service/internal/models"
)

var suffixPattern = regexp.MustCompile(`(?s)^(.*?)\s*\((\d+)/(\d+)\)$`)

// Match extracts the installment position from a description ending in
// "(index/total)". Anything that is not a well-formed suffix with
// 1 <= index <= total is reported as no match.
func Match(description string) (models.InstallmentMeta, bool) {
	m := suffixPattern.FindStringSubmatch(strings.TrimSpace(description))
	if m == nil {
		return models.InstallmentMeta{}, false
	}

	index, err := strconv.Atoi(m[2])
	if err != nil {
		return models.InstallmentMeta{}, false
	}
	total, err := strconv.Atoi(m[3])
	if err != nil {
		return models.InstallmentMeta{}, false
	}
	if index < 1 || total < 1 || index > total {
		return models.InstallmentMeta{}, false
	}

	return models.InstallmentMeta{
		Index: index,
		Total: total,
		Base:  strings.TrimSpace(m[1]),
	}, true
}

// IsInstallment reports whether description carries a valid installment suffix.
func IsInstallment(description string) bool {
	_, ok := Match(description)
	return ok
}
