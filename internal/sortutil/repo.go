package sortutil

import (
	"sort"
	"strings"

	"github.com/skaphos/repofleet/internal/model"
)

// LessRepoState orders case-insensitively by repository name first, then by
// the secondary key (state or path) so output stays deterministic when two
// rows share a name.
func LessRepoState(repoI, secondaryI, repoJ, secondaryJ string) bool {
	li, lj := strings.ToLower(repoI), strings.ToLower(repoJ)
	if li == lj {
		return secondaryI < secondaryJ
	}
	return li < lj
}

// SortPlanRows orders plan rows by lowercase repo name, then state.
func SortPlanRows(rows []model.PlanRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return LessRepoState(rows[i].Repo, string(rows[i].State), rows[j].Repo, string(rows[j].State))
	})
}

// SortRepoResults orders apply results by lowercase repo name, then path.
func SortRepoResults(results []model.RepoResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return LessRepoState(results[i].Repo, results[i].Path, results[j].Repo, results[j].Path)
	})
}
