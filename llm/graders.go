package llm

import (
	"fmt"
	"slices"
	"strings"
)

// BinaryScore is a yes/no grade.
type BinaryScore struct {
	Score string `json:"binary_score"`
}

func (b BinaryScore) Validate() error {
	switch normalize(b.Score) {
	case "yes", "no":
		return nil
	}
	return fmt.Errorf(`binary_score must be "yes" or "no", got %q`, b.Score)
}

// Yes reports whether the grade is positive.
func (b BinaryScore) Yes() bool {
	return normalize(b.Score) == "yes"
}

// Datasources a question router may pick.
const (
	DatasourceVectorStore = "vectorstore"
	DatasourceWebSearch   = "web_search"
)

// RouteQuery is a question router's choice of datasource.
type RouteQuery struct {
	Datasource string `json:"datasource"`
}

func (r RouteQuery) Validate() error {
	switch normalize(r.Datasource) {
	case DatasourceVectorStore, DatasourceWebSearch:
		return nil
	}
	return fmt.Errorf("datasource must be %q or %q, got %q", DatasourceVectorStore, DatasourceWebSearch, r.Datasource)
}

// Normalized returns the datasource in canonical form.
func (r RouteQuery) Normalized() string {
	return normalize(r.Datasource)
}

// FinishRoute is the decision that ends a supervised run.
const FinishRoute = "FINISH"

// RouteDecision names the member that acts next, or FinishRoute.
type RouteDecision struct {
	Next string `json:"next"`
}

// ValidateRoute returns a validator accepting the given members and FinishRoute.
func ValidateRoute(members []string) func(RouteDecision) error {
	return func(d RouteDecision) error {
		if d.Next == FinishRoute || slices.Contains(members, d.Next) {
			return nil
		}
		return fmt.Errorf("next must be one of %s or %s, got %q", strings.Join(members, ", "), FinishRoute, d.Next)
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
