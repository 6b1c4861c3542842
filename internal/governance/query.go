package governance

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/agrimart/backoffice/internal/accounts"
	"github.com/agrimart/backoffice/internal/roles"
)

// SortKey selects the primary sort column of a listing.
type SortKey string

const (
	SortNone    SortKey = ""
	SortName    SortKey = "name"
	SortCreated SortKey = "created"
	SortUsers   SortKey = "users"
)

// ParseSortKey resolves a sort key; unknown keys keep registry order.
func ParseSortKey(raw string) SortKey {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(raw))); k {
	case SortName, SortCreated, SortUsers:
		return k
	}
	return SortNone
}

// AccountQuery filters and orders the account listing. Empty fields match
// everything.
type AccountQuery struct {
	Search string
	Role   string
	Status accounts.Status
	Type   accounts.Type
	Sort   SortKey
	Desc   bool
}

// RoleQuery filters and orders the role listing.
type RoleQuery struct {
	Search string
	Scope  roles.Scope
	Sort   SortKey
	Desc   bool
}

// RoleView is a role with its derived, non-authoritative user count.
type RoleView struct {
	roles.Role
	UsersCount int `json:"usersCount"`
}

// ListAccounts returns the filtered, stably sorted account view. Rows that
// compare equal keep registry order.
func (f *Facade) ListAccounts(q AccountQuery) []accounts.Account {
	all := f.accounts.List()
	needle := fold(q.Search)
	out := make([]accounts.Account, 0, len(all))
	for _, a := range all {
		if needle != "" && !strings.Contains(fold(a.Name), needle) && !strings.Contains(fold(a.Email), needle) {
			continue
		}
		if q.Role != "" && !roles.SameName(a.Role, q.Role) {
			continue
		}
		if q.Status != "" && a.Status != q.Status {
			continue
		}
		if q.Type != "" && a.Type != q.Type {
			continue
		}
		out = append(out, a)
	}

	var less func(a, b accounts.Account) int
	switch q.Sort {
	case SortName:
		col := newCollator()
		less = func(a, b accounts.Account) int { return col.CompareString(a.Name, b.Name) }
	case SortCreated:
		less = func(a, b accounts.Account) int { return a.CreatedAt.Compare(b.CreatedAt) }
	default:
		return out
	}
	sort.SliceStable(out, func(i, j int) bool { return ordered(less(out[i], out[j]), q.Desc) })
	return out
}

// ListRoles returns the filtered, stably sorted role view with user counts.
func (f *Facade) ListRoles(q RoleQuery) []RoleView {
	counts := make(map[string]int)
	for _, a := range f.accounts.List() {
		counts[fold(a.Role)]++
	}
	needle := fold(q.Search)
	out := make([]RoleView, 0)
	for _, r := range f.roles.List() {
		if needle != "" && !strings.Contains(fold(r.Name), needle) && !strings.Contains(fold(r.Description), needle) {
			continue
		}
		if q.Scope != "" && r.Scope != q.Scope {
			continue
		}
		out = append(out, RoleView{Role: r, UsersCount: counts[fold(r.Name)]})
	}

	var less func(a, b RoleView) int
	switch q.Sort {
	case SortName:
		col := newCollator()
		less = func(a, b RoleView) int { return col.CompareString(a.Name, b.Name) }
	case SortCreated:
		less = func(a, b RoleView) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case SortUsers:
		less = func(a, b RoleView) int { return a.UsersCount - b.UsersCount }
	default:
		return out
	}
	sort.SliceStable(out, func(i, j int) bool { return ordered(less(out[i], out[j]), q.Desc) })
	return out
}

// ordered turns a three-way comparison into a strict less-than, so ties are
// never reordered in either direction.
func ordered(cmp int, desc bool) bool {
	if desc {
		return cmp > 0
	}
	return cmp < 0
}

// newCollator returns a per-call collator; collators are not safe for
// concurrent use.
func newCollator() *collate.Collator {
	return collate.New(language.Und, collate.IgnoreCase)
}

func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
