package view

import (
	"reflect"
	"testing"
	"time"

	"github.com/clipd-io/clipd/internal/clip"
)

var base = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

func mk(id, content, typ string, at time.Time) *clip.Clip {
	return &clip.Clip{ID: id, Content: content, Type: typ, CreatedAt: at}
}

func ids(list []*clip.Clip) []string {
	out := []string{}
	for _, c := range list {
		out = append(out, c.ID)
	}
	return out
}

func testClips() []*clip.Clip {
	return []*clip.Clip{
		mk("c1", "pick up milk", "text", base),
		mk("c2", "https://example.com/docs", "url", base.Add(-1*time.Hour)),
		mk("c3", "func main() { println(42) }", "code", base.Add(-2*time.Hour)),
		mk("c4", "TODO: fix the milk parser", "text", base.Add(-3*time.Hour)),
		mk("c5", "unrelated note", "text", base.Add(-26*time.Hour)),
	}
}

func TestFiltered(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{
			name: "no filters keeps everything",
			opts: Options{},
			want: []string{"c1", "c2", "c3", "c4", "c5"},
		},
		{
			name: "plain query is case-insensitive substring",
			opts: Options{Query: "MILK"},
			want: []string{"c1", "c4"},
		},
		{
			name: "type filter",
			opts: Options{Type: "url"},
			want: []string{"c2"},
		},
		{
			name: "code only",
			opts: Options{CodeOnly: true},
			want: []string{"c3"},
		},
		{
			name: "exclude terms",
			opts: Options{Exclude: []string{"milk", "example"}},
			want: []string{"c3", "c5"},
		},
		{
			name: "query and exclude compose",
			opts: Options{Query: "milk", Exclude: []string{"todo"}},
			want: []string{"c1"},
		},
		{
			name: "since is inclusive",
			opts: Options{Since: base.Add(-2 * time.Hour)},
			want: []string{"c1", "c2", "c3"},
		},
		{
			name: "until is exclusive",
			opts: Options{Until: base},
			want: []string{"c2", "c3", "c4", "c5"},
		},
		{
			name: "date range",
			opts: Options{Since: base.Add(-3 * time.Hour), Until: base.Add(-1 * time.Hour)},
			want: []string{"c3", "c4"},
		},
		{
			name: "regex query",
			opts: Options{Query: `^https?://`, Mode: ModeRegex},
			want: []string{"c2"},
		},
		{
			name: "invalid regex degrades to substring",
			opts: Options{Query: "milk(", Mode: ModeRegex},
			want: []string{},
		},
		{
			name: "everything filtered out",
			opts: Options{Query: "no such content"},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filtered(testClips(), tt.opts)
			if !reflect.DeepEqual(ids(got), tt.want) {
				t.Errorf("Filtered() = %v, want %v", ids(got), tt.want)
			}
		})
	}
}

func TestFilteredReturnsFreshSlice(t *testing.T) {
	list := testClips()
	got := Filtered(list, Options{})

	got[0] = mk("zz", "swapped", "text", base)
	if list[0].ID != "c1" {
		t.Error("Filtered() aliased the input slice")
	}
}

func TestFuzzyMatching(t *testing.T) {
	list := []*clip.Clip{
		mk("c1", "kubernetes deployment", "text", base),
		mk("c2", "zzzz", "text", base),
	}

	// Verbatim substring always matches
	got := Filtered(list, Options{Query: "deploy", Mode: ModeFuzzy})
	if !reflect.DeepEqual(ids(got), []string{"c1"}) {
		t.Errorf("substring fuzzy = %v, want [c1]", ids(got))
	}

	// "kbernts": all 7 characters appear in "kubernetes deployment"
	got = Filtered(list, Options{Query: "kbernts", Mode: ModeFuzzy})
	if !reflect.DeepEqual(ids(got), []string{"c1"}) {
		t.Errorf("scattered fuzzy = %v, want [c1]", ids(got))
	}

	// "qqqqq": zero characters present, well under the threshold
	got = Filtered(list, Options{Query: "qqqqq", Mode: ModeFuzzy})
	if len(got) != 0 {
		t.Errorf("no-overlap fuzzy = %v, want none", ids(got))
	}
}

func TestGroupedAt(t *testing.T) {
	now := base
	list := []*clip.Clip{
		mk("today1", "a", "text", now.Add(-1*time.Hour)),
		mk("today2", "b", "text", now.Add(-23*time.Hour)),
		mk("yesterday", "c", "text", now.Add(-25*time.Hour)),
		mk("thisweek", "d", "text", now.Add(-3*24*time.Hour)),
		mk("older", "e", "text", now.Add(-8*24*time.Hour)),
	}

	g := GroupedAt(list, now)

	if got := ids(g.Today); !reflect.DeepEqual(got, []string{"today1", "today2"}) {
		t.Errorf("Today = %v", got)
	}
	if got := ids(g.Yesterday); !reflect.DeepEqual(got, []string{"yesterday"}) {
		t.Errorf("Yesterday = %v", got)
	}
	if got := ids(g.ThisWeek); !reflect.DeepEqual(got, []string{"thisweek"}) {
		t.Errorf("ThisWeek = %v", got)
	}
	if got := ids(g.Older); !reflect.DeepEqual(got, []string{"older"}) {
		t.Errorf("Older = %v", got)
	}
}

func TestGroupedAtBoundaries(t *testing.T) {
	now := base

	// Exactly 24h old is no longer Today
	g := GroupedAt([]*clip.Clip{mk("edge", "x", "text", now.Add(-24*time.Hour))}, now)
	if len(g.Today) != 0 || len(g.Yesterday) != 1 {
		t.Errorf("24h-old clip: Today=%v Yesterday=%v", ids(g.Today), ids(g.Yesterday))
	}

	// Exactly 48h old moves to ThisWeek
	g = GroupedAt([]*clip.Clip{mk("edge", "x", "text", now.Add(-48*time.Hour))}, now)
	if len(g.Yesterday) != 0 || len(g.ThisWeek) != 1 {
		t.Errorf("48h-old clip: Yesterday=%v ThisWeek=%v", ids(g.Yesterday), ids(g.ThisWeek))
	}
}

func TestCounts(t *testing.T) {
	got := Counts(testClips())
	want := map[string]int{"all": 5, "text": 3, "url": 1, "code": 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Counts() = %v, want %v", got, want)
	}

	empty := Counts(nil)
	if !reflect.DeepEqual(empty, map[string]int{"all": 0}) {
		t.Errorf("Counts(nil) = %v, want {all: 0}", empty)
	}
}
