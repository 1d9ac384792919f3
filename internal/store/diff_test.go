package store

import (
	"reflect"
	"testing"
)

func TestDiffAssignments(t *testing.T) {
	tests := []struct {
		name    string
		current []string
		desired []string
		want    AssignmentDiff
	}{
		{
			name:    "disjoint sets",
			current: []string{"sta_a", "sta_b"},
			desired: []string{"sta_c", "sta_d"},
			want: AssignmentDiff{
				Added:     []string{"sta_c", "sta_d"},
				Removed:   []string{"sta_a", "sta_b"},
				Unchanged: []string{},
			},
		},
		{
			name:    "partial overlap",
			current: []string{"sta_a", "sta_b", "sta_c"},
			desired: []string{"sta_b", "sta_d"},
			want: AssignmentDiff{
				Added:     []string{"sta_d"},
				Removed:   []string{"sta_a", "sta_c"},
				Unchanged: []string{"sta_b"},
			},
		},
		{
			name:    "identical sets",
			current: []string{"sta_a", "sta_b"},
			desired: []string{"sta_a", "sta_b"},
			want: AssignmentDiff{
				Added:     []string{},
				Removed:   []string{},
				Unchanged: []string{"sta_a", "sta_b"},
			},
		},
		{
			name:    "empty desired removes everything",
			current: []string{"sta_a", "sta_b"},
			desired: []string{},
			want: AssignmentDiff{
				Added:     []string{},
				Removed:   []string{"sta_a", "sta_b"},
				Unchanged: []string{},
			},
		},
		{
			name:    "empty current adds everything",
			current: []string{},
			desired: []string{"sta_a"},
			want: AssignmentDiff{
				Added:     []string{"sta_a"},
				Removed:   []string{},
				Unchanged: []string{},
			},
		},
		{
			name:    "both empty",
			current: []string{},
			desired: []string{},
			want: AssignmentDiff{
				Added:     []string{},
				Removed:   []string{},
				Unchanged: []string{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := diffAssignments(tt.current, tt.desired)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("diffAssignments(%v, %v) = %+v, want %+v", tt.current, tt.desired, got, tt.want)
			}
		})
	}
}

func TestDiffAssignmentsPreservesDesiredOrder(t *testing.T) {
	got := diffAssignments([]string{"sta_b"}, []string{"sta_z", "sta_b", "sta_a"})
	if !reflect.DeepEqual(got.Added, []string{"sta_z", "sta_a"}) {
		t.Errorf("Added = %v, want desired order preserved", got.Added)
	}
	if !reflect.DeepEqual(got.Unchanged, []string{"sta_b"}) {
		t.Errorf("Unchanged = %v, want [sta_b]", got.Unchanged)
	}
}

func TestDiffAssignmentsPartition(t *testing.T) {
	current := []string{"sta_1", "sta_2", "sta_3"}
	desired := []string{"sta_2", "sta_4"}
	got := diffAssignments(current, desired)

	if len(got.Added)+len(got.Unchanged) != len(desired) {
		t.Errorf("Added+Unchanged = %d ids, want %d (every desired id classified once)",
			len(got.Added)+len(got.Unchanged), len(desired))
	}
	seen := make(map[string]bool)
	for _, id := range append(append([]string{}, got.Added...), got.Unchanged...) {
		if seen[id] {
			t.Errorf("id %s classified twice", id)
		}
		seen[id] = true
	}
	for _, id := range got.Removed {
		if seen[id] {
			t.Errorf("removed id %s also classified as added or unchanged", id)
		}
	}
}
