package store

// diffAssignments reconciles a desired staff-id list against the current
// assignment set. Order of desired is preserved in Added and Unchanged;
// Removed follows the order of current.
func diffAssignments(current, desired []string) AssignmentDiff {
	currentSet := make(map[string]struct{}, len(current))
	for _, id := range current {
		currentSet[id] = struct{}{}
	}
	desiredSet := make(map[string]struct{}, len(desired))
	for _, id := range desired {
		desiredSet[id] = struct{}{}
	}

	diff := AssignmentDiff{
		Added:     make([]string, 0),
		Removed:   make([]string, 0),
		Unchanged: make([]string, 0),
	}
	for _, id := range desired {
		if _, ok := currentSet[id]; ok {
			diff.Unchanged = append(diff.Unchanged, id)
		} else {
			diff.Added = append(diff.Added, id)
		}
	}
	for _, id := range current {
		if _, ok := desiredSet[id]; !ok {
			diff.Removed = append(diff.Removed, id)
		}
	}
	return diff
}
