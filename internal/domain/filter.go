package domain

// FilterSelection maps a categorical column to its accepted values. An empty
// set imposes no restriction on that column.
type FilterSelection map[string][]string

// Active reports whether any column carries a restriction.
func (f FilterSelection) Active() bool {
	for _, accepted := range f {
		if len(accepted) > 0 {
			return true
		}
	}
	return false
}
