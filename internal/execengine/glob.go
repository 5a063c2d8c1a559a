package execengine

import "path"

// globMatch matches a case-statement pattern against s using the same
// '*'/'?'/'[...]' shell-glob subset as filename globbing; case patterns
// are defined by spec.md in those terms and path.Match implements
// exactly that grammar, so no separate glob engine is needed here.
func globMatch(pattern, s string) (bool, error) {
	return path.Match(pattern, s)
}
