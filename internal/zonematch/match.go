package zonematch

// Matcher is an ordered sequence of Labels. A Zone matches a query name if
// any one of its Matchers matches.
type Matcher []Label

// Match decides whether qname (ordered left-to-right, e.g.
// ["www","example","com"]) satisfies m. Matching walks both lists
// right-to-left and is case-insensitive in qname; m's Literal labels are
// expected to already be lowercase (NewLiteral does this for you).
//
// The walk never short-circuits on reaching a terminal wildcard: it keeps
// processing leftward labels against whatever of qname remains (none, once
// a SubWildcard/AllWildcard has run), so the success check at the end is a
// single condition: qname ends up fully consumed.
func Match(m Matcher, qname []string) (bool, error) {
	lowered := make([]string, len(qname))
	for i, l := range qname {
		lowered[i] = toLower(l)
	}

	qi := len(lowered) - 1

	for mi := len(m) - 1; mi >= 0; mi-- {
		label := m[mi]

		switch label.Kind {
		case KindLiteral:
			if qi < 0 || lowered[qi] != label.Literal {
				return false, nil
			}
			qi--

		case KindRegex:
			if label.Eager {
				return false, ErrEagerRegexUnsupported
			}
			if qi < 0 || !label.Regex.MatchString(lowered[qi]) {
				return false, nil
			}
			qi--

		case KindWildcard:
			if qi < 0 {
				return false, nil
			}
			qi--

		case KindSubWildcard:
			if qi < 0 {
				return false, nil
			}
			qi = -1

		case KindAllWildcard:
			qi = -1
		}
	}

	return qi < 0, nil
}

// MatchAny reports whether qname matches any of the given matchers.
func MatchAny(matchers []Matcher, qname []string) (bool, error) {
	for _, m := range matchers {
		ok, err := Match(m, qname)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
