package notice

// Filtered replaces the value of a filtered key.
const Filtered = "[Filtered]"

// KeyFilter hides sensitive values in params, environment and session.
// With a whitelist, every leaf key not on it is filtered; blacklisted keys are
// always filtered. Nested maps are walked; the caller's maps are never modified.
type KeyFilter struct {
	whitelist map[string]struct{}
	blacklist map[string]struct{}
}

func NewKeyFilter(whitelist, blacklist []string) *KeyFilter {
	return &KeyFilter{whitelist: toSet(whitelist), blacklist: toSet(blacklist)}
}

func (f *KeyFilter) Empty() bool {
	return f == nil || (len(f.whitelist) == 0 && len(f.blacklist) == 0)
}

// Apply filters n in place, replacing its maps with filtered copies.
func (f *KeyFilter) Apply(n *Notice) {
	if f.Empty() || n == nil {
		return
	}
	n.Params = f.filterMap(n.Params, 0)
	n.Environment = f.filterMap(n.Environment, 0)
	n.Session = f.filterMap(n.Session, 0)
}

func (f *KeyFilter) filterMap(m map[string]any, depth int) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, ok := f.blacklist[k]; ok {
			out[k] = Filtered
			continue
		}
		if nested, ok := v.(map[string]any); ok && depth < maxDepth {
			out[k] = f.filterMap(nested, depth+1)
			continue
		}
		if len(f.whitelist) > 0 {
			if _, ok := f.whitelist[k]; !ok {
				out[k] = Filtered
				continue
			}
		}
		out[k] = v
	}
	return out
}

func toSet(keys []string) map[string]struct{} {
	if len(keys) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}
