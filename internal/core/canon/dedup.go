package canon

// Dedup removes records whose key was already seen, keeping the first
// occurrence and preserving input order. Cross-source merges therefore honor
// whichever source was merged first.
func Dedup[T any](in []T, key func(T) string) []T {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0:0]
	for _, rec := range in {
		k := key(rec)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, rec)
	}
	return out
}
