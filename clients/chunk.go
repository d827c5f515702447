package clients

// SplitWindows cuts text into rune-safe windows of at most size runes, each
// window sharing its first overlap runes with the tail of the previous one.
// The overlap gives the model continuity so stitching can find the seam.
func SplitWindows(text string, size, overlap int) []string {
	if size <= 0 {
		return []string{text}
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}
	step := size - overlap
	var windows []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end >= len(runes) {
			windows = append(windows, string(runes[start:]))
			break
		}
		windows = append(windows, string(runes[start:end]))
	}
	return windows
}

// StitchWindows joins processed window outputs back together. Consecutive
// outputs usually repeat the overlapped input, so the longest suffix of the
// accumulated text that prefixes the next piece (probing up to maxProbe
// runes, at least 20 to avoid false seams) is dropped from the next piece.
func StitchWindows(pieces []string, maxProbe int) string {
	if len(pieces) == 0 {
		return ""
	}
	out := []rune(pieces[0])
	for _, piece := range pieces[1:] {
		next := []rune(piece)
		cut := overlapLength(out, next, maxProbe)
		if cut > 0 {
			next = next[cut:]
			out = append(out, next...)
			continue
		}
		out = append(out, []rune("\n\n")...)
		out = append(out, next...)
	}
	return string(out)
}

func overlapLength(prev, next []rune, maxProbe int) int {
	const minSeam = 20
	probe := maxProbe
	if probe > len(prev) {
		probe = len(prev)
	}
	if probe > len(next) {
		probe = len(next)
	}
	for k := probe; k >= minSeam; k-- {
		if string(prev[len(prev)-k:]) == string(next[:k]) {
			return k
		}
	}
	return 0
}
