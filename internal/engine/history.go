package engine

// DisplayTitle is the title shown to the host: the page title, or the
// current URL when the page has none, or "Untitled". A non-empty suffix is
// appended as " - suffix".
func DisplayTitle(title, currentURL, suffix string) string {
	t := title
	if t == "" {
		t = currentURL
	}
	if t == "" {
		t = "Untitled"
	}
	if suffix != "" {
		t += " - " + suffix
	}
	return t
}

// HistoryFlags derives back/forward availability from a session history of
// n entries positioned at current.
func HistoryFlags(current, n int) (canGoBack, canGoForward bool) {
	if n <= 0 {
		return false, false
	}
	return current > 0, current < n-1
}
