package extract

// detectLink finds the article link for one list node. Priority order: the
// node itself is an anchor, then the first anchor descendant, then the
// nearest ancestor anchor.
func detectLink(node Node) string {
	if node.TagName() == "a" {
		if href, ok := node.Attr("href"); ok && href != "" {
			return href
		}
	}

	for _, anchor := range node.Select("a") {
		if href, ok := anchor.Attr("href"); ok && href != "" {
			return href
		}
	}

	for parent := node.Parent(); parent != nil; parent = parent.Parent() {
		if parent.TagName() != "a" {
			continue
		}
		if href, ok := parent.Attr("href"); ok && href != "" {
			return href
		}
	}
	return ""
}

// dedupeOrdered keeps the first occurrence of each link, order preserved.
func dedupeOrdered(links []string) []string {
	seen := make(map[string]struct{}, len(links))
	out := links[:0]
	for _, link := range links {
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		out = append(out, link)
	}
	return out
}
