package post

import "strings"

// InferKind picks the kind for a compose form with no explicit type: image
// when an image URL was given, text otherwise.
func InferKind(imageURL string) Kind {
	if strings.TrimSpace(imageURL) != "" {
		return KindImage
	}
	return KindText
}

// WithHashtags appends tags to content as "#tag" words on their own line.
// Leading '#', blanks and repeats (case-insensitive) are dropped.
func WithHashtags(content string, tags []string) string {
	seen := map[string]bool{}
	words := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimLeft(strings.TrimSpace(t), "#")
		t = strings.Join(strings.Fields(t), "")
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		words = append(words, "#"+t)
	}
	if len(words) == 0 {
		return content
	}
	line := strings.Join(words, " ")
	if strings.TrimSpace(content) == "" {
		return line
	}
	return strings.TrimRight(content, " \n") + "\n\n" + line
}
