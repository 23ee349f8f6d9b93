package bot

import "strings"

// tokenize splits a command line on whitespace, honouring single or double
// quotes and backslash escapes:
//
//	/new 2024-10-05 09:00 text "hello world"
func tokenize(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var (
		out   []string
		buf   strings.Builder
		quote rune
		esc   bool
		dirty bool
	)
	flush := func() {
		if dirty {
			out = append(out, buf.String())
			buf.Reset()
			dirty = false
		}
	}
	for _, r := range s {
		switch {
		case esc:
			buf.WriteRune(r)
			esc, dirty = false, true
		case r == '\\':
			esc = true
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			buf.WriteRune(r)
		case r == '"' || r == '\'':
			quote, dirty = r, true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			flush()
		default:
			buf.WriteRune(r)
			dirty = true
		}
	}
	flush()
	return out
}

// Flags holds --key values in the order given. A key may repeat.
type Flags map[string][]string

// Get returns the last value of key.
func (f Flags) Get(key string) (string, bool) {
	vs := f[key]
	if len(vs) == 0 {
		return "", false
	}
	return vs[len(vs)-1], true
}

// All returns every value given for key.
func (f Flags) All(key string) []string { return f[key] }

// parseFlags separates positionals from --key value / --key=value flags.
// A flag with no value is recorded with an empty string.
func parseFlags(args []string) (pos []string, flags Flags) {
	flags = Flags{}
	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "--") || len(a) == 2 {
			pos = append(pos, a)
			continue
		}
		key := a[2:]
		if k, v, ok := strings.Cut(key, "="); ok {
			flags[k] = append(flags[k], v)
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
			flags[key] = append(flags[key], args[i+1])
			i++
			continue
		}
		flags[key] = append(flags[key], "")
	}
	return pos, flags
}

// commandWord extracts "new" from "/new@postcal_bot".
func commandWord(tok string) string {
	w := strings.TrimPrefix(tok, "/")
	if i := strings.IndexByte(w, '@'); i >= 0 {
		w = w[:i]
	}
	return strings.ToLower(w)
}
